package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eventflow/backend/internal/attendance"
	"github.com/eventflow/backend/internal/models"
)

// loopback is an in-memory Publisher/Subscriber standing in for Redis.
type loopback struct {
	mu       sync.Mutex
	handlers map[uuid.UUID][]func(string, []byte)
}

func (l *loopback) PublishEvent(_ context.Context, eventID uuid.UUID, event string, payload []byte) error {
	l.mu.Lock()
	hs := append([]func(string, []byte){}, l.handlers[eventID]...)
	l.mu.Unlock()
	for _, h := range hs {
		h(event, payload)
	}
	return nil
}

func (l *loopback) SubscribeEvent(eventID uuid.UUID, handler func(string, []byte)) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handlers == nil {
		l.handlers = map[uuid.UUID][]func(string, []byte){}
	}
	l.handlers[eventID] = append(l.handlers[eventID], handler)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.handlers, eventID)
	}, nil
}

func fixedCounts(ctx context.Context, _ uuid.UUID) (attendance.Counts, error) {
	return attendance.Counts{Pending: 3, CheckedIn: 2, CheckedOut: 1}, nil
}

func newClient(h *Hub, eventID uuid.UUID) *Client {
	return &Client{ID: uuid.NewString(), EventID: eventID, hub: h, send: make(chan Message, sendBuffer)}
}

func TestAttendanceChangedReachesRoomOnce(t *testing.T) {
	bus := &loopback{}
	h := NewHub(nil, bus, bus, fixedCounts)
	eventID := uuid.New()
	watcher := newClient(h, eventID)
	other := newClient(h, uuid.New())
	h.Register(watcher)
	h.Register(other)

	change := attendance.Change{EventID: eventID, RegistrationID: uuid.New(), Action: attendance.ActionCheckIn, State: attendance.CheckedIn}
	h.AttendanceChanged(context.Background(), change)

	if len(watcher.send) != 1 {
		t.Fatalf("watcher got %d messages, want 1", len(watcher.send))
	}
	if len(other.send) != 0 {
		t.Fatalf("other room got %d messages", len(other.send))
	}
	msg := <-watcher.send
	if msg.Event != EventAttendanceChanged {
		t.Fatalf("event = %s", msg.Event)
	}
	var got ChangeMessage
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.RegistrationID != change.RegistrationID || got.Counts == nil || got.Counts.CheckedIn != 2 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestUnregisterCancelsSubscription(t *testing.T) {
	bus := &loopback{}
	h := NewHub(nil, bus, bus, nil)
	eventID := uuid.New()
	c := newClient(h, eventID)
	h.Register(c)
	if h.Listeners(eventID) != 1 {
		t.Fatalf("listeners = %d", h.Listeners(eventID))
	}
	h.Unregister(c)
	if h.Listeners(eventID) != 0 || len(bus.handlers[eventID]) != 0 {
		t.Fatal("room should be empty and unsubscribed")
	}
}

func TestChangeWithoutCounts(t *testing.T) {
	h := NewHub(nil, nil, nil, func(context.Context, uuid.UUID) (attendance.Counts, error) {
		return attendance.Counts{}, errors.New("db down")
	})
	eventID := uuid.New()
	c := newClient(h, eventID)
	h.Register(c)
	h.AttendanceChanged(context.Background(), attendance.Change{EventID: eventID})
	msg := <-c.send
	if strings.Contains(string(msg.Data), `"counts"`) {
		t.Fatalf("counts should be omitted on error: %s", msg.Data)
	}
}

func serve(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validate := func(token string) (uuid.UUID, string, error) {
		switch token {
		case "staff":
			return uuid.New(), string(models.RoleStaff), nil
		case "participant":
			return uuid.New(), string(models.RoleParticipant), nil
		}
		return uuid.Nil, "", errors.New("bad token")
	}
	r := gin.New()
	r.GET("/ws/events/:id/attendance", ServeWs(h, validate, func(*http.Request) bool { return true }, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestServeWsRejects(t *testing.T) {
	srv := serve(t, NewHub(nil, nil, nil, nil))
	cases := map[string]int{
		"/ws/events/nope/attendance?token=staff":                           http.StatusBadRequest,
		"/ws/events/" + uuid.NewString() + "/attendance":                   http.StatusUnauthorized,
		"/ws/events/" + uuid.NewString() + "/attendance?token=x":           http.StatusUnauthorized,
		"/ws/events/" + uuid.NewString() + "/attendance?token=participant": http.StatusForbidden,
	}
	for path, want := range cases {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("%s: status %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestServeWsStreamsChanges(t *testing.T) {
	h := NewHub(nil, nil, nil, fixedCounts)
	srv := serve(t, h)
	eventID := uuid.New()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events/" + eventID.String() + "/attendance?token=staff"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Event != EventCounts {
		t.Fatalf("first message = %s, want counts snapshot", first.Event)
	}

	h.AttendanceChanged(context.Background(), attendance.Change{EventID: eventID, Action: attendance.ActionCheckOut, State: attendance.CheckedOut})
	var next Message
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatal(err)
	}
	if next.Event != EventAttendanceChanged || !strings.Contains(string(next.Data), `"state":"checked_out"`) {
		t.Fatalf("message = %s %s", next.Event, next.Data)
	}
}
