package attendance

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventflow/backend/pkg/clock"
)

func TestScanHandlerStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := newRegistration()
	h := NewHandler(NewService(newMemStore(reg), nil, clock.NewFixed(t0), nil), nil)
	r := gin.New()
	r.POST("/staff/scan/:id", h.Scan)

	want := []int{http.StatusOK, http.StatusOK, http.StatusConflict}
	for i, code := range want {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/staff/scan/"+reg.ID.String(), nil))
		if w.Code != code {
			t.Fatalf("scan %d status = %d, want %d (%s)", i+1, w.Code, code, w.Body.String())
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/staff/scan/"+uuid.NewString(), nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d", w.Code)
	}
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Code != "NOT_FOUND" {
		t.Fatalf("code = %q", body.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/staff/scan/not-a-uuid", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", w.Code)
	}
}
