package reports

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Window is the set of clock-derived boundaries a dashboard is computed for.
type Window struct {
	Now        time.Time
	MonthStart time.Time
	DayStart   time.Time
	TrendStart time.Time
	TrendDays  int
}

// NewWindow derives the boundaries in now's location. trendDays < 1 becomes 30.
func NewWindow(now time.Time, trendDays int) Window {
	if trendDays < 1 {
		trendDays = 30
	}
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return Window{
		Now:        now,
		MonthStart: time.Date(y, m, 1, 0, 0, 0, 0, now.Location()),
		DayStart:   day,
		TrendStart: day.AddDate(0, 0, -(trendDays - 1)),
		TrendDays:  trendDays,
	}
}

// EventCount is the raw registration tally for one event.
type EventCount struct {
	ID         uuid.UUID
	Title      string
	Registered int
	CheckedIn  int
}

// RawCounts is what the store reads for a dashboard. DailyRegistrations is
// keyed by whole days since Window.TrendStart.
type RawCounts struct {
	TotalEvents        int
	NewEventsThisMonth int
	TotalRegistrations int
	RegistrationsToday int
	CheckedIn          int
	Certificates       int
	DailyRegistrations map[int]int
	Events             []EventCount
}

// TrendPoint is one day of the registration trend.
type TrendPoint struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// EventRate is an event's check-in rate.
type EventRate struct {
	EventID              uuid.UUID `json:"event_id"`
	Title                string    `json:"title"`
	Registered           int       `json:"registered"`
	CheckedIn            int       `json:"checked_in"`
	AttendancePercentage float64   `json:"attendance_percentage"`
}

// Dashboard is the admin overview.
type Dashboard struct {
	TotalEvents           int          `json:"total_events"`
	NewEventsThisMonth    int          `json:"new_events_this_month"`
	TotalRegistrations    int          `json:"total_registrations"`
	RegistrationsToday    int          `json:"registrations_today"`
	TotalCheckedIn        int          `json:"total_checked_in"`
	CheckInPercentage     float64      `json:"check_in_percentage"`
	CertificatesGenerated int          `json:"certificates_generated"`
	NoShow                int          `json:"no_show"`
	Trend                 []TrendPoint `json:"trend"`
	EventRates            []EventRate  `json:"event_rates"`
	GeneratedAt           time.Time    `json:"generated_at"`
}

// Percentage returns part/total*100 rounded to one decimal, or 0 when total is 0.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

// Assemble builds the dashboard from raw counts. It has no side effects, so
// the same inputs always give the same dashboard.
func Assemble(raw RawCounts, w Window, topN int) Dashboard {
	d := Dashboard{
		TotalEvents:           raw.TotalEvents,
		NewEventsThisMonth:    raw.NewEventsThisMonth,
		TotalRegistrations:    raw.TotalRegistrations,
		RegistrationsToday:    raw.RegistrationsToday,
		TotalCheckedIn:        raw.CheckedIn,
		CheckInPercentage:     Percentage(raw.CheckedIn, raw.TotalRegistrations),
		CertificatesGenerated: raw.Certificates,
		NoShow:                max(raw.TotalRegistrations-raw.CheckedIn, 0),
		GeneratedAt:           w.Now,
	}

	d.Trend = make([]TrendPoint, w.TrendDays)
	for i := range w.TrendDays {
		day := w.TrendStart.AddDate(0, 0, i)
		d.Trend[i] = TrendPoint{
			Date:  day.Format(time.DateOnly),
			Label: day.Format("Jan 02"),
			Count: raw.DailyRegistrations[i],
		}
	}

	events := append([]EventCount(nil), raw.Events...)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Registered != events[j].Registered {
			return events[i].Registered > events[j].Registered
		}
		return events[i].Title < events[j].Title
	})
	if topN > 0 && len(events) > topN {
		events = events[:topN]
	}
	d.EventRates = make([]EventRate, len(events))
	for i, e := range events {
		d.EventRates[i] = EventRate{
			EventID:              e.ID,
			Title:                e.Title,
			Registered:           e.Registered,
			CheckedIn:            e.CheckedIn,
			AttendancePercentage: Percentage(e.CheckedIn, e.Registered),
		}
	}
	return d
}
