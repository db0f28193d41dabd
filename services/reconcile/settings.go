package reconcile

import (
	"fmt"
	"time"
)

// WritePolicy controls when the recomputer writes a space.
type WritePolicy string

const (
	// WriteOnChange writes only when the derived value differs from the stored one.
	WriteOnChange WritePolicy = "on_change"
	WriteAlways   WritePolicy = "always"
)

// Pass names a reconciliation pass.
type Pass string

const (
	PassFinalize  Pass = "finalize"
	PassRecompute Pass = "recompute"
)

// ParsePass validates a pass name.
func ParsePass(s string) (Pass, error) {
	switch Pass(s) {
	case PassFinalize, PassRecompute:
		return Pass(s), nil
	}
	return "", fmt.Errorf("unknown pass %q", s)
}

// MaxBatchWrites is the largest atomic write group the stores accept.
const MaxBatchWrites = 500

// Settings is the unified configuration shared by both passes.
type Settings struct {
	Hours           Hours
	FinalizeWindow  Window
	RecomputeWindow Window
	// LookbackDays extends the finalizer's day range backwards to catch up
	// reservations left occupying by missed ticks.
	LookbackDays int
	// RecomputeOnFinalized makes change detection react to finalized
	// reservations as well as cancelled ones.
	RecomputeOnFinalized bool
	WritePolicy          WritePolicy
	Concurrency          int
	QueryLimit           int
	MaxBatch             int
	ResourceCollection   string
	Timeout              time.Duration
}

// DefaultSettings mirrors the production deployment.
func DefaultSettings() Settings {
	loc, err := time.LoadLocation("America/Guayaquil")
	if err != nil {
		loc = time.FixedZone("ECT", -5*60*60)
	}
	return Settings{
		Hours: Hours{
			Location:   loc,
			Open:       ClockTime{Hour: 7},
			Ceiling:    ClockTime{Hour: 18},
			DefaultEnd: ClockTime{Hour: 18},
		},
		FinalizeWindow:     Window{Start: ClockTime{Hour: 7}, End: EndOfDay},
		RecomputeWindow:    Window{Start: ClockTime{Hour: 18, Minute: 10}, End: EndOfDay},
		WritePolicy:        WriteOnChange,
		Concurrency:        8,
		QueryLimit:         500,
		MaxBatch:           MaxBatchWrites,
		ResourceCollection: "espacios",
		Timeout:            50 * time.Second,
	}
}

// Validate checks the settings for internal consistency.
func (s Settings) Validate() error {
	if s.Hours.Location == nil {
		return fmt.Errorf("time zone is required")
	}
	if s.Hours.Ceiling.Minutes() > EndOfDay.Minutes() || s.Hours.Ceiling.Minutes() <= 0 {
		return fmt.Errorf("operating-hours ceiling %s out of range", s.Hours.Ceiling)
	}
	if s.Hours.Open.Minutes() >= s.Hours.Ceiling.Minutes() {
		return fmt.Errorf("operating hours start %s must precede ceiling %s", s.Hours.Open, s.Hours.Ceiling)
	}
	if s.Hours.DefaultEnd.Minutes() > s.Hours.Ceiling.Minutes() {
		return fmt.Errorf("default end time %s is later than ceiling %s", s.Hours.DefaultEnd, s.Hours.Ceiling)
	}
	if s.LookbackDays < 0 {
		return fmt.Errorf("lookback days must not be negative")
	}
	switch s.WritePolicy {
	case WriteOnChange, WriteAlways:
	default:
		return fmt.Errorf("unknown write policy %q", s.WritePolicy)
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if s.QueryLimit < 1 {
		return fmt.Errorf("query limit must be at least 1")
	}
	// A finalization and the space it frees share a batch.
	if s.MaxBatch < 2 || s.MaxBatch > MaxBatchWrites {
		return fmt.Errorf("max batch must be between 2 and %d", MaxBatchWrites)
	}
	if s.ResourceCollection == "" {
		return fmt.Errorf("space collection name is required")
	}
	return nil
}

// Window returns the admission window of pass.
func (s Settings) Window(p Pass) Window {
	if p == PassRecompute {
		return s.RecomputeWindow
	}
	return s.FinalizeWindow
}
