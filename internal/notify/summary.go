package notify

import (
	"fmt"
	"strings"
	"time"
)

// BatchSummary describes a finished run for notification sinks
type BatchSummary struct {
	RunID        string        `json:"run_id"`
	Target       string        `json:"target"`
	BatchDir     string        `json:"batch_dir"`
	Status       string        `json:"status"`
	Observations int           `json:"observations"`
	Records      int           `json:"records"`
	FailedStages int           `json:"failed_stages"`
	Filters      []string      `json:"filters,omitempty"`
	SkyPortal    string        `json:"skyportal,omitempty"` // export path when written
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"-"`
	Error        string        `json:"error,omitempty"`
}

// Title is the one-line headline used by chat style services
func (s *BatchSummary) Title() string {
	return fmt.Sprintf("uvotredux %s: %s", s.Target, s.Status)
}

// Body renders the plain text message
func (s *BatchSummary) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target %s finished with status %s in %s.\n", s.Target, s.Status, s.Duration.Round(time.Second))
	fmt.Fprintf(&b, "Observations: %d, photometry records: %d", s.Observations, s.Records)
	if s.FailedStages > 0 {
		fmt.Fprintf(&b, ", failed stages: %d", s.FailedStages)
	}
	b.WriteString(".\n")
	if len(s.Filters) > 0 {
		fmt.Fprintf(&b, "Filters: %s\n", strings.Join(s.Filters, ", "))
	}
	if s.SkyPortal != "" {
		fmt.Fprintf(&b, "SkyPortal export: %s\n", s.SkyPortal)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.Error)
	}
	fmt.Fprintf(&b, "Output: %s", s.BatchDir)
	return b.String()
}
