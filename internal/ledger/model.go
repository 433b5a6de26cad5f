package ledger

import "time"

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Run is one pipeline or batch invocation for a target
type Run struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Target       string         `gorm:"index:idx_runs_target;size:128" json:"target"`
	BatchDir     string         `json:"batch_dir"`
	StartedAt    time.Time      `gorm:"index:idx_runs_started" json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	Status       string         `gorm:"size:16" json:"status"`
	Observations int            `json:"observations"`
	Records      int            `json:"records"`
	Message      string         `json:"message,omitempty"`
	Stages       []StageOutcome `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"stages,omitempty"`
}

// StageOutcome is the result of one stage for one observation and filter.
// Filter is empty for stages that are not per filter, such as xrt.
type StageOutcome struct {
	ID       uint          `gorm:"primaryKey" json:"-"`
	RunID    string        `gorm:"index:idx_stages_run;size:36" json:"run_id"`
	ObsID    string        `gorm:"size:16" json:"obs_id"`
	Filter   string        `gorm:"size:8" json:"filter,omitempty"`
	Stage    string        `gorm:"size:16" json:"stage"`
	Status   string        `gorm:"size:16" json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	// CreatedAt is filled by gorm on insert
	CreatedAt time.Time `json:"created_at"`
}
