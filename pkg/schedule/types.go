package schedule

import "time"

// Kind represents the type of schedule
type Kind string

const (
	KindAt    Kind = "at"
	KindEvery Kind = "every"
	KindCron  Kind = "cron"
)

// InjectionKind determines which interrupt queue a fired rule feeds
type InjectionKind string

const (
	// InjectFollowUp queues the prompt for when the agent goes idle.
	InjectFollowUp InjectionKind = "follow_up"
	// InjectSteering interrupts the current turn.
	InjectSteering InjectionKind = "steering"
)

// Spec represents a time specification for rule execution
type Spec struct {
	Kind Kind `json:"kind"`

	// For "at" rules
	At string `json:"at,omitempty"` // ISO 8601 timestamp

	// For "every" rules
	EveryMs int64 `json:"every_ms,omitempty"`

	// For "cron" rules
	Expr string `json:"expr,omitempty"` // 5-field cron expression
	TZ   string `json:"tz,omitempty"`   // optional timezone
}

// RuleState tracks runtime state of a rule
type RuleState struct {
	NextRunAtMs *int64 `json:"next_run_at_ms,omitempty"`
	LastRunAtMs *int64 `json:"last_run_at_ms,omitempty"`
	LastStatus  string `json:"last_status,omitempty"` // "ok" or "error"
	LastError   string `json:"last_error,omitempty"`
}

// Rule injects a prompt into a running agent on a schedule
type Rule struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Enabled        bool          `json:"enabled"`
	DeleteAfterRun bool          `json:"delete_after_run,omitempty"`
	Spec           Spec          `json:"spec"`
	Prompt         string        `json:"prompt"`
	Inject         InjectionKind `json:"inject"`
	CreatedAtMs    int64         `json:"created_at_ms"`
	UpdatedAtMs    int64         `json:"updated_at_ms"`
	State          RuleState     `json:"state"`
}

// Now returns the current time in unix milliseconds
func Now() int64 {
	return time.Now().UnixMilli()
}

// Int64Ptr returns a pointer to the given int64
func Int64Ptr(v int64) *int64 {
	return &v
}
