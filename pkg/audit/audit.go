// Package audit provides components for capturing, storing, and querying
// audit logs: the structure of an audit entry, actions, outcomes, and
// interfaces for different logging backends.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Action represents the type of action performed in an audit event. A
// simulation engine only ever runs or post-processes a run, so the
// taxonomy is narrower than a general-purpose service's CRUD/auth actions.
type Action string

const (
	// ActionSolve indicates a scheduler run (one or more timestep solves).
	ActionSolve Action = "SOLVE"
	// ActionAnalyze indicates a post-run analysis or report export.
	ActionAnalyze Action = "ANALYZE"
)

// Outcome represents the result of an audit action.
type Outcome string

const (
	// OutcomeSuccess indicates that the action completed successfully.
	OutcomeSuccess Outcome = "SUCCESS"
	// OutcomeFailure indicates that the action failed due to an error.
	OutcomeFailure Outcome = "FAILURE"
)

// Entry represents a single audit log record for one scheduler run or
// analysis pass.
type Entry struct {
	ID            string         `json:"id"`                       // Unique identifier for the audit entry.
	Timestamp     time.Time      `json:"timestamp"`                // Time when the event occurred.
	Service       string         `json:"service"`                  // Name of the service that generated the audit event.
	Method        string         `json:"method"`                   // Specific entry point invoked (e.g. "Run").
	Action        Action         `json:"action"`                   // Type of action performed.
	Outcome       Outcome        `json:"outcome"`                  // Result of the action.
	RunID         string         `json:"run_id,omitempty"`         // scheduler.Report.RunID for this run.
	ScenarioCount int            `json:"scenario_count,omitempty"` // Number of scenarios enumerated for this run.
	StepsRun      int            `json:"steps_run,omitempty"`      // Timesteps completed before return/cancellation.
	Cancelled     bool           `json:"cancelled,omitempty"`      // Whether the run returned via context cancellation.
	DurationMs    int64          `json:"duration_ms"`              // Duration of the operation in milliseconds.
	ErrorCode     string         `json:"error_code,omitempty"`     // apperror.Code if the outcome is FAILURE.
	ErrorMessage  string         `json:"error_message,omitempty"`  // Human-readable error message if the outcome is FAILURE.
	Metadata      map[string]any `json:"metadata,omitempty"`       // Additional arbitrary key-value metadata.
}

// Logger is the interface that audit loggers must implement.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, entry *Entry) error

	// Query retrieves audit logs based on a filter.
	// Not all loggers may support querying.
	Query(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// Close shuts down the logger and releases any resources.
	Close() error
}

// QueryFilter defines criteria for querying audit log entries.
type QueryFilter struct {
	StartTime *time.Time // Start time for the query range (inclusive).
	EndTime   *time.Time // End time for the query range (exclusive).
	Service   string     // Filter by service name.
	Method    string     // Filter by method or endpoint.
	Action    Action     // Filter by action type.
	Outcome   Outcome    // Filter by action outcome.
	RunID     string     // Filter by run ID.
	Limit     int        // Maximum number of results to return.
	Offset    int        // Number of results to skip.
}

// Config holds configuration parameters for the audit logger.
type Config struct {
	Enabled     bool          `koanf:"enabled"`      // If true, auditing is active.
	Backend     string        `koanf:"backend"`      // The logging backend to use ("stdout" or "file").
	FilePath    string        `koanf:"file_path"`    // Path to the log file, if backend is "file".
	BufferSize  int           `koanf:"buffer_size"`  // Size of the internal buffer for asynchronous logging.
	FlushPeriod time.Duration `koanf:"flush_period"` // Period to flush buffered entries to the backend.
}

// DefaultConfig returns a Config struct with default values.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Backend:     "stdout",
		BufferSize:  1000,
		FlushPeriod: 5 * time.Second,
	}
}

// Builder provides a fluent API for constructing an Entry object.
type Builder struct {
	entry *Entry
}

// NewEntry creates and returns a new Builder initialized with a timestamp and an empty metadata map.
func NewEntry() *Builder {
	return &Builder{
		entry: &Entry{
			Timestamp: time.Now(),
			Metadata:  make(map[string]any),
		},
	}
}

// Service sets the service name for the audit entry.
func (b *Builder) Service(s string) *Builder {
	b.entry.Service = s
	return b
}

// Method sets the entry point for the audit entry.
func (b *Builder) Method(m string) *Builder {
	b.entry.Method = m
	return b
}

// Action sets the action type for the audit entry.
func (b *Builder) Action(a Action) *Builder {
	b.entry.Action = a
	return b
}

// Outcome sets the outcome for the audit entry.
func (b *Builder) Outcome(o Outcome) *Builder {
	b.entry.Outcome = o
	return b
}

// Run sets the run ID and enumerated scenario count for the audit entry.
func (b *Builder) Run(runID string, scenarioCount int) *Builder {
	b.entry.RunID = runID
	b.entry.ScenarioCount = scenarioCount
	return b
}

// Progress records how far a run got: steps completed and whether it
// returned via cancellation rather than running to completion.
func (b *Builder) Progress(stepsRun int, cancelled bool) *Builder {
	b.entry.StepsRun = stepsRun
	b.entry.Cancelled = cancelled
	return b
}

// Duration sets the duration of the operation in milliseconds for the audit entry.
func (b *Builder) Duration(d time.Duration) *Builder {
	b.entry.DurationMs = d.Milliseconds()
	return b
}

// Error sets the error code and message if the outcome was a failure.
func (b *Builder) Error(code, message string) *Builder {
	b.entry.ErrorCode = code
	b.entry.ErrorMessage = message
	return b
}

// Meta adds a key-value pair to the metadata map of the audit entry.
func (b *Builder) Meta(key string, value any) *Builder {
	b.entry.Metadata[key] = value
	return b
}

// Build finalizes the Entry construction and returns the Entry object.
// It generates a unique ID if one is not already set.
func (b *Builder) Build() *Entry {
	if b.entry.ID == "" {
		b.entry.ID = generateID()
	}
	return b.entry
}

// MarshalJSON customizes the JSON serialization of an Entry.
func (e *Entry) MarshalJSON() ([]byte, error) {
	type Alias Entry
	return json.Marshal((*Alias)(e))
}

// generateID creates a unique ID for an audit entry, combining a timestamp and a random string.
func generateID() string {
	return time.Now().Format("20060102150405") + "-" + randomString(8)
}

// randomString generates a random alphanumeric string of a given length.
func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[time.Now().UnixNano()%int64(len(letters))]
	}
	return string(b)
}
