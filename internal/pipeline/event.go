package pipeline

import "github.com/renlocalizer/renlocalizer/internal/model"

// EventKind discriminates the union spec.md §9 calls for: "the event shape
// is the union of StageChanged | ProgressUpdated | LogMessage |
// WarningRaised | Finished". Go has no sum types, so Event carries a Kind
// tag and only the fields that Kind defines are meaningful.
type EventKind string

const (
	EventStageChanged EventKind = "stage_changed"
	EventProgress     EventKind = "progress_updated"
	EventLog          EventKind = "log_message"
	EventWarning      EventKind = "show_warning"
	EventFinished     EventKind = "finished"
)

// Event is the single value type the orchestrator writes to its event
// channel; callers switch on Kind to learn which fields apply.
type Event struct {
	Kind EventKind

	// EventStageChanged
	Stage   model.Stage
	Message string

	// EventProgress
	Current int
	Total   int
	Text    string

	// EventLog
	Level string

	// EventWarning
	Title string

	// EventFinished
	Result *model.PipelineResult
}
