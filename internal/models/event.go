package models

// EventKind names a pipeline progress event.
type EventKind string

const (
	EventStage    EventKind = "stage"
	EventPages    EventKind = "pages"
	EventPageDone EventKind = "page_done"
	EventCbzReady EventKind = "cbz_ready"
	EventFrame    EventKind = "frame"
	EventLog      EventKind = "log"
)

// Event is emitted by pipeline components and folded into a job by the
// job state machine. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Stage   string
	Message string
	Index   int
	Total   int
	Label   string
	Labels  []string
	Path    string
}

// Reporter receives pipeline events for one job.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// NopReporter drops every event.
var NopReporter Reporter = ReporterFunc(func(Event) {})

// StageEvent is shorthand for a stage transition with a message.
func StageEvent(stage, message string) Event {
	return Event{Kind: EventStage, Stage: stage, Message: message}
}
