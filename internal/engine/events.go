package engine

// Event names carried on a workflow's local Bus. The transport layer
// (outside this package's scope) subscribes to these to drive the outgoing
// event plane toward a UI or debugger client.
const (
	EventNodeStatusChange   = "node_status_change"
	EventNodesOutput        = "nodes_output"
	EventMessage            = "message"
	EventExecutionPaused    = "execution_paused"
	EventExecutionResumed   = "execution_resumed"
	EventExecutionStepOver  = "execution_step_over"
	EventExecutionTerminated = "execution_terminated"
	EventOver               = "over"

	// EventEngine is the manager's own aggregated event name — every
	// event forwarded from an engine-local bus is re-emitted under this
	// name on the manager's bus, carrying an EngineEvent payload.
	EventEngine = "engine_event"
)

// NodeStatus is the value carried on a node_status_change event.
type NodeStatus string

const (
	NodeProcessing NodeStatus = "PROCESSING"
	NodeSucceeded  NodeStatus = "SUCCEEDED"
	NodeFailed     NodeStatus = "FAILED"
)

// NodeStatusChange is the payload of EventNodeStatusChange.
type NodeStatusChange struct {
	NodeID string
	Status NodeStatus
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// NodesOutput is the payload of EventNodesOutput, emitted by diagnostic
// nodes (print) to surface a human-readable value to the transport.
type NodesOutput struct {
	NodeID string
	Output string
}

// MessageLevel mirrors the original's "info"/"warning" message levels.
type MessageLevel string

const (
	MessageInfo    MessageLevel = "info"
	MessageWarning MessageLevel = "warning"
)

// Message is the payload of EventMessage, a free-form diagnostic emitted by
// nodes (branch chosen, loop started/ended, empty-value warnings).
type Message struct {
	NodeID string
	Level  MessageLevel
	Text   string
}

// PausedEvent is the payload of EventExecutionPaused.
type PausedEvent struct {
	NodeID string
	Reason string
}

// TerminatedEvent is the payload of EventExecutionTerminated.
type TerminatedEvent struct {
	NodeID string
}

// OverEvent is the payload of EventOver, the final event of a run.
type OverEvent struct {
	Message string
	Status  string // "success" | "failed"
}

func (e *Engine) emitMessage(nodeID string, level MessageLevel, text string) {
	e.bus.Emit(EventMessage, Message{NodeID: nodeID, Level: level, Text: text})
}

// EngineEvent wraps a bus payload with the id of the workflow it came
// from, the shape the manager's aggregated event stream forwards to a
// transport's single websocket connection regardless of which engine
// (main or a sub-workflow) is currently producing events.
type EngineEvent struct {
	WorkflowID string
	RunID      string
	Name       string
	Payload    interface{}
}
