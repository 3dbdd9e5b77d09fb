package engine

// WorkflowKind distinguishes the single main workflow from the sub-workflows
// it (transitively) calls. The manager enforces there is exactly one main.
type WorkflowKind string

const (
	WorkflowMain WorkflowKind = "main"
	WorkflowSub  WorkflowKind = "sub"
)

// Status is the lifecycle state the manager tracks per registered workflow.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ValueRef is a node config field: either an inline constant or a reference
// to another node's published slot, resolved at read time through the
// message store.
type ValueRef struct {
	Kind    string      `json:"kind"` // "constant" | "ref"
	Content interface{} `json:"content"`
}

// RefTarget decodes a ref-kind ValueRef's Content, which is always a
// two-element [nodeID, slotName] pair. A producer node id that ends in
// "_locals" refers to a node inside the caller's own inner subgraph and the
// suffix is stripped before lookup, matching the loop/call node convention
// for referencing loop-local instances.
type RefTarget struct {
	NodeID string
	Slot   string
}

// NodeDocument is one node's raw declaration inside a workflow document.
// Data carries whatever the node type needs: inputsValues, conditions,
// outputs.properties, batchFor, or (for loop nodes) the inner blocks/edges
// subgraph.
type NodeDocument struct {
	ID   string
	Type string
	Data map[string]interface{}
}

// Connection is one edge in the raw workflow document, as authored. Port is
// empty for single-exit node types and carries the branch key for condition
// nodes.
type Connection struct {
	SourceNodeID string
	SourcePort   string
	TargetNodeID string
}

// WorkflowDocument is the as-authored workflow: nodes plus the edges between
// them, before graph preparation resolves per-node ordered transitions.
type WorkflowDocument struct {
	ID          string
	Kind        WorkflowKind
	Nodes       []NodeDocument
	Connections []Connection
	// Schedule is an optional standard cron expression. When set, the
	// engine's Now() reports the schedule's next fire time (computed once
	// at engine construction) instead of wall-clock time, so a start
	// node's timestamp reflects when the run was supposed to fire rather
	// than when it happened to execute.
	Schedule string
}

// Transition is one outgoing edge of a node after preparation, in
// declaration order. Port is the branch key for condition nodes and the
// literal "next" for every other node type.
type Transition struct {
	Port   string
	Target string
}

// PreparedGraph is the id-indexed node map plus ordered outgoing-edge
// transitions the engine actually walks. Building it once up front (instead
// of re-scanning Connections on every step) is what graph preparation buys.
type PreparedGraph struct {
	WorkflowID string
	Nodes      map[string]NodeDocument
	Next       map[string][]Transition
	StartID    string
	HasEnd     bool
}

// PrepareGraph indexes a workflow document's nodes by id and groups its
// connections into per-source ordered transition lists. It fails closed if
// the workflow declares no start node or no end node — both are required
// before the engine will accept the workflow for execution. Whether an end
// node is reachable from the start node is not checked here.
func PrepareGraph(doc WorkflowDocument) (*PreparedGraph, error) {
	g := &PreparedGraph{
		WorkflowID: doc.ID,
		Nodes:      make(map[string]NodeDocument, len(doc.Nodes)),
		Next:       make(map[string][]Transition, len(doc.Nodes)),
	}
	for _, n := range doc.Nodes {
		g.Nodes[n.ID] = n
		if n.Type == "start" {
			g.StartID = n.ID
		}
		if n.Type == "end" {
			g.HasEnd = true
		}
	}
	for _, c := range doc.Connections {
		port := c.SourcePort
		if port == "" {
			port = "next"
		}
		g.Next[c.SourceNodeID] = append(g.Next[c.SourceNodeID], Transition{
			Port:   port,
			Target: c.TargetNodeID,
		})
	}
	if g.StartID == "" {
		return nil, errMissingStart(doc.ID)
	}
	if !g.HasEnd {
		return nil, errMissingEnd(doc.ID)
	}
	return g, nil
}

// CallFrame records who is waiting for a sub-workflow to return: the
// workflow manager pushes one when a call node invokes a sub-workflow and
// pops it when that sub-workflow reaches an end node (or fails).
type CallFrame struct {
	CallerWorkflowID string
	CallerNodeID     string
}
