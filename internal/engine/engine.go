package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/linkflow-ai/linkflow-ai/internal/platform/logger"
)

var _ Host = (*Engine)(nil)

// Engine drives a single prepared graph to completion. It owns the node
// instances created over the lifetime of one workflow invocation, the
// pause/resume gate, breakpoints, and the local event bus those node
// instances and the transport layer both observe.
//
// An Engine never spawns its own goroutine for node bodies — the whole run
// is driven by whichever goroutine calls Run/DebugRun, matching the
// single-threaded cooperative model: sub-workflow calls recurse
// synchronously through the Manager rather than starting new goroutines.
type Engine struct {
	mu          sync.Mutex
	workflowID  string
	graph       *PreparedGraph
	registry    *Registry
	bus         *Bus
	instances   map[string]Node
	currentID   string
	breakpoints map[string]bool
	gate        *gate
	terminated  bool
	stepOnce    bool
	log             logger.Logger
	manager         *Manager
	clock           Clock
	gateWaitWarning time.Duration
}

// SetGateWaitWarning configures how long DebugRun will wait at a paused
// gate before logging a warning, instead of waiting silently forever. Zero
// (the default) disables the warning.
func (e *Engine) SetGateWaitWarning(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gateWaitWarning = d
}

// NewEngine prepares doc's graph and builds an engine ready to Run or
// DebugRun it. registry defaults to the global registry when nil.
func NewEngine(doc WorkflowDocument, registry *Registry, log logger.Logger, clock Clock) (*Engine, error) {
	graph, err := PrepareGraph(doc)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = Global()
	}
	if clock == nil {
		clock = SystemClock
	}
	if clock == SystemClock && doc.Schedule != "" {
		if sched, parseErr := cron.ParseStandard(doc.Schedule); parseErr == nil {
			clock = FixedClock(sched.Next(time.Now()))
		} else if log != nil {
			log.Warn("ignoring malformed workflow schedule", "workflow", doc.ID, "schedule", doc.Schedule, "error", parseErr)
		}
	}
	return &Engine{
		workflowID:  doc.ID,
		graph:       graph,
		registry:    registry,
		bus:         NewBus(log),
		instances:   make(map[string]Node),
		breakpoints: make(map[string]bool),
		gate:        newGate(),
		log:         log,
		clock:       clock,
	}, nil
}

// Bus returns the engine's local lifecycle event bus.
func (e *Engine) Bus() *Bus { return e.bus }

// WorkflowID returns the id of the workflow document this engine runs.
func (e *Engine) WorkflowID() string { return e.workflowID }

// SetManager wires the engine to the workflow manager that owns it, giving
// call nodes somewhere to route CallSubworkflow.
func (e *Engine) SetManager(m *Manager) { e.manager = m }

// SetBreakpoints replaces the set of node ids that pause execution before
// they run, under DebugRun.
func (e *Engine) SetBreakpoints(nodeIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breakpoints = make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		e.breakpoints[id] = true
	}
}

// Pause requests the run stop before its next node. It takes effect at the
// next gate check, never mid-node.
func (e *Engine) Pause() { e.gate.pause() }

// Resume releases a paused run.
func (e *Engine) Resume() { e.gate.resume() }

// Paused reports whether the engine is currently blocked at the gate.
func (e *Engine) Paused() bool { return e.gate.paused() }

// Terminate marks the run for termination and wakes it if currently
// paused, so the loop observes termination instead of blocking forever.
func (e *Engine) Terminate() {
	e.mu.Lock()
	e.terminated = true
	e.mu.Unlock()
	e.gate.resume()
}

func (e *Engine) isTerminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

// StepOver resumes a paused run for exactly one node, then re-pauses it
// before the next. Unlike a sleep-and-repause approach, the re-pause is
// applied by the DebugRun loop itself once it has confirmed the stepped
// node finished and determined its successor — same goroutine, no timing
// dependency — so it can't race ahead into a second node before pausing
// again.
func (e *Engine) StepOver(ctx context.Context) {
	e.mu.Lock()
	e.stepOnce = true
	e.mu.Unlock()
	e.gate.resume()
}

func (e *Engine) currentNodeID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentID
}

func (e *Engine) setCurrentNodeID(id string) {
	e.mu.Lock()
	e.currentID = id
	e.mu.Unlock()
}

// Run executes the graph from its start node in standard (non-debug) mode:
// the first node failure aborts the run and its error propagates to the
// caller. It returns the last node's Run result, which is what a call node
// receives as a sub-workflow's output.
func (e *Engine) Run(ctx context.Context, seed map[string]interface{}) (interface{}, error) {
	e.setCurrentNodeID(e.graph.StartID)
	var last interface{}
	var lastNode Node

	for {
		id := e.currentNodeID()
		if id == "" {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		node, err := e.getOrCreate(id, false)
		if err != nil {
			return nil, err
		}
		if id == e.graph.StartID {
			for k, v := range seed {
				node.SetMessage(k, v)
			}
		}

		e.bus.Emit(EventNodeStatusChange, NodeStatusChange{NodeID: id, Status: NodeProcessing})
		result, err := node.Run(ctx)
		if err != nil {
			e.bus.Emit(EventNodeStatusChange, NodeStatusChange{NodeID: id, Status: NodeFailed, Error: err.Error()})
			return nil, errNodeExecution(id, err)
		}
		last = result
		lastNode = node
		e.bus.Emit(EventNodeStatusChange, NodeStatusChange{NodeID: id, Status: NodeSucceeded, Result: result})

		next, ok := node.GetNext()
		if !ok {
			e.setCurrentNodeID("")
			break
		}
		e.setCurrentNodeID(next)
	}

	if lastNode == nil || lastNode.Type() != "end" {
		err := errDidNotEndAtEnd(lastNodeID(lastNode))
		e.bus.Emit(EventOver, OverEvent{Message: err.Error(), Status: "failed"})
		return nil, err
	}

	e.bus.Emit(EventOver, OverEvent{Message: "Workflow finished.", Status: "success"})
	return last, nil
}

// lastNodeID reports the id of the last node that ran, or "" if the graph
// had no start node to begin with.
func lastNodeID(n Node) string {
	if n == nil {
		return ""
	}
	return n.ID()
}

// DebugRun executes the graph under debugger control: breakpoints pause
// the run before the node they name, pause()/resume() gate every
// iteration, and a node failure pauses the run (reason "Error occurred")
// instead of aborting it, so the caller can inspect state and resume or
// terminate.
func (e *Engine) DebugRun(ctx context.Context) {
	e.setCurrentNodeID(e.graph.StartID)
	var lastNode Node

	for {
		if e.isTerminated() {
			e.bus.Emit(EventExecutionTerminated, TerminatedEvent{NodeID: e.currentNodeID()})
			return
		}
		id := e.currentNodeID()
		if id == "" {
			break
		}

		e.mu.Lock()
		isBreakpoint := e.breakpoints[id]
		e.mu.Unlock()
		if isBreakpoint {
			e.gate.pause()
			e.bus.Emit(EventExecutionPaused, PausedEvent{NodeID: id, Reason: "Breakpoint hit"})
		}

		e.mu.Lock()
		gateWaitWarning := e.gateWaitWarning
		e.mu.Unlock()
		onWarn := func() {
			if e.log != nil {
				e.log.Warn("engine paused longer than expected", "workflow", e.workflowID, "node", id)
			}
		}
		if err := e.gate.wait(ctx, gateWaitWarning, onWarn); err != nil {
			return
		}
		if e.isTerminated() {
			e.bus.Emit(EventExecutionTerminated, TerminatedEvent{NodeID: id})
			return
		}

		node, err := e.getOrCreate(id, false)
		if err != nil {
			e.bus.Emit(EventNodeStatusChange, NodeStatusChange{NodeID: id, Status: NodeFailed, Error: err.Error()})
			e.gate.pause()
			e.bus.Emit(EventExecutionPaused, PausedEvent{NodeID: id, Reason: "Error occurred"})
			continue
		}

		e.bus.Emit(EventNodeStatusChange, NodeStatusChange{NodeID: id, Status: NodeProcessing})
		result, err := node.Run(ctx)
		if err != nil {
			e.bus.Emit(EventNodeStatusChange, NodeStatusChange{NodeID: id, Status: NodeFailed, Error: err.Error()})
			e.gate.pause()
			e.bus.Emit(EventExecutionPaused, PausedEvent{NodeID: id, Reason: "Error occurred"})
			continue
		}
		lastNode = node
		e.bus.Emit(EventNodeStatusChange, NodeStatusChange{NodeID: id, Status: NodeSucceeded, Result: result})

		next, ok := node.GetNext()
		if !ok {
			e.setCurrentNodeID("")
			break
		}
		e.setCurrentNodeID(next)

		e.mu.Lock()
		step := e.stepOnce
		e.stepOnce = false
		e.mu.Unlock()
		if step {
			e.gate.pause()
			e.bus.Emit(EventExecutionPaused, PausedEvent{NodeID: next, Reason: "Step mode"})
		}
	}

	if lastNode == nil || lastNode.Type() != "end" {
		err := errDidNotEndAtEnd(lastNodeID(lastNode))
		e.bus.Emit(EventOver, OverEvent{Message: err.Error(), Status: "failed"})
		return
	}

	e.bus.Emit(EventOver, OverEvent{Message: "Workflow finished.", Status: "success"})
}

// CleanupAllNodes discards every cached node instance, the memory
// reclamation step a workflow manager performs after a sub-workflow
// completes (or fails).
func (e *Engine) CleanupAllNodes() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range e.instances {
		n.Cleanup()
	}
	e.instances = make(map[string]Node)
}

// InstanceCount reports how many node instances are currently cached —
// used by the manager's memory usage snapshot.
func (e *Engine) InstanceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}

func (e *Engine) getOrCreate(id string, loopInternal bool) (Node, error) {
	e.mu.Lock()
	if n, ok := e.instances[id]; ok {
		e.mu.Unlock()
		return n, nil
	}
	doc, ok := e.graph.Nodes[id]
	e.mu.Unlock()
	if !ok {
		return nil, errNodeExecution(id, errTypeViolation(id, "unknown node id"))
	}
	node, err := e.registry.New(doc, e.graph.Next[id], e, loopInternal)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.instances[id] = node
	e.mu.Unlock()
	return node, nil
}

// --- Host implementation -------------------------------------------------

func (e *Engine) AskMessage(nodeID, slot string) (interface{}, error) {
	nodeID = strings.TrimSuffix(nodeID, "_locals")
	e.mu.Lock()
	n, ok := e.instances[nodeID]
	e.mu.Unlock()
	if !ok {
		return nil, errMissingInput(nodeID, slot)
	}
	v, ok := n.GetMessage(slot)
	if !ok {
		return nil, errMissingInput(nodeID, slot)
	}
	return v, nil
}

func (e *Engine) GetNodeInfo(nodeID string) (NodeDocument, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.graph.Nodes[nodeID]
	return doc, ok
}

func (e *Engine) CreateNode(doc NodeDocument, next []Transition, loopInternal bool) (Node, error) {
	e.mu.Lock()
	if n, ok := e.instances[doc.ID]; ok {
		e.mu.Unlock()
		return n, nil
	}
	e.mu.Unlock()

	node, err := e.registry.New(doc, next, e, loopInternal)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.instances[doc.ID] = node
	e.mu.Unlock()
	return node, nil
}

func (e *Engine) CleanupNode(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n, ok := e.instances[nodeID]; ok {
		n.Cleanup()
		delete(e.instances, nodeID)
	}
}

func (e *Engine) UpdateMessage(nodeID, slot string, value interface{}) {
	e.mu.Lock()
	n, ok := e.instances[nodeID]
	e.mu.Unlock()
	if ok {
		n.SetMessage(slot, value)
	}
}

func (e *Engine) CallSubworkflow(ctx context.Context, callerNodeID, subworkflowID string, input interface{}) (interface{}, error) {
	if e.manager == nil {
		return nil, errCall(callerNodeID, "call nodes require a workflow manager", nil)
	}
	return e.manager.CallSubworkflow(ctx, e.workflowID, callerNodeID, subworkflowID, input)
}

// Clock exposes the injected clock to node constructors (the start node
// uses it to publish a deterministic timestamp under test).
func (e *Engine) Clock() Clock { return e.clock }

// Now satisfies Host: it reads the engine's injected clock.
func (e *Engine) Now() time.Time { return e.clock.Now() }
