package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/linkflow-ai/linkflow-ai/internal/platform/logger"
)

// Manager owns the registry of workflow documents and their engines,
// enforces the single-main invariant, and drives synchronous sub-workflow
// recursion: a call node's invocation suspends the caller's status,
// recurses straight into the callee's engine on the same goroutine, and
// restores the caller once the callee finishes — there is no scheduling or
// message-passing involved, matching the single-threaded cooperative
// execution model.
type Manager struct {
	mu              sync.Mutex
	docs            map[string]WorkflowDocument
	status          map[string]Status
	engines         map[string]*Engine
	mainID          string
	callStack       []CallFrame
	currentID       string
	registry        *Registry
	log             logger.Logger
	clock           Clock
	breakpoints     map[string][]string
	callMirror      sarama.SyncProducer
	callTopic       string
	globalBus       *Bus
	runID           string
	gateWaitWarning time.Duration
}

// SetGateWaitWarning propagates the configured gate-wait warning threshold
// to every engine this manager creates from here on (including ones
// already created — it also applies it to those, since a debug session
// can be reconfigured mid-run).
func (m *Manager) SetGateWaitWarning(d time.Duration) {
	m.mu.Lock()
	m.gateWaitWarning = d
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()
	for _, e := range engines {
		e.SetGateWaitWarning(d)
	}
}

// RunID returns the id generated for the current (or most recent) top-level
// Run/DebugRun invocation, empty if neither has been called yet. It is
// logged when the run starts and carried on every forwarded EngineEvent and
// call-mirror message, so a run can be correlated across the debug stream
// and any external Kafka sink.
func (m *Manager) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID
}

// forwardedEvents lists every event name an engine's local bus carries,
// the set the manager mirrors onto its aggregated Events() bus so a
// transport can subscribe once instead of re-subscribing each time a new
// sub-workflow engine is created.
var forwardedEvents = []string{
	EventNodeStatusChange, EventNodesOutput, EventMessage,
	EventExecutionPaused, EventExecutionResumed, EventExecutionStepOver,
	EventExecutionTerminated, EventOver,
}

// Events returns the manager's aggregated event bus: every engine it
// creates (main or sub-workflow) has its local events mirrored here,
// tagged with the originating workflow id.
func (m *Manager) Events() *Bus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.globalBus == nil {
		m.globalBus = NewBus(m.log)
	}
	return m.globalBus
}

func NewManager(registry *Registry, log logger.Logger, clock Clock) *Manager {
	if registry == nil {
		registry = Global()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Manager{
		docs:    make(map[string]WorkflowDocument),
		status:  make(map[string]Status),
		engines: make(map[string]*Engine),
		registry: registry,
		log:     log,
		clock:   clock,
	}
}

// SetCallMirror wires an optional Kafka sink that receives one message per
// sub-workflow call boundary (invocation and return), so an external
// system can observe call-stack activity without polling the debug
// websocket. A nil producer disables mirroring, which is the default.
func (m *Manager) SetCallMirror(producer sarama.SyncProducer, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callMirror = producer
	m.callTopic = topic
}

func (m *Manager) mirrorCallEvent(label, subworkflowID, callerNodeID string) {
	m.mu.Lock()
	producer, topic, runID := m.callMirror, m.callTopic, m.runID
	m.mu.Unlock()
	if producer == nil {
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(subworkflowID),
		Value: sarama.StringEncoder(label + " run=" + runID + " caller=" + callerNodeID + " subworkflow=" + subworkflowID),
	}
	if _, _, err := producer.SendMessage(msg); err != nil && m.log != nil {
		m.log.Warn("failed to mirror call event to kafka", "event", label, "subworkflow", subworkflowID, "error", err)
	}
}

// RegisterWorkflows adds a batch of workflow documents, enforcing that
// exactly one main workflow is registered: a batch is rejected when it has
// no main and none was registered before. Calling it twice with a second
// main is a programmer error.
func (m *Manager) RegisterWorkflows(docs []WorkflowDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hasMain := m.mainID != ""
	for _, d := range docs {
		if d.Kind == WorkflowMain {
			hasMain = true
		}
	}
	if !hasMain {
		return fmt.Errorf("no main workflow registered")
	}
	for _, d := range docs {
		if d.Kind == WorkflowMain {
			if m.mainID != "" && m.mainID != d.ID {
				return fmt.Errorf("a main workflow is already registered: %s", m.mainID)
			}
			m.mainID = d.ID
		}
		m.docs[d.ID] = d
		m.status[d.ID] = StatusPending
	}
	return nil
}

// Run executes the registered main workflow to completion in standard
// mode. seed is applied to the start node's message store before it
// runs, the same mechanism a call node uses to pass input into a
// sub-workflow.
func (m *Manager) Run(ctx context.Context, seed map[string]interface{}) (interface{}, error) {
	m.mu.Lock()
	mainID := m.mainID
	m.runID = uuid.NewString()
	runID := m.runID
	m.mu.Unlock()
	if mainID == "" {
		return nil, fmt.Errorf("no main workflow registered")
	}
	if m.log != nil {
		m.log.Info("starting workflow run", "run_id", runID, "workflow", mainID)
	}
	return m.executeWorkflow(ctx, mainID, seed)
}

// DebugRun executes the registered main workflow under debugger control.
// breakpoints maps workflow id to the node ids that pause execution inside
// it — a single debug session can set breakpoints in the main workflow and
// any of its sub-workflows up front, including ones not yet instantiated;
// they're applied lazily as each workflow's engine is created. Only the main
// workflow runs under DebugRun: a sub-workflow reached through a call node
// runs via executeWorkflow in standard mode, so breakpoints set on its
// engine do not pause it.
func (m *Manager) DebugRun(ctx context.Context, breakpoints map[string][]string) error {
	m.mu.Lock()
	mainID := m.mainID
	m.breakpoints = breakpoints
	m.runID = uuid.NewString()
	runID := m.runID
	m.mu.Unlock()
	if mainID == "" {
		return fmt.Errorf("no main workflow registered")
	}
	if m.log != nil {
		m.log.Info("starting debug run", "run_id", runID, "workflow", mainID)
	}

	eng, err := m.getOrCreateEngine(mainID)
	if err != nil {
		return err
	}
	m.setCurrent(mainID)
	m.setStatus(mainID, StatusRunning)
	eng.DebugRun(ctx)
	return nil
}

func (m *Manager) getOrCreateEngine(workflowID string) (*Engine, error) {
	m.mu.Lock()
	if e, ok := m.engines[workflowID]; ok {
		m.mu.Unlock()
		return e, nil
	}
	doc, ok := m.docs[workflowID]
	breakpoints := m.breakpoints[workflowID]
	gateWaitWarning := m.gateWaitWarning
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown workflow: %s", workflowID)
	}

	eng, err := NewEngine(doc, m.registry, m.log, m.clock)
	if err != nil {
		return nil, err
	}
	eng.SetManager(m)
	eng.SetGateWaitWarning(gateWaitWarning)
	if len(breakpoints) > 0 {
		eng.SetBreakpoints(breakpoints)
	}
	m.mirrorEngineEvents(eng)

	m.mu.Lock()
	m.engines[workflowID] = eng
	m.mu.Unlock()
	return eng, nil
}

// mirrorEngineEvents subscribes the manager's aggregated bus to every
// event name eng's local bus carries, so a transport listening on
// Events() sees events from whichever workflow (main or sub) is currently
// executing without re-subscribing per call.
func (m *Manager) mirrorEngineEvents(eng *Engine) {
	global := m.Events()
	workflowID := eng.WorkflowID()
	for _, name := range forwardedEvents {
		name := name
		eng.Bus().On(name, func(payload interface{}) {
			global.Emit(EventEngine, EngineEvent{WorkflowID: workflowID, RunID: m.RunID(), Name: name, Payload: payload})
		})
	}
}

func (m *Manager) setStatus(workflowID string, s Status) {
	m.mu.Lock()
	m.status[workflowID] = s
	m.mu.Unlock()
}

func (m *Manager) setCurrent(workflowID string) {
	m.mu.Lock()
	m.currentID = workflowID
	m.mu.Unlock()
}

func (m *Manager) executeWorkflow(ctx context.Context, workflowID string, seed map[string]interface{}) (interface{}, error) {
	eng, err := m.getOrCreateEngine(workflowID)
	if err != nil {
		return nil, err
	}
	m.setCurrent(workflowID)
	m.setStatus(workflowID, StatusRunning)

	result, err := eng.Run(ctx, seed)
	if err != nil {
		m.setStatus(workflowID, StatusFailed)
		return nil, err
	}
	m.setStatus(workflowID, StatusCompleted)
	return result, nil
}

// CallSubworkflow is invoked by a call node (through the engine's Host
// interface) to run a named sub-workflow to completion and return its
// terminal output. It pushes a call frame, recurses synchronously into the
// callee's engine, restores the caller's status on return, and reclaims
// the callee's node instances — on both success and failure.
func (m *Manager) CallSubworkflow(ctx context.Context, callerWorkflowID, callerNodeID, subworkflowID string, input interface{}) (interface{}, error) {
	m.mu.Lock()
	doc, ok := m.docs[subworkflowID]
	m.mu.Unlock()
	if !ok {
		return nil, errCall(callerNodeID, "unknown sub-workflow: "+subworkflowID, nil)
	}
	if doc.Kind != WorkflowSub {
		return nil, errCall(callerNodeID, subworkflowID+" is not a sub-workflow", nil)
	}

	m.mu.Lock()
	m.callStack = append(m.callStack, CallFrame{CallerWorkflowID: callerWorkflowID, CallerNodeID: callerNodeID})
	m.status[callerWorkflowID] = StatusPaused
	m.mu.Unlock()
	m.mirrorCallEvent("call.start", subworkflowID, callerNodeID)

	seed := map[string]interface{}{"input": input}
	result, err := m.executeWorkflow(ctx, subworkflowID, seed)

	m.mu.Lock()
	if n := len(m.callStack); n > 0 {
		m.callStack = m.callStack[:n-1]
	}
	m.currentID = callerWorkflowID
	m.status[callerWorkflowID] = StatusRunning
	m.mu.Unlock()
	m.mirrorCallEvent("call.return", subworkflowID, callerNodeID)

	m.cleanupSubworkflow(subworkflowID)

	if err != nil {
		return nil, errCall(callerNodeID, "sub-workflow failed: "+subworkflowID, err)
	}
	return result, nil
}

// cleanupSubworkflow reclaims a sub-workflow's engine and node instances.
// It never touches the main workflow's engine.
func (m *Manager) cleanupSubworkflow(workflowID string) {
	m.mu.Lock()
	kind := m.docs[workflowID].Kind
	eng := m.engines[workflowID]
	m.mu.Unlock()

	if kind != WorkflowSub {
		if m.log != nil {
			m.log.Warn("cleanupSubworkflow called on non-sub workflow, skipping", "workflow", workflowID)
		}
		return
	}
	if eng != nil {
		eng.CleanupAllNodes()
	}
	m.mu.Lock()
	delete(m.engines, workflowID)
	m.mu.Unlock()
}

// currentEngine returns the engine for whichever workflow is on top of the
// call stack (or the main workflow if no call is in flight) — the target
// of every debug-command routed in from the control plane.
func (m *Manager) currentEngine() (*Engine, bool) {
	m.mu.Lock()
	id := m.currentID
	m.mu.Unlock()
	if id == "" {
		return nil, false
	}
	m.mu.Lock()
	e, ok := m.engines[id]
	m.mu.Unlock()
	return e, ok
}

func (m *Manager) PauseCurrent() {
	if e, ok := m.currentEngine(); ok {
		e.Pause()
	}
}

func (m *Manager) ResumeCurrent() {
	if e, ok := m.currentEngine(); ok {
		e.Resume()
	}
}

func (m *Manager) StepCurrent(ctx context.Context) {
	if e, ok := m.currentEngine(); ok {
		e.StepOver(ctx)
	}
}

func (m *Manager) TerminateCurrent() {
	for _, e := range m.snapshotEngines() {
		e.Terminate()
	}
}

func (m *Manager) snapshotEngines() []*Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		out = append(out, e)
	}
	return out
}

// GetStatus reports a registered workflow's current lifecycle status.
func (m *Manager) GetStatus(workflowID string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.status[workflowID]
	return s, ok
}

// GetAllStatus returns a snapshot of every registered workflow's status.
func (m *Manager) GetAllStatus() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}

// MemoryUsageSummary reports the node-instance count per currently
// instantiated engine, the introspection the call stack's memory
// reclamation is checked against.
func (m *Manager) MemoryUsageSummary() map[string]int {
	m.mu.Lock()
	engines := make(map[string]*Engine, len(m.engines))
	for k, v := range m.engines {
		engines[k] = v
	}
	m.mu.Unlock()

	out := make(map[string]int, len(engines))
	for id, e := range engines {
		out[id] = e.InstanceCount()
	}
	return out
}
