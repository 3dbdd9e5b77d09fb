package engine

import (
	"context"
	"strings"
	"time"
)

// Node is the contract every node type implements. Run executes the node's
// body once; GetNext reports which outgoing transition to follow (ok=false
// terminates this execution path, which is legal — not an error — for
// condition nodes with no matching branch and for nodes falling off the end
// of a loop body). GetMessage/SetMessage are the node's own slot store,
// read by downstream nodes through value references. Cleanup releases any
// per-invocation state; it is a no-op for nodes that don't need it.
type Node interface {
	ID() string
	Type() string
	Run(ctx context.Context) (interface{}, error)
	GetNext() (string, bool)
	GetMessage(slot string) (interface{}, bool)
	SetMessage(slot string, value interface{})
	Cleanup()
}

// Host is the set of engine operations a node body needs that used to be
// routed through the bus as ad-hoc RPC (askMessage, getNodeInfo,
// createNode, cleanupNode, updateMessage). Splitting these into direct
// method calls on an injected interface, instead of overloading the
// lifecycle event bus with request/response semantics, is the split called
// for once an event name can have more than one subscriber.
type Host interface {
	// AskMessage resolves a value reference: it reads slot from the
	// message store of the node identified by nodeID. nodeID may carry a
	// "_locals" suffix (stripped before lookup) when the reference
	// targets a node inside the caller's own inner subgraph.
	AskMessage(nodeID, slot string) (interface{}, error)

	// GetNodeInfo returns the raw declaration of nodeID in the current
	// workflow document — used by the loop node to fetch its own
	// inner blocks/edges.
	GetNodeInfo(nodeID string) (NodeDocument, bool)

	// CreateNode instantiates (or returns the cached instance of) a node
	// from its declaration, registering it with the engine so future
	// AskMessage/CleanupNode calls can find it. loopInternal marks
	// instances created for a loop node's inner subgraph.
	CreateNode(doc NodeDocument, next []Transition, loopInternal bool) (Node, error)

	// CleanupNode discards a single cached instance (used between loop
	// iterations to force fresh inner-node state per item).
	CleanupNode(nodeID string)

	// UpdateMessage overwrites a slot on an already-created node instance
	// — the mechanism the relocation node uses to let a downstream node
	// correct an upstream producer's published value.
	UpdateMessage(nodeID, slot string, value interface{})

	// Bus returns the engine's local lifecycle event bus.
	Bus() *Bus

	// CallSubworkflow invokes a sub-workflow by id synchronously and
	// returns its terminal output value to the caller node.
	CallSubworkflow(ctx context.Context, callerNodeID, subworkflowID string, input interface{}) (interface{}, error)

	// Now returns the engine's clock reading, used by the start node to
	// publish a deterministic timestamp under test.
	Now() time.Time
}

// ResolveRef decodes a ValueRef into its RefTarget form, stripping a
// trailing "_locals" suffix from the node id, which marks a reference into
// the loop/call node's own inner subgraph rather than the outer workflow.
func ResolveRef(v ValueRef) (RefTarget, bool) {
	if v.Kind != "ref" {
		return RefTarget{}, false
	}
	pair, ok := v.Content.([]interface{})
	if !ok || len(pair) != 2 {
		if s, ok := v.Content.([]string); ok && len(s) == 2 {
			pair = []interface{}{s[0], s[1]}
		} else {
			return RefTarget{}, false
		}
	}
	nodeID, ok1 := pair[0].(string)
	slot, ok2 := pair[1].(string)
	if !ok1 || !ok2 {
		return RefTarget{}, false
	}
	nodeID = strings.TrimSuffix(nodeID, "_locals")
	return RefTarget{NodeID: nodeID, Slot: slot}, true
}

// ResolveValue resolves a ValueRef against host, returning the constant
// content directly or dereferencing it through AskMessage.
func ResolveValue(host Host, v ValueRef) (interface{}, error) {
	if v.Kind != "ref" {
		return v.Content, nil
	}
	target, ok := ResolveRef(v)
	if !ok {
		return nil, errTypeViolation("", "malformed value reference")
	}
	return host.AskMessage(target.NodeID, target.Slot)
}

// Base is embedded by every concrete node type. It implements the
// bookkeeping every node shares: id/type, declared transitions, the
// resolved next-node id, the loop-internal flag, and a slot message store.
// Concrete types still implement Run and their own updateNext policy.
type Base struct {
	id             string
	typ            string
	transitions    []Transition
	next           string
	hasNext        bool
	isLoopInternal bool
	host           Host
	messages       map[string]interface{}
}

func NewBase(id, typ string, transitions []Transition, host Host, loopInternal bool) Base {
	return Base{
		id:             id,
		typ:            typ,
		transitions:    transitions,
		host:           host,
		isLoopInternal: loopInternal,
		messages:       make(map[string]interface{}),
	}
}

func (b *Base) ID() string   { return b.id }
func (b *Base) Type() string { return b.typ }

func (b *Base) GetNext() (string, bool) { return b.next, b.hasNext }

func (b *Base) setNext(id string) {
	b.next, b.hasNext = id, true
}

func (b *Base) clearNext() {
	b.next, b.hasNext = "", false
}

func (b *Base) GetMessage(slot string) (interface{}, bool) {
	v, ok := b.messages[slot]
	return v, ok
}

func (b *Base) SetMessage(slot string, value interface{}) {
	b.messages[slot] = value
}

func (b *Base) Cleanup() {
	b.messages = make(map[string]interface{})
	b.clearNext()
}

// SingleExit implements the "exactly one outgoing transition, no branching"
// updateNext policy shared by start, print, loop, and call nodes: it is a
// MissingSuccessor error to have zero transitions unless the node lives
// inside a loop's inner subgraph, where falling off the end is legal.
func (b *Base) SingleExit() error {
	if len(b.transitions) == 0 {
		if b.isLoopInternal {
			b.clearNext()
			return nil
		}
		return errMissingSuccessor(b.id)
	}
	b.setNext(b.transitions[0].Target)
	return nil
}

// Transitions exposes the node's declared outgoing edges, used by the
// condition node to find the transition matching a chosen branch key.
func (b *Base) Transitions() []Transition { return b.transitions }

// IsLoopInternal reports whether this instance was created as part of a
// loop node's inner subgraph.
func (b *Base) IsLoopInternal() bool { return b.isLoopInternal }

// ClearNext explicitly sets "no next node" — used by the condition node
// when no branch matches and by a loop body node that legitimately falls
// off the end of its inner subgraph.
func (b *Base) ClearNext() { b.clearNext() }

// SetNext explicitly sets the resolved next node id.
func (b *Base) SetNext(id string) { b.setNext(id) }
