package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

// fakeHost is a minimal engine.Host stand-in for unit-testing a single node
// type in isolation, without standing up a full Engine/Manager. It holds a
// flat nodeID -> slot -> value store, falls back to the message stores of
// the nodes in created (so a loop's "item" slot resolves), and a real Bus so
// nodes can emit messages/output without a nil-pointer panic.
type fakeHost struct {
	messages  map[string]map[string]interface{}
	infos     map[string]engine.NodeDocument
	bus       *engine.Bus
	now       time.Time
	subResult interface{}
	subErr    error
	created   map[string]engine.Node
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		messages: make(map[string]map[string]interface{}),
		infos:    make(map[string]engine.NodeDocument),
		bus:      engine.NewBus(nil),
		now:      time.Unix(0, 0),
		created:  make(map[string]engine.Node),
	}
}

func (h *fakeHost) publish(nodeID, slot string, value interface{}) {
	if h.messages[nodeID] == nil {
		h.messages[nodeID] = make(map[string]interface{})
	}
	h.messages[nodeID][slot] = value
}

func (h *fakeHost) AskMessage(nodeID, slot string) (interface{}, error) {
	if v, ok := h.messages[nodeID][slot]; ok {
		return v, nil
	}
	if n, ok := h.created[nodeID]; ok {
		if v, ok := n.GetMessage(slot); ok {
			return v, nil
		}
	}
	return nil, engine.MissingInputError(nodeID, slot)
}

func (h *fakeHost) GetNodeInfo(nodeID string) (engine.NodeDocument, bool) {
	doc, ok := h.infos[nodeID]
	return doc, ok
}

func (h *fakeHost) CreateNode(doc engine.NodeDocument, next []engine.Transition, loopInternal bool) (engine.Node, error) {
	if n, ok := h.created[doc.ID]; ok {
		return n, nil
	}
	n, err := engine.Global().New(doc, next, h, loopInternal)
	if err != nil {
		return nil, err
	}
	h.created[doc.ID] = n
	return n, nil
}

func (h *fakeHost) CleanupNode(nodeID string) {
	if n, ok := h.created[nodeID]; ok {
		n.Cleanup()
		delete(h.created, nodeID)
	}
	delete(h.messages, nodeID)
}

func (h *fakeHost) UpdateMessage(nodeID, slot string, value interface{}) {
	h.publish(nodeID, slot, value)
}

func (h *fakeHost) Bus() *engine.Bus { return h.bus }

func (h *fakeHost) CallSubworkflow(ctx context.Context, callerNodeID, subworkflowID string, input interface{}) (interface{}, error) {
	return h.subResult, h.subErr
}

func (h *fakeHost) Now() time.Time { return h.now }

var _ engine.Host = (*fakeHost)(nil)

func requireNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func constantRef(v interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "constant", "content": v}
}

func nodeRef(nodeID, slot string) map[string]interface{} {
	return map[string]interface{}{"type": "ref", "content": []interface{}{nodeID, slot}}
}
