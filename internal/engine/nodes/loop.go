package nodes

import (
	"context"
	"reflect"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("loop", newLoop)
}

// Loop drives an inner subgraph (its own blocks/edges, fetched from its own
// node document via GetNodeInfo) once per item of a referenced array. Each
// iteration gets fresh inner-node instances — prior iteration state is
// discarded via CleanupNode before the next iteration's instances are
// created — and the current item is published on the loop node's own
// message store under slot "item", so inner nodes reference it via the
// loop node's id. A condition node with no matching branch is a legal
// early exit for that iteration; any other dead end is a LoopError. An
// empty source array is legal and runs zero iterations. Exactly one
// outgoing transition at the outer level — branching only happens inside
// the inner subgraph.
type Loop struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

type innerBlock struct {
	id   string
	typ  string
	data map[string]interface{}
}

type innerEdge struct {
	sourceID   string
	sourcePort string
	targetID   string
}

func newLoop(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &Loop{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *Loop) Run(ctx context.Context) (interface{}, error) {
	n.host.Bus().Emit(engine.EventMessage, engine.Message{NodeID: n.ID(), Level: engine.MessageInfo, Text: "loop start"})

	batchRef, ok := fieldRef(n.data, "batchFor")
	if !ok || batchRef.Kind != "ref" {
		return nil, engine.LoopError(n.ID(), "batchFor must be a reference", nil)
	}
	target, ok := engine.ResolveRef(batchRef)
	if !ok {
		return nil, engine.LoopError(n.ID(), "malformed batchFor reference", nil)
	}
	arrayVal, err := n.host.AskMessage(target.NodeID, target.Slot)
	if err != nil {
		return nil, engine.LoopError(n.ID(), "failed to resolve batchFor array", err)
	}
	items := toSlice(arrayVal)

	blocks, edges, err := n.innerGraph()
	if err != nil {
		return nil, err
	}
	startID, ok := findByType(blocks, "start")
	if !ok {
		return nil, engine.LoopError(n.ID(), "loop body has no start node", nil)
	}
	if _, ok := findByType(blocks, "end"); !ok {
		return nil, engine.LoopError(n.ID(), "loop body has no end node", nil)
	}

	nextMap := buildNextMap(blocks, edges)

	for _, item := range items {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := n.runIteration(ctx, blocks, nextMap, startID, item); err != nil {
			return nil, err
		}
	}

	n.host.Bus().Emit(engine.EventMessage, engine.Message{NodeID: n.ID(), Level: engine.MessageInfo, Text: "loop end"})
	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return len(items), nil
}

func (n *Loop) runIteration(ctx context.Context, blocks []innerBlock, nextMap map[string][]engine.Transition, startID string, item interface{}) error {
	for _, b := range blocks {
		n.host.CleanupNode(b.id)
	}
	n.SetMessage("item", item)

	for _, b := range blocks {
		doc := engine.NodeDocument{ID: b.id, Type: b.typ, Data: b.data}
		if _, err := n.host.CreateNode(doc, nextMap[b.id], true); err != nil {
			return engine.LoopError(n.ID(), "failed to instantiate loop body node "+b.id, err)
		}
	}

	currentID := startID
	var lastType string
	for currentID != "" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		doc, ok := findDoc(blocks, currentID)
		if !ok {
			return engine.LoopError(n.ID(), "loop body references unknown node "+currentID, nil)
		}
		lastType = doc.typ

		node, err := n.host.CreateNode(engine.NodeDocument{ID: doc.id, Type: doc.typ, Data: doc.data}, nextMap[doc.id], true)
		if err != nil {
			return engine.LoopError(n.ID(), "failed to resolve loop body node "+currentID, err)
		}
		if _, err := node.Run(ctx); err != nil {
			return engine.LoopError(n.ID(), "loop body node failed: "+currentID, err)
		}
		next, ok := node.GetNext()
		if !ok {
			currentID = ""
			break
		}
		currentID = next
	}

	if lastType != "condition" && lastType != "end" {
		return engine.LoopError(n.ID(), "loop body did not terminate at an end node", nil)
	}
	return nil
}

func (n *Loop) innerGraph() ([]innerBlock, []innerEdge, error) {
	info, ok := n.host.GetNodeInfo(n.ID())
	if !ok {
		return nil, nil, engine.LoopError(n.ID(), "loop node missing its own declaration", nil)
	}
	rawBlocks, _ := info.Data["blocks"].([]interface{})
	rawEdges, _ := info.Data["edges"].([]interface{})

	blocks := make([]innerBlock, 0, len(rawBlocks))
	for _, rb := range rawBlocks {
		m, ok := rb.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		typ, _ := m["type"].(string)
		data, _ := m["data"].(map[string]interface{})
		blocks = append(blocks, innerBlock{id: id, typ: typ, data: data})
	}

	edges := make([]innerEdge, 0, len(rawEdges))
	for _, re := range rawEdges {
		m, ok := re.(map[string]interface{})
		if !ok {
			continue
		}
		src, _ := m["sourceNodeID"].(string)
		port, _ := m["sourcePort"].(string)
		tgt, _ := m["targetNodeID"].(string)
		edges = append(edges, innerEdge{sourceID: src, sourcePort: port, targetID: tgt})
	}
	return blocks, edges, nil
}

func buildNextMap(blocks []innerBlock, edges []innerEdge) map[string][]engine.Transition {
	out := make(map[string][]engine.Transition, len(blocks))
	for _, e := range edges {
		port := e.sourcePort
		if port == "" {
			port = "next"
		}
		out[e.sourceID] = append(out[e.sourceID], engine.Transition{Port: port, Target: e.targetID})
	}
	return out
}

func findByType(blocks []innerBlock, typ string) (string, bool) {
	for _, b := range blocks {
		if b.typ == typ {
			return b.id, true
		}
	}
	return "", false
}

func findDoc(blocks []innerBlock, id string) (innerBlock, bool) {
	for _, b := range blocks {
		if b.id == id {
			return b, true
		}
	}
	return innerBlock{}, false
}

func toSlice(v interface{}) []interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
