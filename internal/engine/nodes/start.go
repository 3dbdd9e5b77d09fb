package nodes

import (
	"context"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("start", newStart)
}

// Start is the workflow's entry point. It publishes one slot per declared
// output property — the property's declared default when it has one,
// otherwise {} for objects, [] for arrays, and nil for anything else — then
// publishes the
// invocation's start timestamp under slot "timestamp" — an addition beyond
// what a bare defaults-only start node would do, so downstream nodes and
// tests can observe when the run began. It has exactly one outgoing
// transition; no branching.
type Start struct {
	engine.Base
	properties map[string]interface{}
	host       engine.Host
}

func newStart(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	outputs, _ := doc.Data["outputs"].(map[string]interface{})
	properties, _ := outputs["properties"].(map[string]interface{})
	return &Start{
		Base:       engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		properties: properties,
		host:       host,
	}, nil
}

func (n *Start) Run(ctx context.Context) (interface{}, error) {
	for name, raw := range n.properties {
		info, _ := raw.(map[string]interface{})
		n.SetMessage(name, defaultFor(info))
	}
	n.SetMessage("timestamp", n.host.Now())
	if err := n.updateNext(); err != nil {
		return nil, err
	}
	out, _ := n.GetMessage("timestamp")
	return out, nil
}

func defaultFor(info map[string]interface{}) interface{} {
	if info == nil {
		return nil
	}
	if d, ok := info["default"]; ok {
		return d
	}
	switch info["type"] {
	case "object":
		return map[string]interface{}{}
	case "array":
		return []interface{}{}
	default:
		return nil
	}
}

func (n *Start) updateNext() error {
	return n.SingleExit()
}
