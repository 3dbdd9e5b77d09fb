package nodes

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("json", newJSON)
}

// JSON reads or writes a path inside a resolved JSON document using gjson
// (get) and sjson (set), publishing the result under slot "output". The
// "operation" field selects "get" or "set"; "path" is a gjson/sjson dot
// path. Exactly one outgoing transition.
type JSON struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

func newJSON(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &JSON{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *JSON) Run(ctx context.Context) (interface{}, error) {
	input, ok, err := resolveField(n.host, n.data, "input")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.MissingInputError(n.ID(), "input")
	}
	doc, ok := input.(string)
	if !ok {
		return nil, engine.TypeViolationError(n.ID(), "input must be a JSON string")
	}
	path, _ := n.data["path"].(string)
	op, _ := n.data["operation"].(string)

	var out interface{}
	switch op {
	case "set":
		value, _, err := resolveField(n.host, n.data, "value")
		if err != nil {
			return nil, err
		}
		updated, err := sjson.Set(doc, path, value)
		if err != nil {
			return nil, engine.NodeExecutionError(n.ID(), "sjson set failed", err)
		}
		out = updated
	default:
		result := gjson.Get(doc, path)
		if !result.Exists() {
			return nil, engine.NodeExecutionError(n.ID(), fmt.Sprintf("path %q not found", path), nil)
		}
		out = result.Value()
	}

	n.SetMessage("output", out)
	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return out, nil
}
