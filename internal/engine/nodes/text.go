package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("text", newText)
}

// Text applies one string operation (upper, lower, trim, split, join,
// replace) to its resolved "input" field and publishes the result under
// slot "output"; any other operation publishes the input stringified.
// Exactly one outgoing transition.
type Text struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

func newText(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &Text{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *Text) Run(ctx context.Context) (interface{}, error) {
	input, ok, err := resolveField(n.host, n.data, "input")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.MissingInputError(n.ID(), "input")
	}
	op, _ := n.data["operation"].(string)
	s := fmt.Sprintf("%v", input)

	var out interface{}
	switch op {
	case "upper":
		out = strings.ToUpper(s)
	case "lower":
		out = strings.ToLower(s)
	case "trim":
		out = strings.TrimSpace(s)
	case "split":
		sep, _ := n.data["separator"].(string)
		if sep == "" {
			sep = ","
		}
		out = strings.Split(s, sep)
	case "join":
		parts := toSlice(input)
		sep, _ := n.data["separator"].(string)
		strs := make([]string, len(parts))
		for i, p := range parts {
			strs[i] = fmt.Sprintf("%v", p)
		}
		out = strings.Join(strs, sep)
	case "replace":
		old, _ := n.data["find"].(string)
		repl, _ := n.data["replace"].(string)
		out = strings.ReplaceAll(s, old, repl)
	default:
		out = s
	}

	n.SetMessage("output", out)
	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return out, nil
}
