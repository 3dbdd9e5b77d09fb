package nodes

import (
	"context"
	"fmt"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("print", newPrint)
}

// Print is the diagnostic node: it resolves its "input" field, warns (via
// the message bus) if the resolved value is empty, and emits the
// stringified value on nodes_output for the transport layer to surface.
// Exactly one outgoing transition.
type Print struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

func newPrint(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &Print{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *Print) Run(ctx context.Context) (interface{}, error) {
	value, ok, err := resolveField(n.host, n.data, "input")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.MissingInputError(n.ID(), "input")
	}

	if isEmptyValue(value) {
		n.host.Bus().Emit(engine.EventMessage, engine.Message{
			NodeID: n.ID(), Level: engine.MessageWarning, Text: "printed value is empty",
		})
	}
	out := fmt.Sprintf("%v", value)
	n.host.Bus().Emit(engine.EventNodesOutput, engine.NodesOutput{NodeID: n.ID(), Output: out})

	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return out, nil
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}
