package nodes

import (
	"context"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("call", newCall)
}

// Call invokes a named sub-workflow through the engine's workflow manager
// and publishes its terminal output under slot "output". Unlike the
// original (which round-tripped the result through a "subworkflow_return"
// bus event because its host framework's call was asynchronous), the
// manager's CallSubworkflow is a plain synchronous method call here, so the
// node simply uses its return value — the call is still synchronous
// recursion through the call stack, only the delivery mechanism is
// simplified since Go doesn't need the bus round-trip workaround. Exactly
// one outgoing transition.
type Call struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

func newCall(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &Call{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *Call) Run(ctx context.Context) (interface{}, error) {
	subworkflowID, ok, err := resolveField(n.host, n.data, "subworkflow_id")
	if err != nil {
		return nil, engine.CallError(n.ID(), "failed to resolve subworkflow_id", err)
	}
	if !ok {
		return nil, engine.CallError(n.ID(), "subworkflow_id is required", nil)
	}
	idStr, ok := subworkflowID.(string)
	if !ok || idStr == "" {
		return nil, engine.CallError(n.ID(), "subworkflow_id must be a non-empty string", nil)
	}

	input, _, err := resolveField(n.host, n.data, "input_data")
	if err != nil {
		return nil, engine.CallError(n.ID(), "failed to resolve input_data", err)
	}

	output, err := n.host.CallSubworkflow(ctx, n.ID(), idStr, input)
	if err != nil {
		return nil, err
	}
	n.SetMessage("output", output)

	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return output, nil
}
