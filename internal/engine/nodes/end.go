package nodes

import (
	"context"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("end", newEnd)
}

// End terminates a workflow (or a loop body's inner subgraph). Its body
// does nothing; GetNext always reports no successor.
type End struct {
	engine.Base
}

func newEnd(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &End{Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal)}, nil
}

func (n *End) Run(ctx context.Context) (interface{}, error) {
	n.ClearNext()
	return nil, nil
}
