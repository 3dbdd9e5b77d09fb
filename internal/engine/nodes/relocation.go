package nodes

import (
	"context"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("relocation", newRelocation)
}

// Relocation overwrites an already-published slot on another node,
// exercising the Host.UpdateMessage path the message store contract
// reserves for exactly this purpose: letting a downstream node correct an
// upstream producer's value in place rather than only ever adding new
// slots. Exactly one outgoing transition.
type Relocation struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

func newRelocation(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &Relocation{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *Relocation) Run(ctx context.Context) (interface{}, error) {
	targetRef, ok := fieldRef(n.data, "target")
	if !ok || targetRef.Kind != "ref" {
		return nil, engine.MissingInputError(n.ID(), "target")
	}
	target, ok := engine.ResolveRef(targetRef)
	if !ok {
		return nil, engine.TypeViolationError(n.ID(), "malformed target reference")
	}

	value, ok, err := resolveField(n.host, n.data, "value")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.MissingInputError(n.ID(), "value")
	}

	n.host.UpdateMessage(target.NodeID, target.Slot, value)

	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return value, nil
}
