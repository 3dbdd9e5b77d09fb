package nodes

import (
	"context"
	"time"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("sleep", newSleep)
}

// Sleep delays for its configured duration (milliseconds) or until ctx is
// cancelled, whichever comes first — the node the engine's suspension and
// cancellation contract is exercised against, since it's the one node type
// whose body deliberately yields for longer than an iteration tick.
type Sleep struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

func newSleep(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &Sleep{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *Sleep) Run(ctx context.Context) (interface{}, error) {
	ms, ok, err := resolveField(n.host, n.data, "duration_ms")
	if err != nil {
		return nil, err
	}
	durationMs := int64(250)
	if ok {
		durationMs = toInt64(ms)
	}

	timer := time.NewTimer(time.Duration(durationMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return durationMs, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float32:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
