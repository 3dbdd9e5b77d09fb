package nodes

import (
	"context"
	"testing"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func TestJSON_Get(t *testing.T) {
	host := newFakeHost()
	doc := engine.NodeDocument{
		ID:   "json_1",
		Type: "json",
		Data: map[string]interface{}{
			"inputsValues": map[string]interface{}{"input": constantRef(`{"user":{"name":"ada"}}`)},
			"operation":    "get",
			"path":         "user.name",
		},
	}
	n, err := newJSON(doc, []engine.Transition{{Target: "end_1"}}, host, false)
	requireNoErr(t, err)
	out, err := n.Run(context.Background())
	requireNoErr(t, err)
	if out != "ada" {
		t.Fatalf("expected ada, got %v", out)
	}
}

func TestJSON_Set(t *testing.T) {
	host := newFakeHost()
	doc := engine.NodeDocument{
		ID:   "json_2",
		Type: "json",
		Data: map[string]interface{}{
			"inputsValues": map[string]interface{}{
				"input": constantRef(`{"user":{"name":"ada"}}`),
				"value": constantRef("grace"),
			},
			"operation": "set",
			"path":      "user.name",
		},
	}
	n, err := newJSON(doc, []engine.Transition{{Target: "end_1"}}, host, false)
	requireNoErr(t, err)
	out, err := n.Run(context.Background())
	requireNoErr(t, err)
	s, ok := out.(string)
	if !ok {
		t.Fatalf("expected string output, got %T", out)
	}
	if s != `{"user":{"name":"grace"}}` {
		t.Fatalf("unexpected updated document: %s", s)
	}
}

func TestJSON_GetMissingPathIsError(t *testing.T) {
	host := newFakeHost()
	doc := engine.NodeDocument{
		ID:   "json_3",
		Type: "json",
		Data: map[string]interface{}{
			"inputsValues": map[string]interface{}{"input": constantRef(`{"a":1}`)},
			"operation":    "get",
			"path":         "missing.path",
		},
	}
	n, err := newJSON(doc, []engine.Transition{{Target: "end_1"}}, host, false)
	requireNoErr(t, err)
	_, err = n.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for missing path")
	}
}
