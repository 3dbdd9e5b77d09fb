package nodes

import (
	"context"
	"os"
	"testing"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func TestLLM_MissingPromptIsError(t *testing.T) {
	host := newFakeHost()
	doc := engine.NodeDocument{ID: "llm_1", Type: "llm", Data: map[string]interface{}{}}
	n, err := newLLM(doc, []engine.Transition{{Target: "end_1"}}, host, false)
	requireNoErr(t, err)
	_, err = n.Run(context.Background())
	if err == nil {
		t.Fatal("expected MissingInput error for absent prompt")
	}
}

func TestLLM_NoAPIKeyIsError(t *testing.T) {
	old, hadOld := os.LookupEnv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	defer func() {
		if hadOld {
			os.Setenv("OPENAI_API_KEY", old)
		}
	}()

	host := newFakeHost()
	doc := engine.NodeDocument{
		ID:   "llm_2",
		Type: "llm",
		Data: map[string]interface{}{
			"inputsValues": map[string]interface{}{"prompt": constantRef("hello")},
		},
	}
	n, err := newLLM(doc, []engine.Transition{{Target: "end_1"}}, host, false)
	requireNoErr(t, err)
	_, err = n.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when no API key is configured")
	}
}
