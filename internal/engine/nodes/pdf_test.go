package nodes

import (
	"context"
	"testing"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func TestPDF_MissingPathIsError(t *testing.T) {
	host := newFakeHost()
	doc := engine.NodeDocument{ID: "pdf_1", Type: "pdf", Data: map[string]interface{}{}}
	n, err := newPDF(doc, []engine.Transition{{Target: "end_1"}}, host, false)
	requireNoErr(t, err)
	_, err = n.Run(context.Background())
	if err == nil {
		t.Fatal("expected MissingInput error for absent path")
	}
}

func TestPDF_NonexistentFileIsError(t *testing.T) {
	host := newFakeHost()
	doc := engine.NodeDocument{
		ID:   "pdf_2",
		Type: "pdf",
		Data: map[string]interface{}{
			"inputsValues": map[string]interface{}{"path": constantRef("/nonexistent/file.pdf")},
		},
	}
	n, err := newPDF(doc, []engine.Transition{{Target: "end_1"}}, host, false)
	requireNoErr(t, err)
	_, err = n.Run(context.Background())
	if err == nil {
		t.Fatal("expected error opening a nonexistent pdf file")
	}
}
