package nodes

import (
	"context"
	"testing"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func TestCSV_WithHeader(t *testing.T) {
	host := newFakeHost()
	doc := engine.NodeDocument{
		ID:   "csv_1",
		Type: "csv",
		Data: map[string]interface{}{
			"inputsValues": map[string]interface{}{"input": constantRef("name,age\nada,36\ngrace,85\n")},
			"has_header":   true,
		},
	}
	n, err := newCSV(doc, []engine.Transition{{Target: "end_1"}}, host, false)
	requireNoErr(t, err)
	out, err := n.Run(context.Background())
	requireNoErr(t, err)

	records, ok := out.([]map[string]interface{})
	if !ok || len(records) != 2 {
		t.Fatalf("expected 2 records, got %v", out)
	}
	if records[0]["name"] != "ada" || records[0]["age"] != "36" {
		t.Fatalf("unexpected first record: %v", records[0])
	}
}

func TestCSV_NoHeaderReturnsRawRows(t *testing.T) {
	host := newFakeHost()
	doc := engine.NodeDocument{
		ID:   "csv_2",
		Type: "csv",
		Data: map[string]interface{}{
			"inputsValues": map[string]interface{}{"input": constantRef("a,b\nc,d\n")},
		},
	}
	n, err := newCSV(doc, []engine.Transition{{Target: "end_1"}}, host, false)
	requireNoErr(t, err)
	out, err := n.Run(context.Background())
	requireNoErr(t, err)

	rows, ok := out.([][]string)
	if !ok || len(rows) != 2 {
		t.Fatalf("expected 2 raw rows, got %v", out)
	}
}

func TestCSV_MalformedInputIsError(t *testing.T) {
	host := newFakeHost()
	doc := engine.NodeDocument{
		ID:   "csv_3",
		Type: "csv",
		Data: map[string]interface{}{
			"inputsValues": map[string]interface{}{"input": constantRef("\"unterminated")},
		},
	}
	n, err := newCSV(doc, []engine.Transition{{Target: "end_1"}}, host, false)
	requireNoErr(t, err)
	_, err = n.Run(context.Background())
	if err == nil {
		t.Fatal("expected parse error for malformed CSV")
	}
}
