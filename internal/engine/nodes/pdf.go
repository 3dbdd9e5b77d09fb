package nodes

import (
	"context"

	"github.com/ledongthuc/pdf"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("pdf", newPDF)
}

// PDF extracts plain text from the PDF file at its resolved "path" field,
// publishing the concatenated page text under slot "output". Exactly one
// outgoing transition.
type PDF struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

func newPDF(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &PDF{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *PDF) Run(ctx context.Context) (interface{}, error) {
	pathVal, ok, err := resolveField(n.host, n.data, "path")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.MissingInputError(n.ID(), "path")
	}
	path, ok := pathVal.(string)
	if !ok || path == "" {
		return nil, engine.TypeViolationError(n.ID(), "path must be a non-empty string")
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, engine.NodeExecutionError(n.ID(), "failed to open pdf", err)
	}
	defer f.Close()

	var text string
	reader, err := r.GetPlainText()
	if err != nil {
		return nil, engine.NodeExecutionError(n.ID(), "failed to extract pdf text", err)
	}
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, readErr := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	text = string(buf)

	n.SetMessage("output", text)
	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return text, nil
}
