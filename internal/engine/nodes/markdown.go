package nodes

import (
	"context"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("markdown", newMarkdown)
}

// Markdown renders its resolved "input" field from Markdown to HTML via
// gomarkdown, publishing the result under slot "output". Exactly one
// outgoing transition.
type Markdown struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

func newMarkdown(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &Markdown{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *Markdown) Run(ctx context.Context) (interface{}, error) {
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

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.ToHTML([]byte(raw), p, renderer)

	out := string(rendered)
	n.SetMessage("output", out)
	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return out, nil
}
