package nodes

import (
	"context"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

func init() {
	engine.Register("llm", newLLM)
}

// LLM sends its resolved "prompt" field as a single-turn chat completion
// request via go-openai and publishes the model's reply under slot
// "output". The API key comes from the node's "api_key" field if set,
// otherwise the OPENAI_API_KEY environment variable. Exactly one outgoing
// transition.
type LLM struct {
	engine.Base
	data map[string]interface{}
	host engine.Host
}

func newLLM(doc engine.NodeDocument, next []engine.Transition, host engine.Host, loopInternal bool) (engine.Node, error) {
	return &LLM{
		Base: engine.NewBase(doc.ID, doc.Type, next, host, loopInternal),
		data: doc.Data,
		host: host,
	}, nil
}

func (n *LLM) Run(ctx context.Context) (interface{}, error) {
	prompt, ok, err := resolveField(n.host, n.data, "prompt")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.MissingInputError(n.ID(), "prompt")
	}
	promptStr, ok := prompt.(string)
	if !ok || promptStr == "" {
		return nil, engine.TypeViolationError(n.ID(), "prompt must be a non-empty string")
	}

	apiKey, _ := n.data["api_key"].(string)
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, engine.NodeExecutionError(n.ID(), "no OpenAI API key configured", nil)
	}

	model, _ := n.data["model"].(string)
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}

	client := openai.NewClient(apiKey)
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: promptStr},
		},
	})
	if err != nil {
		return nil, engine.NodeExecutionError(n.ID(), "chat completion request failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, engine.NodeExecutionError(n.ID(), "chat completion returned no choices", nil)
	}

	out := resp.Choices[0].Message.Content
	n.SetMessage("output", out)
	if err := n.SingleExit(); err != nil {
		return nil, err
	}
	return out, nil
}
