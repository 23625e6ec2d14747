package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rapport-labs/rapport/core/protocol"
)

// scoreInstructions is the evaluation prompt for the scoring oracle. The
// reply must be a bare integer; anything else trips ErrScoreParse and the
// pipeline falls back to its default score.
const scoreInstructions = "You rate how much warmth and closeness the user's latest message " +
	"expresses toward the assistant, taking the assistant's reply into account for context. " +
	"Respond with a single integer from 0 (cold or hostile) to 4 (openly affectionate). " +
	"Output only the integer, with no other text."

// OpenAI implements Completer and Scorer against an OpenAI-compatible
// chat-completions API. Safe for concurrent use.
type OpenAI struct {
	client       *openai.Client
	model        string
	scoringModel string
}

// NewOpenAI builds the oracle client from configuration.
func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	scoringModel := cfg.ScoringModel
	if scoringModel == "" {
		scoringModel = defaultScoringModel
	}

	return &OpenAI{client: &client, model: model, scoringModel: scoringModel}
}

// Complete sends the conversation to the chat API and returns the reply.
// The system turn is emitted first regardless of its position in history.
func (o *OpenAI) Complete(ctx context.Context, history []protocol.Message, params GenParams) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, msg := range history {
		if msg.Role == protocol.RoleSystem {
			msgs = append(msgs, openai.SystemMessage(msg.Content))
		}
	}
	for _, msg := range history {
		switch msg.Role {
		case protocol.RoleSystem:
			// already emitted up front
		case protocol.RoleUser:
			msgs = append(msgs, openai.UserMessage(msg.Content))
		case protocol.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(msg.Content))
		}
	}

	req := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
	}
	if params.Temperature > 0 {
		req.Temperature = openai.Float(params.Temperature)
	}
	if params.TopP > 0 {
		req.TopP = openai.Float(params.TopP)
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = openai.Int(params.MaxTokens)
	}

	resp, err := o.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// Score asks the scoring model to rate the exchange and extracts the integer
// from its reply.
func (o *OpenAI) Score(ctx context.Context, userText, assistantText string) (int, error) {
	exchange := fmt.Sprintf("User: %s\nAssistant: %s", userText, assistantText)

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.scoringModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(scoreInstructions),
			openai.UserMessage(exchange),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	score, ok := ParseScore(resp.Choices[0].Message.Content)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrScoreParse, resp.Choices[0].Message.Content)
	}
	return score, nil
}

// ParseScore extracts the first integer from the oracle's reply. Models are
// instructed to return a bare integer but occasionally wrap it in prose
// ("Score: 3."), so any embedded integer is accepted.
func ParseScore(reply string) (int, bool) {
	reply = strings.TrimSpace(reply)

	start := -1
	for i, r := range reply {
		if r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start == -1 {
		return 0, false
	}

	end := start
	for end < len(reply) && reply[end] >= '0' && reply[end] <= '9' {
		end++
	}

	negative := start > 0 && reply[start-1] == '-'

	n := 0
	for _, c := range []byte(reply[start:end]) {
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			// runaway digit string; treat as unparseable
			return 0, false
		}
	}
	if negative {
		n = -n
	}
	return n, true
}
