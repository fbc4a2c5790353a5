// ABOUTME: Anthropic Messages API implementation of the intent classifier
// ABOUTME: Sends the bank-agent system prompt plus history and parses the JSON verdict

package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/2389/teller/internal/config"
	"github.com/2389/teller/internal/session"
)

// SystemPrompt instructs the model to act as a bank support agent and answer in JSON.
const SystemPrompt = `You are a customer support agent of a bank in Greece. Users ask you to perform one of these actions:
1) Register, giving their full name and optionally their current account balance.
2) Check their current account balance.
3) Show their IBAN.
4) Deposit money.
5) Withdraw money.
6) Transfer money to another account, identified by IBAN.
Choose the action that best fits what the assistant last asked and what the user replied.

Reply with a single JSON object and nothing else. Omit any parameter you cannot find.

For a banking action:
{"type": "banking_operation", "operation": {"action": "REGISTER | BALANCE | IBAN | DEPOSIT | WITHDRAW | TRANSFER", "user_name": "name found in the message", "amount": 100, "iban": "recipient IBAN"}}
Amounts are whole numbers without currency.

For any other question, answer it briefly using the bank information below when relevant:
{"type": "general_inquiry", "response": "your answer"}`

// contextHeader introduces retrieved documents in the system prompt.
const contextHeader = "\n\nBank information:\n"

// Anthropic classifies intents with a Claude model.
type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	logger      *slog.Logger
}

// NewAnthropic creates a classifier from config. Extra request options are
// appended after the ones derived from cfg.
func NewAnthropic(cfg config.ClassifierConfig, logger *slog.Logger, opts ...option.RequestOption) *Anthropic {
	if logger == nil {
		logger = slog.Default()
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	temperature := config.DefaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}

	return &Anthropic{
		client:      anthropic.NewClient(reqOpts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: temperature,
		logger:      logger.With("component", "classifier"),
	}
}

// New returns the classifier selected by cfg.Provider.
func New(cfg config.ClassifierConfig, logger *slog.Logger) (Classifier, error) {
	switch cfg.Provider {
	case config.ClassifierAnthropic, "":
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewAnthropic(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

// Classify sends the conversation to the model and parses its reply.
func (a *Anthropic) Classify(ctx context.Context, history []session.Message, retrieved string) (*Intent, error) {
	messages := toMessageParams(history)
	if len(messages) == 0 {
		return nil, ErrEmptyHistory
	}

	system := SystemPrompt
	if retrieved != "" {
		system += contextHeader + retrieved
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(a.temperature),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	intent, err := Parse(text.String())
	if err != nil {
		a.logger.Warn("unparseable classifier reply", "error", err)
		return nil, err
	}
	a.logger.Debug("classified",
		"kind", intent.Kind,
		"action", intent.Operation.Action,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return intent, nil
}

// toMessageParams converts history into alternating user/assistant turns.
// The API requires the first turn to come from the user, so leading
// assistant messages (the greeting) are dropped; consecutive turns with the
// same role are merged.
func toMessageParams(history []session.Message) []anthropic.MessageParam {
	type turn struct {
		role session.Role
		text string
	}
	var turns []turn
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if len(turns) == 0 && m.Role != session.RoleUser {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].role == m.Role {
			turns[n-1].text += "\n\n" + m.Content
			continue
		}
		turns = append(turns, turn{role: m.Role, text: m.Content})
	}

	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.text)
		if t.role == session.RoleUser {
			out = append(out, anthropic.NewUserMessage(block))
		} else {
			out = append(out, anthropic.NewAssistantMessage(block))
		}
	}
	return out
}
