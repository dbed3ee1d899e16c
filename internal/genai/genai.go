// Package genai wraps the OpenAI API as the conversational fallback
// responder. Failure reasons are typed so the flow engine can map a
// disabled feature and missing credentials to distinct reply templates.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/StayPipe/StayPipe/internal/models"
)

// DefaultModel is used when no model override is configured.
const DefaultModel = openai.ChatModelGPT4o

// languageInstructions prefix the system prompt so replies come back in the
// resolved conversation language.
var languageInstructions = map[models.Language]string{
	models.LanguageSpanish: "Responde siempre en español.",
	models.LanguageGerman:  "Antworte immer auf Deutsch.",
	models.LanguageEnglish: "Always reply in English.",
}

// Opts holds configuration options for the responder.
type Opts struct {
	// APIKey is the OpenAI API key. Empty means misconfigured.
	APIKey string
	// Model overrides the chat model.
	Model string
	// Enabled gates the responder per deployment.
	Enabled bool
	// SystemPrompt is the base assistant instruction.
	SystemPrompt string
}

// Option configures responder creation.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithEnabled gates the responder.
func WithEnabled(enabled bool) Option {
	return func(o *Opts) { o.Enabled = enabled }
}

// WithSystemPrompt sets the base assistant instruction.
func WithSystemPrompt(prompt string) Option {
	return func(o *Opts) { o.SystemPrompt = prompt }
}

const defaultSystemPrompt = "You are a friendly hospitality assistant answering guest messages for a hostel. Keep replies short and helpful."

// Responder generates free-form replies. Construction never fails; a
// missing key or disabled flag surfaces as a typed error on Respond so the
// caller can pick the right apology template.
type Responder struct {
	client       openai.Client
	model        string
	enabled      bool
	configured   bool
	systemPrompt string
}

// NewResponder creates a responder from the given options.
func NewResponder(opts ...Option) *Responder {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	r := &Responder{
		model:        model,
		enabled:      cfg.Enabled,
		configured:   cfg.APIKey != "",
		systemPrompt: systemPrompt,
	}
	if r.configured {
		r.client = openai.NewClient(option.WithAPIKey(cfg.APIKey))
	}
	slog.Debug("Responder.NewResponder created", "enabled", r.enabled, "configured", r.configured, "model", model)
	return r
}

// Respond generates a reply to the guest message. The resolved language and
// the accumulated conversation context are folded into the system prompt.
// Returns models.ErrResponderDisabled or models.ErrResponderMisconfigured
// for the two known business failures.
func (r *Responder) Respond(ctx context.Context, text string, language models.Language, convCtx models.ConversationContext) (string, error) {
	if !r.enabled {
		slog.Debug("Responder.Respond disabled")
		return "", models.ErrResponderDisabled
	}
	if !r.configured {
		slog.Warn("Responder.Respond called without API key")
		return "", models.ErrResponderMisconfigured
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(r.buildSystemPrompt(language, convCtx)),
		openai.UserMessage(text),
	}

	completion, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    r.model,
	})
	if err != nil {
		slog.Error("Responder.Respond completion failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	reply := strings.TrimSpace(completion.Choices[0].Message.Content)
	slog.Debug("Responder.Respond succeeded", "language", language, "replyLength", len(reply))
	return reply, nil
}

// buildSystemPrompt combines the base instruction, the language directive,
// and a summary of what the conversation has collected so far.
func (r *Responder) buildSystemPrompt(language models.Language, convCtx models.ConversationContext) string {
	var b strings.Builder
	b.WriteString(r.systemPrompt)

	if instruction, ok := languageInstructions[language]; ok {
		b.WriteString("\n")
		b.WriteString(instruction)
	}

	if summary := summarizeContext(convCtx); summary != "" {
		b.WriteString("\nConversation context so far:\n")
		b.WriteString(summary)
	}
	return b.String()
}

// summarizeContext renders the booking draft for prompt injection. Empty
// drafts produce no summary.
func summarizeContext(convCtx models.ConversationContext) string {
	booking := convCtx.Booking
	if booking.IsEmpty() {
		return ""
	}
	var parts []string
	if booking.CheckInDate != "" {
		parts = append(parts, "check-in: "+booking.CheckInDate)
	}
	if booking.CheckOutDate != "" {
		parts = append(parts, "check-out: "+booking.CheckOutDate)
	}
	if booking.GuestName != "" {
		parts = append(parts, "guest: "+booking.GuestName)
	}
	if booking.RoomType != "" {
		parts = append(parts, "room type: "+string(booking.RoomType))
	}
	if booking.RoomName != "" {
		parts = append(parts, "room: "+booking.RoomName)
	}
	return strings.Join(parts, "\n")
}
