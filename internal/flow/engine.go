package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/StayPipe/StayPipe/internal/lang"
	"github.com/StayPipe/StayPipe/internal/models"
	"github.com/StayPipe/StayPipe/internal/store"
)

// codeRequestKeywords trigger guest identification from an idle
// conversation. Exact message match only, so that a booking message
// mentioning a code word does not derail into identification.
var codeRequestKeywords = map[string]models.GuestRequestType{
	"code":     models.GuestRequestCode,
	"código":   models.GuestRequestCode,
	"codigo":   models.GuestRequestCode,
	"password": models.GuestRequestCode,
	"verloren": models.GuestRequestCode,
	"lost":     models.GuestRequestCode,
	"perdido":  models.GuestRequestCode,
	"acceso":   models.GuestRequestCode,
	"pin":      models.GuestRequestPincode,
}

// Responder generates the free-form fallback reply.
type Responder interface {
	Respond(ctx context.Context, text string, language models.Language, convCtx models.ConversationContext) (string, error)
}

// PartnerDelegate hands selected conversations to an external partner
// integration instead of the built-in flows.
type PartnerDelegate interface {
	// Handles reports whether this user's conversation belongs to the
	// partner integration.
	Handles(user *models.User) bool
	Handle(ctx context.Context, conv *models.Conversation, text string, language models.Language) (string, error)
}

// Engine routes every inbound message: staff commands, active sub-flows,
// booking extraction, and the generative fallback, in that priority order.
// HandleIncomingMessage never fails upward; unrecoverable errors reset the
// conversation and produce an apology reply.
type Engine struct {
	store     store.Store
	detector  *lang.Detector
	states    *StateManager
	extractor *Extractor
	guestID   *GuestIdentification
	items     *ItemCreation
	catalog   *Catalog
	responder Responder
	partner   PartnerDelegate
}

// EngineOption configures engine creation.
type EngineOption func(*Engine)

// WithResponder wires the generative fallback responder.
func WithResponder(r Responder) EngineOption {
	return func(e *Engine) { e.responder = r }
}

// WithPartnerDelegate wires the partner integration hook.
func WithPartnerDelegate(p PartnerDelegate) EngineOption {
	return func(e *Engine) { e.partner = p }
}

// NewEngine creates the flow engine.
func NewEngine(st store.Store, detector *lang.Detector, states *StateManager, extractor *Extractor, guestID *GuestIdentification, items *ItemCreation, catalog *Catalog, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     st,
		detector:  detector,
		states:    states,
		extractor: extractor,
		guestID:   guestID,
		items:     items,
		catalog:   catalog,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleIncomingMessage processes one inbound message and returns the
// reply to send. It always returns a reply; when handling fails the
// conversation is reset to idle and the reply is the generic apology.
// mediaRef is an optional attachment reference; the flows are text only,
// so it is recorded in the log and otherwise ignored.
func (e *Engine) HandleIncomingMessage(ctx context.Context, address string, scopeID int64, text, mediaRef string) string {
	if mediaRef != "" {
		slog.Debug("Engine.HandleIncomingMessage ignoring media attachment", "address", address, "mediaRef", mediaRef)
	}
	conv, err := e.states.GetOrCreateConversation(address, scopeID)
	if err != nil {
		slog.Error("Engine.HandleIncomingMessage conversation load failed", "address", address, "scopeID", scopeID, "error", err)
		return e.catalog.Get(models.DefaultLanguage, TemplateGenericError)
	}

	language := e.detector.Resolve(text, conv.Context.Language, address)

	reply, err := e.handle(ctx, conv, text, language)
	if err != nil {
		slog.Error("Engine.HandleIncomingMessage failed", "conversationID", conv.ID, "state", conv.State.String(), "error", err)
		e.states.ForceIdle(conv)
		return e.catalog.Get(language, TemplateGenericError)
	}
	return reply
}

func (e *Engine) handle(ctx context.Context, conv *models.Conversation, text string, language models.Language) (string, error) {
	// Pin the resolved language so later turns without signal keep it.
	if language != conv.Context.Language {
		if err := e.store.UpdateContext(conv.ID, models.ConversationContext{Language: language}); err != nil {
			return "", err
		}
		conv.Context.Language = language
	}

	user, err := e.store.FindUserByAddress(conv.ChannelAddress, conv.ScopeID)
	if err != nil {
		return "", err
	}
	if user != nil {
		if err := e.states.AttachUser(conv, user.ID); err != nil {
			return "", err
		}
	}

	if e.partner != nil && e.partner.Handles(user) {
		slog.Debug("Engine.handle delegating to partner", "conversationID", conv.ID)
		return e.partner.Handle(ctx, conv, text, language)
	}

	lowered := strings.ToLower(strings.TrimSpace(text))

	if kind, ok := DetectListCommand(lowered); ok {
		if user == nil {
			return e.catalog.Get(language, AuthTemplate(kind, false)), nil
		}
		return e.items.List(conv, kind, language)
	}
	// Creation and code requests only start from idle; an active sub-flow
	// owns the turn, so "todo" mid-flow is a step answer, not a command.
	if conv.State.IsIdle() {
		if kind, ok := DetectCreateCommand(lowered); ok {
			if user == nil {
				return e.catalog.Get(language, AuthTemplate(kind, true)), nil
			}
			return e.items.Begin(conv, kind, language)
		}
		if requestType, ok := codeRequestKeywords[lowered]; ok {
			return e.guestID.Begin(conv, requestType, text, language)
		}
	}

	switch conv.State.Flow {
	case models.FlowGuestIdentification, models.FlowPincodeIdentification:
		return e.guestID.HandleStep(conv, text, language)
	case models.FlowRequestCreation, models.FlowTaskCreation:
		return e.items.HandleStep(conv, user, text, language)
	case models.FlowIdle, "":
		// fall through to extraction
	default:
		slog.Warn("Engine.handle unknown flow", "conversationID", conv.ID, "flow", conv.State.Flow)
		if err := e.states.ResetToIdle(conv); err != nil {
			return "", err
		}
		return e.catalog.Get(language, TemplateUnknownState), nil
	}

	result, err := e.extractor.Extract(ctx, conv, text, language)
	if err != nil {
		return "", err
	}
	if result.BookingFired {
		return result.Confirmation, nil
	}

	return e.respond(ctx, conv, text, language, result.Context)
}

// respond runs the generative fallback, mapping its typed failures to the
// apology templates instead of the fail-safe reset.
func (e *Engine) respond(ctx context.Context, conv *models.Conversation, text string, language models.Language, convCtx models.ConversationContext) (string, error) {
	if e.responder == nil {
		return e.catalog.Get(language, TemplateResponderDisabled), nil
	}
	reply, err := e.responder.Respond(ctx, text, language, convCtx)
	switch {
	case errors.Is(err, models.ErrResponderDisabled):
		return e.catalog.Get(language, TemplateResponderDisabled), nil
	case errors.Is(err, models.ErrResponderMisconfigured):
		return e.catalog.Get(language, TemplateResponderMisconfigured), nil
	case err != nil:
		slog.Error("Engine.respond fallback failed", "conversationID", conv.ID, "error", err)
		return e.catalog.Get(language, TemplateResponderError), nil
	}
	return reply, nil
}
