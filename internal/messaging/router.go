package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ResponseAction is a hook that processes one inbound message. It receives
// the canonical phone number, the message text, and the timestamp, and
// reports whether it handled the message.
type ResponseAction func(ctx context.Context, from, text string, timestamp int64) (handled bool, err error)

// ConversationEngine is the routing target for messages no hook claims.
type ConversationEngine interface {
	HandleIncomingMessage(ctx context.Context, address string, scopeID int64, text, mediaRef string) string
}

// Router consumes the transport's response channel and routes each
// message: a registered per-sender hook first, then the conversation
// engine. Engine replies are sent back through the same transport.
type Router struct {
	service Service
	engine  ConversationEngine
	scopeID int64

	mu    sync.RWMutex
	hooks map[string]ResponseAction
}

// NewRouter creates a router for one deployment scope.
func NewRouter(service Service, engine ConversationEngine, scopeID int64) *Router {
	return &Router{
		service: service,
		engine:  engine,
		scopeID: scopeID,
		hooks:   make(map[string]ResponseAction),
	}
}

// RegisterHook registers an action that intercepts messages from one
// sender before the engine sees them.
func (r *Router) RegisterHook(recipient string, action ResponseAction) error {
	canonical, err := r.service.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[canonical] = action
	slog.Debug("Router hook registered", "recipient", canonical)
	return nil
}

// UnregisterHook removes the hook for a sender.
func (r *Router) UnregisterHook(recipient string) error {
	canonical, err := r.service.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, canonical)
	return nil
}

// IsHookRegistered reports whether a hook exists for the sender.
func (r *Router) IsHookRegistered(recipient string) bool {
	canonical, err := r.service.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.hooks[canonical]
	return ok
}

// Start begins consuming responses until the context is cancelled or the
// channel closes.
func (r *Router) Start(ctx context.Context) {
	slog.Info("Router starting response processing", "scopeID", r.scopeID)
	go func() {
		defer slog.Info("Router stopped response processing")
		for {
			select {
			case response, ok := <-r.service.Responses():
				if !ok {
					return
				}
				if err := r.Process(ctx, response.From, response.Body, response.Media, response.Time); err != nil {
					slog.Error("Router failed to process response", "error", err, "from", response.From)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Process routes one inbound message and sends the reply.
func (r *Router) Process(ctx context.Context, from, text, mediaRef string, timestamp int64) error {
	canonical, err := r.service.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	r.mu.RLock()
	action, hasHook := r.hooks[canonical]
	r.mu.RUnlock()

	if hasHook {
		handled, err := action(ctx, canonical, text, timestamp)
		if err != nil {
			return fmt.Errorf("hook execution failed: %w", err)
		}
		if handled {
			slog.Debug("Router message handled by hook", "from", canonical)
			return nil
		}
	}

	reply := r.engine.HandleIncomingMessage(ctx, canonical, r.scopeID, text, mediaRef)
	if reply == "" {
		return nil
	}
	if err := r.service.SendMessage(ctx, canonical, reply); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}
