package flow

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/StayPipe/StayPipe/internal/models"
	"github.com/StayPipe/StayPipe/internal/store"
	"github.com/StayPipe/StayPipe/internal/util"
)

// ItemKind distinguishes the two staff item types that share the creation
// sub-flow mechanics.
type ItemKind string

const (
	ItemKindRequest ItemKind = "request"
	ItemKindTask    ItemKind = "task"
)

var (
	listRequestsPattern  = regexp.MustCompile(`^requests[!. ]*$`)
	listTasksPattern     = regexp.MustCompile(`^(todos|to dos|to do's)[!. ]*$`)
	createRequestPattern = regexp.MustCompile(`^request[!. ]*$`)
	createTaskPattern    = regexp.MustCompile(`^todo[!. ]*$`)
)

// DetectListCommand recognizes the exact-message list commands.
func DetectListCommand(lowered string) (ItemKind, bool) {
	switch {
	case listRequestsPattern.MatchString(lowered):
		return ItemKindRequest, true
	case listTasksPattern.MatchString(lowered):
		return ItemKindTask, true
	default:
		return "", false
	}
}

// DetectCreateCommand recognizes the exact-message creation commands.
func DetectCreateCommand(lowered string) (ItemKind, bool) {
	switch {
	case createRequestPattern.MatchString(lowered):
		return ItemKindRequest, true
	case createTaskPattern.MatchString(lowered):
		return ItemKindTask, true
	default:
		return "", false
	}
}

// Flow returns the conversation flow carrying this kind's creation.
func (k ItemKind) Flow() models.Flow {
	if k == ItemKindTask {
		return models.FlowTaskCreation
	}
	return models.FlowRequestCreation
}

// ItemCreation runs the two-question request and task creation sub-flows
// and answers the list commands. All entry points require a resolved staff
// user; the engine enforces that before calling in.
type ItemCreation struct {
	store   store.Store
	states  *StateManager
	catalog *Catalog
	clock   func() time.Time
}

// NewItemCreation creates the sub-flow handler.
func NewItemCreation(st store.Store, states *StateManager, catalog *Catalog) *ItemCreation {
	return &ItemCreation{store: st, states: states, catalog: catalog, clock: time.Now}
}

// Begin starts the creation sub-flow for the given kind.
func (c *ItemCreation) Begin(conv *models.Conversation, kind ItemKind, language models.Language) (string, error) {
	if err := c.store.UpdateContext(conv.ID, models.ConversationContext{ItemCreation: &models.ItemCreationDraft{}}); err != nil {
		return "", fmt.Errorf("failed to initialize creation draft: %w", err)
	}
	if err := c.states.SetState(conv, models.ConversationState{Flow: kind.Flow(), Step: models.StepWaitingForResponsible}); err != nil {
		return "", err
	}
	return c.catalog.Get(language, TemplateAskResponsible), nil
}

// HandleStep advances the sub-flow with the staff member's answer.
func (c *ItemCreation) HandleStep(conv *models.Conversation, user *models.User, text string, language models.Language) (string, error) {
	kind := ItemKindRequest
	if conv.State.Flow == models.FlowTaskCreation {
		kind = ItemKindTask
	}
	answer := strings.TrimSpace(text)

	switch conv.State.Step {
	case models.StepWaitingForResponsible:
		if answer == "" {
			return c.catalog.Get(language, TemplateAskResponsible), nil
		}
		draft := &models.ItemCreationDraft{Responsible: answer}
		if err := c.store.UpdateContext(conv.ID, models.ConversationContext{ItemCreation: draft}); err != nil {
			return "", fmt.Errorf("failed to persist responsible: %w", err)
		}
		if err := c.states.SetState(conv, models.ConversationState{Flow: kind.Flow(), Step: models.StepWaitingForDescription}); err != nil {
			return "", err
		}
		return c.catalog.Get(language, TemplateAskDescription), nil

	case models.StepWaitingForDescription:
		if answer == "" {
			return c.catalog.Get(language, TemplateAskDescription), nil
		}
		draft := c.store.GetContext(conv.ID).ItemCreation
		if draft == nil || draft.Responsible == "" {
			if err := c.states.ResetToIdle(conv); err != nil {
				return "", err
			}
			return c.catalog.Get(language, TemplateUnknownState), nil
		}
		if err := c.create(conv, user, kind, draft.Responsible, answer); err != nil {
			return "", err
		}
		if err := c.states.ResetToIdle(conv); err != nil {
			return "", err
		}
		created := TemplateRequestCreated
		if kind == ItemKindTask {
			created = TemplateTaskCreated
		}
		return fmt.Sprintf(c.catalog.Get(language, created), draft.Responsible), nil

	default:
		if err := c.states.ResetToIdle(conv); err != nil {
			return "", err
		}
		return c.catalog.Get(language, TemplateUnknownState), nil
	}
}

func (c *ItemCreation) create(conv *models.Conversation, user *models.User, kind ItemKind, responsible, description string) error {
	createdBy := ""
	if user != nil {
		createdBy = user.Name
	}
	now := c.clock()
	var err error
	if kind == ItemKindTask {
		err = c.store.CreateTask(models.TaskItem{
			ID:          util.GenerateTaskID(),
			ScopeID:     conv.ScopeID,
			CreatedBy:   createdBy,
			Responsible: responsible,
			Description: description,
			Status:      models.ItemStatusOpen,
			CreatedAt:   now,
		})
	} else {
		err = c.store.CreateRequest(models.RequestItem{
			ID:          util.GenerateRequestID(),
			ScopeID:     conv.ScopeID,
			CreatedBy:   createdBy,
			Responsible: responsible,
			Description: description,
			Status:      models.ItemStatusOpen,
			CreatedAt:   now,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", kind, err)
	}
	slog.Info("ItemCreation.create", "kind", kind, "scopeID", conv.ScopeID, "responsible", responsible)
	return nil
}

// List renders the open items of a kind for the conversation's scope.
func (c *ItemCreation) List(conv *models.Conversation, kind ItemKind, language models.Language) (string, error) {
	var lines []string
	if kind == ItemKindTask {
		items, err := c.store.ListOpenTasks(conv.ScopeID)
		if err != nil {
			return "", fmt.Errorf("failed to list tasks: %w", err)
		}
		if len(items) == 0 {
			return c.catalog.Get(language, TemplateTodosListEmpty), nil
		}
		lines = append(lines, c.catalog.Get(language, TemplateTodosListHeader))
		for _, item := range items {
			lines = append(lines, fmt.Sprintf("- %s: %s", item.Responsible, item.Description))
		}
	} else {
		items, err := c.store.ListOpenRequests(conv.ScopeID)
		if err != nil {
			return "", fmt.Errorf("failed to list requests: %w", err)
		}
		if len(items) == 0 {
			return c.catalog.Get(language, TemplateRequestsListEmpty), nil
		}
		lines = append(lines, c.catalog.Get(language, TemplateRequestsListHeader))
		for _, item := range items {
			lines = append(lines, fmt.Sprintf("- %s: %s", item.Responsible, item.Description))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// AuthTemplate picks the unauthenticated reply for a command.
func AuthTemplate(kind ItemKind, creating bool) TemplateKey {
	switch {
	case creating && kind == ItemKindTask:
		return TemplateTaskCreationAuth
	case creating:
		return TemplateRequestCreationAuth
	case kind == ItemKindTask:
		return TemplateTodosRequireAuth
	default:
		return TemplateRequestsRequireAuth
	}
}
