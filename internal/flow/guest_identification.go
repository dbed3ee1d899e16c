package flow

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/StayPipe/StayPipe/internal/guest"
	"github.com/StayPipe/StayPipe/internal/models"
	"github.com/StayPipe/StayPipe/internal/store"
)

// minAnswerLength rejects one-character answers to identification
// questions before they poison the lookup.
const minAnswerLength = 2

var (
	skipKeywordPattern = regexp.MustCompile(`^(skip|überspringen|ueberspringen|saltar)[!. ]*$`)
	birthdatePattern   = regexp.MustCompile(`(\d{1,2})[./-](\d{1,2})[./-](\d{4})`)
)

// GuestIdentification runs the four-question identification sub-flow for
// guests who are not resolvable by phone number: first name, last name,
// nationality, and, only when several reservations match, birthdate.
type GuestIdentification struct {
	store   store.Store
	guests  *guest.Service
	states  *StateManager
	catalog *Catalog
	clock   func() time.Time
}

// NewGuestIdentification creates the sub-flow handler.
func NewGuestIdentification(st store.Store, guests *guest.Service, states *StateManager, catalog *Catalog) *GuestIdentification {
	return &GuestIdentification{
		store:   st,
		guests:  guests,
		states:  states,
		catalog: catalog,
		clock:   time.Now,
	}
}

// Begin handles a code or pincode request from an idle conversation. When
// the phone number resolves a reservation directly the reply is immediate
// and no sub-flow starts. Otherwise the identification questions begin.
func (g *GuestIdentification) Begin(conv *models.Conversation, requestType models.GuestRequestType, originalMessage string, language models.Language) (string, error) {
	reservation, err := g.guests.IdentifyByPhone(conv.ChannelAddress, conv.ScopeID)
	if err != nil {
		return "", err
	}
	if reservation != nil {
		slog.Debug("GuestIdentification.Begin resolved by phone", "conversationID", conv.ID, "reservationID", reservation.ID)
		return g.resolvedReply(reservation, requestType, language), nil
	}

	draft := &models.GuestIdentificationDraft{
		Step:            models.StepName,
		RequestType:     requestType,
		OriginalMessage: originalMessage,
	}
	if err := g.store.UpdateContext(conv.ID, models.ConversationContext{GuestIdentification: draft}); err != nil {
		return "", fmt.Errorf("failed to persist identification draft: %w", err)
	}
	if err := g.states.SetState(conv, models.ConversationState{Flow: requestType.Flow(), Step: models.StepName}); err != nil {
		return "", err
	}
	return g.catalog.Get(language, TemplateAskFirstName), nil
}

// HandleStep advances the sub-flow by one answer. Terminal outcomes
// (resolved, not found, abandoned) always reset the conversation to idle.
func (g *GuestIdentification) HandleStep(conv *models.Conversation, text string, language models.Language) (string, error) {
	ctx := g.store.GetContext(conv.ID)
	draft := ctx.GuestIdentification
	if draft == nil {
		// State says identification but the draft is gone. Recover by
		// starting over rather than guessing.
		slog.Warn("GuestIdentification.HandleStep draft missing", "conversationID", conv.ID, "state", conv.State.String())
		if err := g.states.ResetToIdle(conv); err != nil {
			return "", err
		}
		return g.catalog.Get(language, TemplateUnknownState), nil
	}

	answer := strings.TrimSpace(text)
	switch conv.State.Step {
	case models.StepName:
		return g.collectAnswer(conv, draft, answer, language, models.StepLastName, TemplateAskLastName, func(d *models.GuestIdentificationDraft) {
			d.Collected.FirstName = answer
		})
	case models.StepLastName:
		return g.collectAnswer(conv, draft, answer, language, models.StepNationality, TemplateAskNationality, func(d *models.GuestIdentificationDraft) {
			d.Collected.LastName = answer
		})
	case models.StepNationality:
		return g.handleNationality(conv, draft, answer, language)
	case models.StepBirthdate:
		return g.handleBirthdate(conv, draft, answer, language)
	default:
		if err := g.states.ResetToIdle(conv); err != nil {
			return "", err
		}
		return g.catalog.Get(language, TemplateUnknownState), nil
	}
}

// collectAnswer stores one valid answer and moves to the next question. A
// too-short answer repeats the current question.
func (g *GuestIdentification) collectAnswer(conv *models.Conversation, draft *models.GuestIdentificationDraft, answer string, language models.Language, next models.Step, ask TemplateKey, record func(*models.GuestIdentificationDraft)) (string, error) {
	if len([]rune(answer)) < minAnswerLength {
		return g.repeatQuestion(conv, language), nil
	}
	record(draft)
	draft.Step = next
	if err := g.store.UpdateContext(conv.ID, models.ConversationContext{GuestIdentification: draft}); err != nil {
		return "", fmt.Errorf("failed to persist identification answer: %w", err)
	}
	if err := g.states.SetState(conv, models.ConversationState{Flow: conv.State.Flow, Step: next}); err != nil {
		return "", err
	}
	return g.catalog.Get(language, ask), nil
}

// handleNationality records the last of the three mandatory answers and
// runs the reservation lookup.
func (g *GuestIdentification) handleNationality(conv *models.Conversation, draft *models.GuestIdentificationDraft, answer string, language models.Language) (string, error) {
	if len([]rune(answer)) < minAnswerLength {
		return g.repeatQuestion(conv, language), nil
	}
	draft.Collected.Nationality = answer

	matches, err := g.guests.FindByDetails(g.query(conv, draft, ""))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return g.finish(conv, g.catalog.Get(language, TemplateGuestNotFound))
	case 1:
		return g.finish(conv, g.resolvedReply(&matches[0], draft.RequestType, language))
	default:
		draft.Step = models.StepBirthdate
		draft.Candidates = summarize(matches)
		if err := g.store.UpdateContext(conv.ID, models.ConversationContext{GuestIdentification: draft}); err != nil {
			return "", fmt.Errorf("failed to persist candidates: %w", err)
		}
		if err := g.states.SetState(conv, models.ConversationState{Flow: conv.State.Flow, Step: models.StepBirthdate}); err != nil {
			return "", err
		}
		return g.catalog.Get(language, TemplateAskBirthdate), nil
	}
}

// handleBirthdate narrows multiple candidates by birthdate. Skipping hands
// the guest to reception with the candidate list.
func (g *GuestIdentification) handleBirthdate(conv *models.Conversation, draft *models.GuestIdentificationDraft, answer string, language models.Language) (string, error) {
	lowered := strings.ToLower(answer)
	if skipKeywordPattern.MatchString(lowered) {
		reply := fmt.Sprintf(g.catalog.Get(language, TemplateGuestMultipleFound), candidateList(draft.Candidates))
		return g.finish(conv, reply)
	}

	m := birthdatePattern.FindStringSubmatch(answer)
	if m == nil {
		return g.catalog.Get(language, TemplateAskBirthdate), nil
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	birthdate := fmt.Sprintf("%s-%02d-%02d", m[3], month, day)

	matches, err := g.guests.FindByDetails(g.query(conv, draft, birthdate))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return g.finish(conv, g.catalog.Get(language, TemplateGuestNotFound))
	case 1:
		return g.finish(conv, g.resolvedReply(&matches[0], draft.RequestType, language))
	default:
		reply := fmt.Sprintf(g.catalog.Get(language, TemplateGuestMultipleFound), candidateList(summarize(matches)))
		return g.finish(conv, reply)
	}
}

// finish resets to idle, drops the draft, and returns the terminal reply.
func (g *GuestIdentification) finish(conv *models.Conversation, reply string) (string, error) {
	if err := g.states.ResetToIdle(conv); err != nil {
		return "", err
	}
	return reply, nil
}

func (g *GuestIdentification) query(conv *models.Conversation, draft *models.GuestIdentificationDraft, birthdate string) store.GuestQuery {
	return store.GuestQuery{
		FirstName:   draft.Collected.FirstName,
		LastName:    draft.Collected.LastName,
		Nationality: draft.Collected.Nationality,
		Birthdate:   birthdate,
		ScopeID:     conv.ScopeID,
		Now:         g.clock(),
	}
}

func (g *GuestIdentification) resolvedReply(r *models.Reservation, requestType models.GuestRequestType, language models.Language) string {
	if requestType == models.GuestRequestPincode {
		return g.guests.BuildPincodeMessage(r, language)
	}
	return g.guests.BuildStatusMessage(r, language)
}

// repeatQuestion re-asks the question for the current step.
func (g *GuestIdentification) repeatQuestion(conv *models.Conversation, language models.Language) string {
	switch conv.State.Step {
	case models.StepName:
		return g.catalog.Get(language, TemplateAskFirstName)
	case models.StepLastName:
		return g.catalog.Get(language, TemplateAskLastName)
	case models.StepNationality:
		return g.catalog.Get(language, TemplateAskNationality)
	default:
		return g.catalog.Get(language, TemplateAskBirthdate)
	}
}

func summarize(matches []models.Reservation) []models.CandidateReservation {
	out := make([]models.CandidateReservation, 0, len(matches))
	for i := range matches {
		out = append(out, matches[i].Summary())
	}
	return out
}

// candidateList renders candidates for the multiple-found reply.
func candidateList(candidates []models.CandidateReservation) string {
	lines := make([]string, 0, len(candidates))
	for _, c := range candidates {
		lines = append(lines, fmt.Sprintf("- #%d: %s / %s", c.ID, c.CheckInDate, c.CheckOutDate))
	}
	return strings.Join(lines, "\n")
}
