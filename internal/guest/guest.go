// Package guest resolves hotel guests to their reservations and renders the
// status and pincode replies sent after a successful identification.
package guest

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/StayPipe/StayPipe/internal/models"
	"github.com/StayPipe/StayPipe/internal/store"
)

// MessageTemplates holds the per-language fragments of the guest status and
// pincode replies. Placeholders are positional fmt verbs.
type MessageTemplates struct {
	Greeting        string // %s: guest first name
	PaymentPending  string // %s: payment link
	CheckInPending  string // %s: check-in link
	CodeLine        string // %s: access code
	BothPendingNote string
	NoCode          string
	SeeYou          string
	PincodeLine     string // %s: door pin
}

// defaultTemplates cover the supported reply languages. Spanish doubles as
// the fallback for languages without an entry.
var defaultTemplates = map[models.Language]MessageTemplates{
	models.LanguageSpanish: {
		Greeting:        "¡Hola %s!",
		PaymentPending:  "Pago pendiente: %s",
		CheckInPending:  "Check-in online pendiente: %s",
		CodeLine:        "Tu código de acceso es: %s",
		BothPendingNote: "Por favor completa el pago y el check-in online antes de tu llegada.",
		NoCode:          "Tu código aún no está disponible. Por favor contacta a recepción.",
		SeeYou:          "¡Te esperamos!",
		PincodeLine:     "Tu PIN de la puerta es: %s",
	},
	models.LanguageGerman: {
		Greeting:        "Hallo %s!",
		PaymentPending:  "Zahlung ausstehend: %s",
		CheckInPending:  "Online-Check-in ausstehend: %s",
		CodeLine:        "Dein Zugangscode lautet: %s",
		BothPendingNote: "Bitte schliesse Zahlung und Online-Check-in vor deiner Ankunft ab.",
		NoCode:          "Dein Code ist noch nicht verfügbar. Bitte wende dich an die Rezeption.",
		SeeYou:          "Wir freuen uns auf dich!",
		PincodeLine:     "Dein Tür-PIN lautet: %s",
	},
	models.LanguageEnglish: {
		Greeting:        "Hello %s!",
		PaymentPending:  "Payment pending: %s",
		CheckInPending:  "Online check-in pending: %s",
		CodeLine:        "Your access code is: %s",
		BothPendingNote: "Please complete payment and online check-in before you arrive.",
		NoCode:          "Your code is not available yet. Please contact reception.",
		SeeYou:          "See you soon!",
		PincodeLine:     "Your door PIN is: %s",
	},
}

// Opts holds configuration options for the guest service.
type Opts struct {
	// Templates overrides the reply template catalog.
	Templates map[models.Language]MessageTemplates
}

// Option configures guest service creation.
type Option func(*Opts)

// WithTemplates replaces the reply template catalog.
func WithTemplates(templates map[models.Language]MessageTemplates) Option {
	return func(o *Opts) { o.Templates = templates }
}

// Service answers reservation lookups and builds guest-facing replies. The
// template catalog is fixed at construction.
type Service struct {
	store     store.Store
	templates map[models.Language]MessageTemplates
}

// NewService creates a guest service backed by the given store.
func NewService(st store.Store, opts ...Option) *Service {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	templates := cfg.Templates
	if templates == nil {
		templates = defaultTemplates
	}
	return &Service{store: st, templates: templates}
}

// templatesFor returns the catalog entry for a language, falling back to
// the default language for unsupported ones.
func (s *Service) templatesFor(language models.Language) MessageTemplates {
	if t, ok := s.templates[language]; ok {
		return t
	}
	return s.templates[models.DefaultLanguage]
}

// IdentifyByPhone returns the guest's active reservation for the address,
// or (nil, nil) when none matches.
func (s *Service) IdentifyByPhone(phone string, scopeID int64) (*models.Reservation, error) {
	r, err := s.store.FindActiveReservationByPhone(phone, scopeID)
	if err != nil {
		slog.Error("Service.IdentifyByPhone lookup failed", "error", err, "scopeID", scopeID)
		return nil, fmt.Errorf("failed to identify guest by phone: %w", err)
	}
	if r == nil {
		slog.Debug("Service.IdentifyByPhone no active reservation", "scopeID", scopeID)
		return nil, nil
	}
	slog.Debug("Service.IdentifyByPhone matched", "reservationID", r.ID, "scopeID", scopeID)
	return r, nil
}

// FindByDetails returns the active reservations matching the collected
// guest details.
func (s *Service) FindByDetails(q store.GuestQuery) ([]models.Reservation, error) {
	matches, err := s.store.FindReservationsByGuestDetails(q)
	if err != nil {
		slog.Error("Service.FindByDetails lookup failed", "error", err, "scopeID", q.ScopeID)
		return nil, fmt.Errorf("failed to find reservations by guest details: %w", err)
	}
	slog.Debug("Service.FindByDetails", "scopeID", q.ScopeID, "matches", len(matches))
	return matches, nil
}

// BuildStatusMessage renders the full reservation status reply: greeting,
// pending payment and check-in links, the access code line, and a closing.
func (s *Service) BuildStatusMessage(r *models.Reservation, language models.Language) string {
	t := s.templatesFor(language)
	lines := []string{fmt.Sprintf(t.Greeting, FirstName(r.GuestName)), ""}

	if r.NeedsPayment() && r.PaymentLink != "" {
		lines = append(lines, fmt.Sprintf(t.PaymentPending, r.PaymentLink))
	}
	if r.NeedsOnlineCheckIn() && r.CheckInLink != "" {
		lines = append(lines, fmt.Sprintf(t.CheckInPending, r.CheckInLink))
	}
	if code := r.AccessCode(); code != "" {
		lines = append(lines, fmt.Sprintf(t.CodeLine, code))
	} else {
		lines = append(lines, t.NoCode)
	}
	if r.NeedsPayment() && r.NeedsOnlineCheckIn() {
		lines = append(lines, "", t.BothPendingNote)
	}
	lines = append(lines, "", t.SeeYou)
	return strings.Join(lines, "\n")
}

// BuildPincodeMessage renders the short door-pin reply.
func (s *Service) BuildPincodeMessage(r *models.Reservation, language models.Language) string {
	t := s.templatesFor(language)
	lines := []string{fmt.Sprintf(t.Greeting, FirstName(r.GuestName)), ""}
	if code := r.AccessCode(); code != "" {
		lines = append(lines, fmt.Sprintf(t.PincodeLine, code))
	} else {
		lines = append(lines, t.NoCode)
	}
	lines = append(lines, "", t.SeeYou)
	return strings.Join(lines, "\n")
}

// FirstName extracts the leading name token for greetings.
func FirstName(guestName string) string {
	fields := strings.Fields(strings.TrimSpace(guestName))
	if len(fields) == 0 {
		return guestName
	}
	return fields[0]
}
