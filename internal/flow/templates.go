// Package flow implements the conversational state machine: message
// parsing, context merging, the booking extractor, the guest
// identification sub-flow, and the top-level engine that routes each turn.
package flow

import "github.com/StayPipe/StayPipe/internal/models"

// TemplateKey identifies a canned reply.
type TemplateKey string

const (
	TemplateAskFirstName           TemplateKey = "ask_first_name"
	TemplateAskLastName            TemplateKey = "ask_last_name"
	TemplateAskNationality         TemplateKey = "ask_nationality"
	TemplateAskBirthdate           TemplateKey = "ask_birthdate"
	TemplateGuestNotFound          TemplateKey = "guest_not_found"
	TemplateGuestMultipleFound     TemplateKey = "guest_multiple_found"
	TemplateRequestsRequireAuth    TemplateKey = "requests_require_auth"
	TemplateTodosRequireAuth       TemplateKey = "todos_require_auth"
	TemplateRequestCreationAuth    TemplateKey = "request_creation_require_auth"
	TemplateTaskCreationAuth       TemplateKey = "task_creation_require_auth"
	TemplateAskResponsible         TemplateKey = "ask_responsible"
	TemplateAskDescription         TemplateKey = "ask_description"
	TemplateRequestCreated         TemplateKey = "request_created"
	TemplateTaskCreated            TemplateKey = "task_created"
	TemplateRequestsListHeader     TemplateKey = "requests_list_header"
	TemplateTodosListHeader        TemplateKey = "todos_list_header"
	TemplateRequestsListEmpty      TemplateKey = "requests_list_empty"
	TemplateTodosListEmpty         TemplateKey = "todos_list_empty"
	TemplateResponderDisabled      TemplateKey = "responder_disabled"
	TemplateResponderMisconfigured TemplateKey = "responder_misconfigured"
	TemplateResponderError         TemplateKey = "responder_error"
	TemplateGenericError           TemplateKey = "generic_error"
	TemplateUnknownState           TemplateKey = "unknown_state"
)

// Catalog is an immutable language-to-template map fixed at construction.
// Lookups for an unsupported language or a missing key fall back to the
// default language entry.
type Catalog struct {
	templates map[models.Language]map[TemplateKey]string
}

// NewCatalog builds a catalog from the given tables. A nil argument yields
// the built-in catalog.
func NewCatalog(templates map[models.Language]map[TemplateKey]string) *Catalog {
	if templates == nil {
		templates = defaultTemplates
	}
	return &Catalog{templates: templates}
}

// Get returns the template for a language and key, falling back to the
// default language when either lookup misses.
func (c *Catalog) Get(language models.Language, key TemplateKey) string {
	if table, ok := c.templates[language]; ok {
		if text, ok := table[key]; ok {
			return text
		}
	}
	return c.templates[models.DefaultLanguage][key]
}

var defaultTemplates = map[models.Language]map[TemplateKey]string{
	models.LanguageSpanish: {
		TemplateAskFirstName:           "Para ayudarte necesito identificarte. ¿Cuál es tu nombre?",
		TemplateAskLastName:            "Gracias. ¿Cuál es tu apellido?",
		TemplateAskNationality:         "Perfecto. ¿Cuál es tu nacionalidad?",
		TemplateAskBirthdate:           "Encontré varias reservas a tu nombre. ¿Cuál es tu fecha de nacimiento? (DD.MM.AAAA, o escribe \"saltar\")",
		TemplateGuestNotFound:          "No encontré ninguna reserva activa con esos datos. Por favor contacta a recepción.",
		TemplateGuestMultipleFound:     "Sigo encontrando varias reservas con esos datos:\n%s\nPor favor contacta a recepción para continuar.",
		TemplateRequestsRequireAuth:    "Necesitas estar registrado para ver los requests.",
		TemplateTodosRequireAuth:       "Necesitas estar registrado para ver los to-dos.",
		TemplateRequestCreationAuth:    "Necesitas estar registrado para crear un request.",
		TemplateTaskCreationAuth:       "Necesitas estar registrado para crear un to-do.",
		TemplateAskResponsible:         "¿Quién es el responsable?",
		TemplateAskDescription:         "¿De qué se trata?",
		TemplateRequestCreated:         "Listo, creé el request para %s.",
		TemplateTaskCreated:            "Listo, creé el to-do para %s.",
		TemplateRequestsListHeader:     "Requests abiertos:",
		TemplateTodosListHeader:        "To-dos abiertos:",
		TemplateRequestsListEmpty:      "No hay requests abiertos.",
		TemplateTodosListEmpty:         "No hay to-dos abiertos.",
		TemplateResponderDisabled:      "Lo siento, el asistente no está activado para esta sucursal.",
		TemplateResponderMisconfigured: "Lo siento, el asistente no está configurado correctamente. Por favor contacta a recepción.",
		TemplateResponderError:         "Lo siento, no pude procesar tu mensaje en este momento. Inténtalo de nuevo más tarde.",
		TemplateGenericError:           "Lo siento, algo salió mal. Por favor inténtalo de nuevo.",
		TemplateUnknownState:           "Perdí el hilo de la conversación. Empecemos de nuevo, ¿en qué te puedo ayudar?",
	},
	models.LanguageGerman: {
		TemplateAskFirstName:           "Um dir zu helfen muss ich dich identifizieren. Wie lautet dein Vorname?",
		TemplateAskLastName:            "Danke. Wie lautet dein Nachname?",
		TemplateAskNationality:         "Perfekt. Was ist deine Nationalität?",
		TemplateAskBirthdate:           "Ich habe mehrere Reservierungen auf deinen Namen gefunden. Wie lautet dein Geburtsdatum? (TT.MM.JJJJ, oder schreibe \"überspringen\")",
		TemplateGuestNotFound:          "Ich habe keine aktive Reservierung mit diesen Angaben gefunden. Bitte wende dich an die Rezeption.",
		TemplateGuestMultipleFound:     "Ich finde weiterhin mehrere Reservierungen mit diesen Angaben:\n%s\nBitte wende dich an die Rezeption.",
		TemplateRequestsRequireAuth:    "Du musst registriert sein, um Requests zu sehen.",
		TemplateTodosRequireAuth:       "Du musst registriert sein, um To-dos zu sehen.",
		TemplateRequestCreationAuth:    "Du musst registriert sein, um einen Request zu erstellen.",
		TemplateTaskCreationAuth:       "Du musst registriert sein, um ein To-do zu erstellen.",
		TemplateAskResponsible:         "Wer ist verantwortlich?",
		TemplateAskDescription:         "Worum geht es?",
		TemplateRequestCreated:         "Erledigt, ich habe den Request für %s erstellt.",
		TemplateTaskCreated:            "Erledigt, ich habe das To-do für %s erstellt.",
		TemplateRequestsListHeader:     "Offene Requests:",
		TemplateTodosListHeader:        "Offene To-dos:",
		TemplateRequestsListEmpty:      "Keine offenen Requests.",
		TemplateTodosListEmpty:         "Keine offenen To-dos.",
		TemplateResponderDisabled:      "Entschuldigung, der Assistent ist für diesen Standort nicht aktiviert.",
		TemplateResponderMisconfigured: "Entschuldigung, der Assistent ist nicht richtig konfiguriert. Bitte wende dich an die Rezeption.",
		TemplateResponderError:         "Entschuldigung, ich konnte deine Nachricht gerade nicht verarbeiten. Bitte versuche es später erneut.",
		TemplateGenericError:           "Entschuldigung, etwas ist schiefgelaufen. Bitte versuche es erneut.",
		TemplateUnknownState:           "Ich habe den Faden verloren. Fangen wir neu an, wie kann ich dir helfen?",
	},
	models.LanguageEnglish: {
		TemplateAskFirstName:           "To help you I need to identify you first. What is your first name?",
		TemplateAskLastName:            "Thanks. What is your last name?",
		TemplateAskNationality:         "Perfect. What is your nationality?",
		TemplateAskBirthdate:           "I found several reservations under your name. What is your date of birth? (DD.MM.YYYY, or type \"skip\")",
		TemplateGuestNotFound:          "I could not find an active reservation with those details. Please contact reception.",
		TemplateGuestMultipleFound:     "I still find several reservations with those details:\n%s\nPlease contact reception to continue.",
		TemplateRequestsRequireAuth:    "You need to be registered to list requests.",
		TemplateTodosRequireAuth:       "You need to be registered to list to-dos.",
		TemplateRequestCreationAuth:    "You need to be registered to create a request.",
		TemplateTaskCreationAuth:       "You need to be registered to create a to-do.",
		TemplateAskResponsible:         "Who is responsible?",
		TemplateAskDescription:         "What is it about?",
		TemplateRequestCreated:         "Done, I created the request for %s.",
		TemplateTaskCreated:            "Done, I created the to-do for %s.",
		TemplateRequestsListHeader:     "Open requests:",
		TemplateTodosListHeader:        "Open to-dos:",
		TemplateRequestsListEmpty:      "No open requests.",
		TemplateTodosListEmpty:         "No open to-dos.",
		TemplateResponderDisabled:      "Sorry, the assistant is not enabled for this location.",
		TemplateResponderMisconfigured: "Sorry, the assistant is not configured correctly. Please contact reception.",
		TemplateResponderError:         "Sorry, I could not process your message right now. Please try again later.",
		TemplateGenericError:           "Sorry, something went wrong. Please try again.",
		TemplateUnknownState:           "I lost track of our conversation. Let's start over, how can I help you?",
	},
}
