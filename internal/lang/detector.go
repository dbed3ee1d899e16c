// Package lang infers the reply language for a conversation turn.
//
// Detection is a fixed weighted lexicon scorer: per-language regex groups
// (greetings, diacritics, function words) are counted over the lower-cased
// message and the strictly highest score wins. A phone country-code table
// provides the address fallback. The caller priority chain is message text,
// then pinned context language, then phone prefix, then the static default.
package lang

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/StayPipe/StayPipe/internal/models"
)

// shortGreetingMax is the length bound under which a bare English greeting
// forces English regardless of scores.
const shortGreetingMax = 10

var shortEnglishGreeting = regexp.MustCompile(`^(hi|hello|hey)[!.\s]*$`)

// indicator is one weighted pattern group. Every occurrence counts.
type indicator struct {
	pattern *regexp.Regexp
	weight  int
}

var spanishIndicators = []indicator{
	{regexp.MustCompile(`\b(hola|buenos días|buenas tardes|buenas noches|saludos)\b`), 3},
	{regexp.MustCompile(`[áéíóúñü¿¡]`), 2},
	{regexp.MustCompile(`\b(quiero|necesito|reservar|reservación|habitación|disponible|noche|noches|gracias|por favor|tengo|cuánto|cuándo|dónde|mañana|para|una|cama)\b`), 1},
}

var germanIndicators = []indicator{
	{regexp.MustCompile(`\b(hallo|guten morgen|guten tag|guten abend|grüezi|servus)\b`), 3},
	{regexp.MustCompile(`\b(zimmer|frei|verfügbar|buchen|buche|übernachtung|nacht|nächte|möchte|brauche|haben|verloren)\b`), 2},
	{regexp.MustCompile(`[äöüß]`), 2},
	{regexp.MustCompile(`\b(der|die|das|ein|eine|ich|und|für|mit|bitte|danke|morgen)\b`), 1},
}

var englishIndicators = []indicator{
	{regexp.MustCompile(`\b(hi|hello|hey|good morning|good afternoon|good evening)\b`), 3},
	{regexp.MustCompile(`\b(i would like|i want to|do you have|is there|can i)\b`), 3},
	{regexp.MustCompile(`\b(book|booking|reservation|room|available|availability|night|nights|tomorrow)\b`), 2},
	{regexp.MustCompile(`\b(want|need|have|please|thanks|thank you)\b`), 1},
	{regexp.MustCompile(`\b(the|and|for|with|this|that)\b`), 1},
}

var frenchIndicators = []indicator{
	{regexp.MustCompile(`\b(bonjour|bonsoir|salut)\b`), 3},
	{regexp.MustCompile(`\b(je voudrais|je veux|avez-vous|s'il vous plaît)\b`), 3},
	{regexp.MustCompile(`\b(chambre|réserver|réservation|disponible|nuit|nuits|merci)\b`), 2},
}

// scoringOrder fixes tie behavior: on equal scores the earlier language wins.
var scoringOrder = []struct {
	language   models.Language
	indicators []indicator
}{
	{models.LanguageSpanish, spanishIndicators},
	{models.LanguageGerman, germanIndicators},
	{models.LanguageEnglish, englishIndicators},
	{models.LanguageFrench, frenchIndicators},
}

// defaultPhonePrefixes maps country calling codes to languages. Prefixes are
// tried longest first (3 digits down to 1).
var defaultPhonePrefixes = map[string]models.Language{
	"1":   models.LanguageEnglish,
	"33":  models.LanguageFrench,
	"34":  models.LanguageSpanish,
	"41":  models.LanguageGerman,
	"43":  models.LanguageGerman,
	"44":  models.LanguageEnglish,
	"49":  models.LanguageGerman,
	"51":  models.LanguageSpanish,
	"52":  models.LanguageSpanish,
	"54":  models.LanguageSpanish,
	"56":  models.LanguageSpanish,
	"57":  models.LanguageSpanish,
	"61":  models.LanguageEnglish,
	"593": models.LanguageSpanish,
}

// Opts holds configuration options for the detector.
type Opts struct {
	// DefaultLanguage overrides the static default.
	DefaultLanguage models.Language
	// PhonePrefixes overrides the country-code table.
	PhonePrefixes map[string]models.Language
}

// Option configures detector creation.
type Option func(*Opts)

// WithDefaultLanguage sets the language returned when no signal matches.
func WithDefaultLanguage(l models.Language) Option {
	return func(o *Opts) { o.DefaultLanguage = l }
}

// WithPhonePrefixes replaces the country-code prefix table.
func WithPhonePrefixes(prefixes map[string]models.Language) Option {
	return func(o *Opts) { o.PhonePrefixes = prefixes }
}

// Detector scores message text and phone prefixes. It is pure and safe for
// concurrent use.
type Detector struct {
	defaultLanguage models.Language
	phonePrefixes   map[string]models.Language
}

// NewDetector creates a detector with the static tables.
func NewDetector(opts ...Option) *Detector {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Detector{
		defaultLanguage: cfg.DefaultLanguage,
		phonePrefixes:   cfg.PhonePrefixes,
	}
	if d.defaultLanguage == "" {
		d.defaultLanguage = models.DefaultLanguage
	}
	if d.phonePrefixes == nil {
		d.phonePrefixes = defaultPhonePrefixes
	}
	return d
}

// Detect infers a language from message text. Returns the empty language
// when no indicator matches, so callers can fall through the priority chain.
func (d *Detector) Detect(text string) models.Language {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return ""
	}

	if len(lowered) <= shortGreetingMax && shortEnglishGreeting.MatchString(lowered) {
		slog.Debug("Detector.Detect short English greeting", "text", lowered)
		return models.LanguageEnglish
	}

	best := models.Language("")
	bestScore := 0
	for _, entry := range scoringOrder {
		score := 0
		for _, ind := range entry.indicators {
			score += len(ind.pattern.FindAllString(lowered, -1)) * ind.weight
		}
		if score > bestScore {
			best = entry.language
			bestScore = score
		}
	}
	if bestScore == 0 {
		return ""
	}
	slog.Debug("Detector.Detect scored", "language", best, "score", bestScore)
	return best
}

// DetectFromAddress infers a language from the phone country code. Strips a
// leading "+" or "00", then tries prefixes of length 3 down to 1. Returns
// the default language when nothing matches.
func (d *Detector) DetectFromAddress(address string) models.Language {
	digits := strings.TrimSpace(address)
	digits = strings.TrimPrefix(digits, "whatsapp:")
	digits = strings.TrimPrefix(digits, "+")
	digits = strings.TrimPrefix(digits, "00")

	for length := 3; length >= 1; length-- {
		if len(digits) < length {
			continue
		}
		if l, ok := d.phonePrefixes[digits[:length]]; ok {
			slog.Debug("Detector.DetectFromAddress matched prefix", "prefix", digits[:length], "language", l)
			return l
		}
	}
	return d.defaultLanguage
}

// Resolve applies the caller priority chain: message text beats the pinned
// context language, which beats the phone prefix, which beats the default.
func (d *Detector) Resolve(text string, contextLanguage models.Language, address string) models.Language {
	if l := d.Detect(text); l != "" {
		return l
	}
	if models.IsValidLanguage(contextLanguage) {
		return contextLanguage
	}
	if address != "" {
		return d.DetectFromAddress(address)
	}
	return d.defaultLanguage
}
