package flow

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/StayPipe/StayPipe/internal/models"
)

// Intent classifies what a message is asking for.
type Intent string

const (
	IntentBooking      Intent = "booking"
	IntentAvailability Intent = "availability"
	IntentTour         Intent = "tour"
	IntentCode         Intent = "code"
	IntentStatus       Intent = "status"
	IntentOther        Intent = "other"
)

// ParsedMessage is the outcome of one parsing pass over an inbound message.
// Empty fields mean the message carried no signal for them.
type ParsedMessage struct {
	Intent         Intent
	CheckInDate    string
	CheckOutDate   string
	Name           string
	RoomName       string
	RoomType       models.RoomType
	CategoryID     int64
	IsConfirmation bool
}

var (
	confirmationPattern = regexp.MustCompile(`^(ja|sí|si|yes|ok|okay|genau|correcto)[!. ]*$`)

	bookingIntentPattern      = regexp.MustCompile(`\b(reservar|reservame|reserva|reservación|reservacion|buchen|buche|buchung|reservation|reserve|book)\b`)
	availabilityIntentPattern = regexp.MustCompile(`\b(disponible|disponibilidad|available|availability|frei|verfügbar|verfuegbar)\b`)
	tourIntentPattern         = regexp.MustCompile(`\b(tour|tours|excursión|excursion|ausflug)\b`)
	codeIntentPattern         = regexp.MustCompile(`\b(pin|code|código|codigo|passcode|contraseña|password)\b`)
	statusIntentPattern       = regexp.MustCompile(`\b(estado|status|mi reserva|my reservation|meine reservierung)\b`)

	sharedRoomPattern  = regexp.MustCompile(`\b(compartida|compartido|dorm|dormitorio|cama)\b`)
	privateRoomPattern = regexp.MustCompile(`\b(privada|privado|habitación|habitacion|zimmer)\b`)

	dayAfterTomorrowPattern = regexp.MustCompile(`pasado mañana|übermorgen|uebermorgen|day after tomorrow`)
	tomorrowPattern         = regexp.MustCompile(`\b(mañana|morgen|tomorrow)\b`)
	todayPattern            = regexp.MustCompile(`\b(hoy|heute|today)\b`)
	oneNightPattern         = regexp.MustCompile(`\b(1 noche|una noche|1 nacht|eine nacht|1 night|one night)\b`)

	checkInTokenPattern  = regexp.MustCompile(`check-?in:\s*([0-9./-]+)`)
	checkOutTokenPattern = regexp.MustCompile(`check-?out:\s*([0-9./-]+)`)

	dateRangePattern = regexp.MustCompile(`(\d{1,2}[./-]\d{1,2}(?:[./-]\d{2,4})?)\s*(?:-|al|a|bis|to|hasta)\s*(\d{1,2}[./-]\d{1,2}(?:[./-]\d{2,4})?)`)
	fromToPattern    = regexp.MustCompile(`(?:von|desde|from)\s+([0-9./-]+)\s+(?:bis|hasta|to)\s+([0-9./-]+)`)
	singleDatePattern = regexp.MustCompile(`\b(\d{1,2})[./-](\d{1,2})(?:[./-](\d{2,4}))?\b`)

	namedMarkerPattern = regexp.MustCompile(`(?:a nombre de|mi nombre es|me llamo|my name is|ich heisse|ich heiße|nombre|name|für|para|ist|mit)\s+((?:\p{Lu}\p{Ll}+)(?:\s+\p{Lu}\p{Ll}+)*)`)
	bareNamePattern    = regexp.MustCompile(`^(\p{Lu}\p{Ll}+(?:\s+\p{Lu}\p{Ll}+){1,3})[!. ]*$`)
	leadingMarkers     = regexp.MustCompile(`^(?:a nombre de|mi nombre es|me llamo|my name is|ich heisse|ich heiße|nombre|name|für|para|ist|mit)\s+`)

	roomMentionPattern = regexp.MustCompile(`(?:habitación|habitacion|zimmer|room)\s+(?:(?:el|la|los|las|un|una)\s+)?([\p{L}0-9]+)`)

	articlePrefix = regexp.MustCompile(`^(el|la|los|las|un|una)\s+`)
)

// roomFallbackKeywords break ties in the type-scoped fallback tier, tried
// in order.
var roomFallbackKeywords = []string{"doble", "básica", "básico", "estándar", "estandar", "apartamento", "singular", "deluxe"}

// roomTypeWords never count as a literal room name.
var roomTypeWords = map[string]bool{
	"privada": true, "privado": true, "compartida": true, "compartido": true,
	"doble": true, "individual": true,
}

// Opts holds configuration options for the parser.
type ParserOpts struct {
	// Clock supplies the current time for relative date resolution.
	Clock func() time.Time
}

// ParserOption configures parser creation.
type ParserOption func(*ParserOpts)

// WithClock overrides the time source. Tests pin it.
func WithClock(clock func() time.Time) ParserOption {
	return func(o *ParserOpts) { o.Clock = clock }
}

// Parser extracts booking fields from inbound messages. It is stateless
// apart from the clock and safe for concurrent use.
type Parser struct {
	clock func() time.Time
}

// NewParser creates a parser.
func NewParser(opts ...ParserOption) *Parser {
	var cfg ParserOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Parser{clock: clock}
}

// Parse runs all extractors over the message. The existing booking draft
// supplies anchors for relative phrases ("1 noche" against a known
// check-in) and the availability snapshot for room matching.
func (p *Parser) Parse(text string, booking *models.BookingDraft) ParsedMessage {
	lowered := strings.ToLower(strings.TrimSpace(text))
	parsed := ParsedMessage{Intent: p.parseIntent(lowered)}
	parsed.IsConfirmation = confirmationPattern.MatchString(lowered)

	parsed.RoomType = parseRoomType(lowered)
	p.parseDates(lowered, booking, &parsed)
	parsed.Name = parseName(text)
	p.parseRoom(lowered, booking, &parsed)

	slog.Debug("Parser.Parse", "intent", parsed.Intent, "checkIn", parsed.CheckInDate,
		"checkOut", parsed.CheckOutDate, "room", parsed.RoomName, "categoryID", parsed.CategoryID,
		"confirmation", parsed.IsConfirmation)
	return parsed
}

func (p *Parser) parseIntent(lowered string) Intent {
	switch {
	case bookingIntentPattern.MatchString(lowered):
		return IntentBooking
	case availabilityIntentPattern.MatchString(lowered):
		return IntentAvailability
	case tourIntentPattern.MatchString(lowered):
		return IntentTour
	case codeIntentPattern.MatchString(lowered):
		return IntentCode
	case statusIntentPattern.MatchString(lowered):
		return IntentStatus
	default:
		return IntentOther
	}
}

func parseRoomType(lowered string) models.RoomType {
	if sharedRoomPattern.MatchString(lowered) {
		return models.RoomTypeShared
	}
	if privateRoomPattern.MatchString(lowered) {
		return models.RoomTypePrivate
	}
	return ""
}

// parseDates resolves relative phrases, explicit tokens, ranges and single
// dates, in that priority order. Explicit checkin:/checkout: tokens win.
func (p *Parser) parseDates(lowered string, booking *models.BookingDraft, parsed *ParsedMessage) {
	today := p.today()

	// Relative phrases. Day-after-tomorrow must be checked before
	// tomorrow because the Spanish and German phrases contain it.
	switch {
	case dayAfterTomorrowPattern.MatchString(lowered):
		parsed.CheckInDate = formatDate(today.AddDate(0, 0, 2))
	case tomorrowPattern.MatchString(lowered):
		parsed.CheckInDate = formatDate(today.AddDate(0, 0, 1))
	case todayPattern.MatchString(lowered):
		parsed.CheckInDate = formatDate(today)
	}

	// "1 night" pins the check-out one day after the check-in anchor. The
	// anchor is the date found above, or the one already in the draft.
	if oneNightPattern.MatchString(lowered) {
		anchor := parsed.CheckInDate
		if anchor == "" && booking != nil {
			anchor = booking.CheckInDate
		}
		if anchor != "" {
			if t, err := time.Parse(models.DateLayout, anchor); err == nil {
				parsed.CheckInDate = anchor
				parsed.CheckOutDate = formatDate(t.AddDate(0, 0, 1))
			}
		}
	}

	// Date ranges: "12.09. - 15.09." and "von 12.09 bis 15.09" forms.
	if m := fromToPattern.FindStringSubmatch(lowered); m != nil {
		p.applyRange(m[1], m[2], parsed)
	} else if m := dateRangePattern.FindStringSubmatch(lowered); m != nil {
		p.applyRange(m[1], m[2], parsed)
	} else if parsed.CheckInDate == "" {
		if m := singleDatePattern.FindStringSubmatch(lowered); m != nil {
			if d := p.parseExplicitDate(m[0]); d != "" {
				parsed.CheckInDate = d
			}
		}
	}

	// Explicit tokens override everything found so far.
	if m := checkInTokenPattern.FindStringSubmatch(lowered); m != nil {
		if d := p.parseExplicitDate(m[1]); d != "" {
			parsed.CheckInDate = d
		}
	}
	if m := checkOutTokenPattern.FindStringSubmatch(lowered); m != nil {
		if d := p.parseExplicitDate(m[1]); d != "" {
			parsed.CheckOutDate = d
		}
	}

	// A bare confirmation keeps whatever the draft already anchors.
	if parsed.IsConfirmation && booking != nil {
		if parsed.CheckInDate == "" {
			parsed.CheckInDate = booking.CheckInDate
		}
		if parsed.CheckOutDate == "" {
			parsed.CheckOutDate = booking.CheckOutDate
		}
	}
}

func (p *Parser) applyRange(from, to string, parsed *ParsedMessage) {
	checkIn := p.parseExplicitDate(from)
	checkOut := p.parseExplicitDate(to)
	if checkIn != "" && checkOut != "" {
		parsed.CheckInDate = checkIn
		parsed.CheckOutDate = checkOut
	}
}

// parseExplicitDate turns "12.09", "12/09/2026" or "12-9" into a wire
// date. A date without a year that already passed rolls to next year.
func (p *Parser) parseExplicitDate(raw string) string {
	m := singleDatePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return ""
	}
	day, err1 := strconv.Atoi(m[1])
	month, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || day < 1 || day > 31 || month < 1 || month > 12 {
		return ""
	}
	today := p.today()
	year := today.Year()
	hasYear := m[3] != ""
	if hasYear {
		year, _ = strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if !hasYear && date.Before(today) {
		date = date.AddDate(1, 0, 0)
	}
	return formatDate(date)
}

// parseName extracts a guest name: explicit markers first, then a bare
// message of two to four capitalized words.
func parseName(text string) string {
	text = strings.TrimSpace(text)
	if m := namedMarkerPattern.FindStringSubmatch(text); m != nil {
		name := cleanName(m[1])
		if strings.Contains(name, " ") {
			return name
		}
	}
	if m := bareNamePattern.FindStringSubmatch(text); m != nil {
		return cleanName(m[1])
	}
	return ""
}

// cleanName strips marker words that leaked into a capture.
func cleanName(name string) string {
	return strings.TrimSpace(leadingMarkers.ReplaceAllString(strings.TrimSpace(name), ""))
}

// parseRoom resolves a room reference against the cached availability
// snapshot using the four-tier fuzzy match, loosest tier last. Without a
// snapshot only a literal room mention is extracted, left uncategorized.
func (p *Parser) parseRoom(lowered string, booking *models.BookingDraft, parsed *ParsedMessage) {
	var rooms []models.RoomOption
	if booking != nil && booking.LastAvailabilityCheck != nil {
		rooms = booking.LastAvailabilityCheck.Rooms
	}

	if len(rooms) > 0 {
		if match := matchRoom(lowered, rooms, parsed.RoomType); match != nil {
			parsed.RoomName = match.Name
			parsed.CategoryID = match.CategoryID
			parsed.RoomType = match.Type
			return
		}
	}

	if m := roomMentionPattern.FindStringSubmatch(lowered); m != nil {
		if !roomTypeWords[m[1]] {
			parsed.RoomName = m[1]
		}
	}
}

// matchRoom applies the fuzzy tiers in fixed order: exact/article-stripped
// containment, significant-word overlap, stem comparison, and finally the
// type-scoped fallback. Tier order is part of the acceptance behavior.
func matchRoom(lowered string, rooms []models.RoomOption, roomType models.RoomType) *models.RoomOption {
	// Tier 1: exact or article-stripped containment.
	for i := range rooms {
		name := strings.ToLower(rooms[i].Name)
		stripped := stripArticle(name)
		msgStripped := stripArticle(lowered)
		if strings.Contains(lowered, name) || strings.Contains(msgStripped, stripped) ||
			(stripped != "" && strings.Contains(stripped, msgStripped) && len(msgStripped) > 3) {
			return &rooms[i]
		}
	}

	// Tier 2: at least two significant name parts appear as words.
	words := wordSet(lowered)
	for i := range rooms {
		overlap := 0
		for _, part := range strings.Fields(strings.ToLower(rooms[i].Name)) {
			if len(part) > 2 && words[part] {
				overlap++
			}
		}
		if overlap >= 2 {
			return &rooms[i]
		}
	}

	// Tier 3: suffix-stripped stem comparison, whole name and word level.
	for i := range rooms {
		name := stripArticle(strings.ToLower(rooms[i].Name))
		nameStem := stemWord(name)
		msgStem := stemWord(stripArticle(lowered))
		if len(nameStem) > 3 && (strings.Contains(msgStem, nameStem) || strings.Contains(nameStem, msgStem) && len(msgStem) > 3) {
			return &rooms[i]
		}
		matching := 0
		for _, part := range strings.Fields(name) {
			if len(part) <= 3 {
				continue
			}
			partStem := stemWord(part)
			for word := range words {
				if len(word) > 3 && stemWord(word) == partStem {
					matching++
					break
				}
			}
		}
		if matching >= 2 {
			return &rooms[i]
		}
	}

	// Tier 4: type-scoped fallback.
	if roomType == "" {
		return nil
	}
	var typed []*models.RoomOption
	for i := range rooms {
		if rooms[i].Type == roomType {
			typed = append(typed, &rooms[i])
		}
	}
	switch {
	case len(typed) == 0:
		return nil
	case len(typed) == 1:
		return typed[0]
	default:
		for _, keyword := range roomFallbackKeywords {
			for _, room := range typed {
				if strings.Contains(strings.ToLower(room.Name), keyword) {
					return room
				}
			}
		}
		return typed[0]
	}
}

// stripArticle removes a leading Spanish article.
func stripArticle(s string) string {
	return articlePrefix.ReplaceAllString(strings.TrimSpace(s), "")
}

// stemWord strips one trailing vowel or plural s, the loosest comparison
// the matcher ever does.
func stemWord(s string) string {
	for len(s) > 3 {
		last := s[len(s)-1]
		if last == 'o' || last == 'a' || last == 'e' || last == 's' {
			s = s[:len(s)-1]
			continue
		}
		break
	}
	return s
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127)
	}) {
		set[w] = true
	}
	return set
}

func (p *Parser) today() time.Time {
	now := p.clock()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}

// describeMissing lists the booking fields a draft still lacks, for
// extraction diagnostics. Guest name is reported but never blocks firing.
func describeMissing(booking *models.BookingDraft) []string {
	var missing []string
	if booking == nil {
		return []string{"check_in_date", "check_out_date", "room_type"}
	}
	if booking.CheckInDate == "" {
		missing = append(missing, "check_in_date")
	}
	if booking.CheckOutDate == "" {
		missing = append(missing, "check_out_date")
	}
	if booking.RoomType == "" {
		missing = append(missing, "room_type")
	}
	if booking.RoomName != "" && booking.CategoryID == 0 {
		missing = append(missing, "category_id")
	}
	if booking.GuestName == "" {
		missing = append(missing, "guest_name")
	}
	return missing
}
