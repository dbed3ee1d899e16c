package models

import "time"

// Flow identifies which conversation flow currently owns the turn.
type Flow string

const (
	// FlowIdle means no sub-flow is active; keyword dispatch and booking
	// extraction run in this flow.
	FlowIdle Flow = "idle"
	// FlowRequestCreation is the two-step request creation sub-flow.
	FlowRequestCreation Flow = "request_creation"
	// FlowTaskCreation is the two-step task creation sub-flow.
	FlowTaskCreation Flow = "task_creation"
	// FlowGuestIdentification resolves a guest asking for their access code.
	FlowGuestIdentification Flow = "guest_identification"
	// FlowPincodeIdentification resolves a guest asking for their door pin.
	FlowPincodeIdentification Flow = "guest_pincode_identification"
)

// Step identifies the position inside an active flow. Idle carries no step.
type Step string

const (
	// StepNone is the step value for the idle flow.
	StepNone Step = ""
	// StepName asks the guest for their first name.
	StepName Step = "name"
	// StepLastName asks the guest for their last name.
	StepLastName Step = "lastname"
	// StepNationality asks for nationality and runs the reservation lookup.
	StepNationality Step = "nationality"
	// StepBirthdate disambiguates multiple candidate reservations.
	StepBirthdate Step = "birthdate"
	// StepWaitingForResponsible asks who the request/task is assigned to.
	StepWaitingForResponsible Step = "waiting_for_responsible"
	// StepWaitingForDescription asks what the request/task is about.
	StepWaitingForDescription Step = "waiting_for_description"
)

// ConversationState is the composite flow position persisted per
// conversation. Flow and step are stored separately so routing never has to
// parse a combined state name.
type ConversationState struct {
	Flow Flow `json:"flow"`
	Step Step `json:"step,omitempty"`
}

// IdleState returns the initial state of every conversation.
func IdleState() ConversationState {
	return ConversationState{Flow: FlowIdle}
}

// IsIdle reports whether no sub-flow is active.
func (s ConversationState) IsIdle() bool {
	return s.Flow == FlowIdle || s.Flow == ""
}

// String renders the state for logging.
func (s ConversationState) String() string {
	if s.Step == StepNone {
		return string(s.Flow)
	}
	return string(s.Flow) + ":" + string(s.Step)
}

// Validate checks that flow and step form a known combination.
func (s ConversationState) Validate() error {
	switch s.Flow {
	case FlowIdle, "":
		if s.Step != StepNone {
			return ErrInvalidState
		}
	case FlowRequestCreation, FlowTaskCreation:
		if s.Step != StepWaitingForResponsible && s.Step != StepWaitingForDescription {
			return ErrInvalidState
		}
	case FlowGuestIdentification, FlowPincodeIdentification:
		switch s.Step {
		case StepName, StepLastName, StepNationality, StepBirthdate:
		default:
			return ErrInvalidState
		}
	default:
		return ErrInvalidState
	}
	return nil
}

// GuestRequestType distinguishes the two guest identification variants. It
// only changes the final message template, never the step sequence.
type GuestRequestType string

const (
	// GuestRequestCode asks for the full reservation status with access code.
	GuestRequestCode GuestRequestType = "code"
	// GuestRequestPincode asks for the door pin only.
	GuestRequestPincode GuestRequestType = "pincode"
)

// Flow returns the conversation flow that carries this request type.
func (t GuestRequestType) Flow() Flow {
	if t == GuestRequestPincode {
		return FlowPincodeIdentification
	}
	return FlowGuestIdentification
}

// RoomType classifies a bookable room.
type RoomType string

const (
	// RoomTypeShared is a bed in a shared room.
	RoomTypeShared RoomType = "shared"
	// RoomTypePrivate is a private room.
	RoomTypePrivate RoomType = "private"
)

// RoomOption is one entry of a cached availability snapshot.
type RoomOption struct {
	Name       string   `json:"name"`
	CategoryID int64    `json:"category_id"`
	Type       RoomType `json:"type"`
}

// AvailabilitySnapshot caches the room list from the last availability
// check so later turns can resolve a room name to a category.
type AvailabilitySnapshot struct {
	CheckedAt time.Time    `json:"checked_at"`
	Rooms     []RoomOption `json:"rooms"`
}

// BookingDraft accumulates booking fields across turns. Dates use
// DateLayout. A booking may only fire once CategoryID is resolved whenever
// RoomName is set.
type BookingDraft struct {
	CheckInDate           string                `json:"check_in_date,omitempty"`
	CheckOutDate          string                `json:"check_out_date,omitempty"`
	GuestName             string                `json:"guest_name,omitempty"`
	RoomType              RoomType              `json:"room_type,omitempty"`
	CategoryID            int64                 `json:"category_id,omitempty"`
	RoomName              string                `json:"room_name,omitempty"`
	LastAvailabilityCheck *AvailabilitySnapshot `json:"last_availability_check,omitempty"`
}

// IsEmpty reports whether no booking field has been collected yet.
func (b *BookingDraft) IsEmpty() bool {
	if b == nil {
		return true
	}
	return b.CheckInDate == "" && b.CheckOutDate == "" && b.GuestName == "" &&
		b.RoomType == "" && b.CategoryID == 0 && b.RoomName == "" &&
		b.LastAvailabilityCheck == nil
}

// TourDraft accumulates tour booking fields across turns.
type TourDraft struct {
	TourID               int64  `json:"tour_id,omitempty"`
	TourDate             string `json:"tour_date,omitempty"`
	NumberOfParticipants int    `json:"number_of_participants,omitempty"`
	CustomerName         string `json:"customer_name,omitempty"`
}

// GuestDetails holds the answers collected during guest identification.
type GuestDetails struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Nationality string `json:"nationality,omitempty"`
}

// CandidateReservation is a lightweight summary kept while disambiguating
// multiple reservation matches.
type CandidateReservation struct {
	ID           int64  `json:"id"`
	CheckInDate  string `json:"check_in_date"`
	CheckOutDate string `json:"check_out_date"`
}

// GuestIdentificationDraft tracks progress through the identification
// sub-flow. RequestType is carried through every transition.
type GuestIdentificationDraft struct {
	Step            Step                   `json:"step"`
	RequestType     GuestRequestType       `json:"request_type"`
	Collected       GuestDetails           `json:"collected_data"`
	Candidates      []CandidateReservation `json:"candidate_reservations,omitempty"`
	OriginalMessage string                 `json:"original_message,omitempty"`
}

// ItemCreationDraft tracks the two-step request and task creation
// sub-flows between the responsible and description answers.
type ItemCreationDraft struct {
	Responsible string `json:"responsible,omitempty"`
}

// ConversationContext is the persisted per-conversation document. Language,
// once set, is pinned; drafts are ephemeral and cleared on completion,
// cancellation, or any unhandled error.
type ConversationContext struct {
	Language            Language                  `json:"language"`
	Booking             *BookingDraft             `json:"booking,omitempty"`
	Tour                *TourDraft                `json:"tour,omitempty"`
	GuestIdentification *GuestIdentificationDraft `json:"guest_identification,omitempty"`
	ItemCreation        *ItemCreationDraft        `json:"item_creation,omitempty"`
}

// Normalize guarantees the language field is present. It is applied on
// every context read and write.
func (c *ConversationContext) Normalize() {
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
}

// Clone returns a deep copy so merges never mutate the caller's context.
func (c ConversationContext) Clone() ConversationContext {
	out := c
	if c.Booking != nil {
		booking := *c.Booking
		if c.Booking.LastAvailabilityCheck != nil {
			snap := *c.Booking.LastAvailabilityCheck
			snap.Rooms = append([]RoomOption(nil), c.Booking.LastAvailabilityCheck.Rooms...)
			booking.LastAvailabilityCheck = &snap
		}
		out.Booking = &booking
	}
	if c.Tour != nil {
		tour := *c.Tour
		out.Tour = &tour
	}
	if c.GuestIdentification != nil {
		ident := *c.GuestIdentification
		ident.Candidates = append([]CandidateReservation(nil), c.GuestIdentification.Candidates...)
		out.GuestIdentification = &ident
	}
	if c.ItemCreation != nil {
		item := *c.ItemCreation
		out.ItemCreation = &item
	}
	return out
}

// Conversation is the persisted exchange thread for one channel address in
// one scope. Created lazily on the first inbound message and never hard
// deleted, only reset to idle.
type Conversation struct {
	ID             string              `json:"id"`
	ChannelAddress string              `json:"channel_address"`
	ScopeID        int64               `json:"scope_id"`
	UserID         *int64              `json:"user_id,omitempty"`
	State          ConversationState   `json:"state"`
	Context        ConversationContext `json:"context"`
	CreatedAt      time.Time           `json:"created_at"`
	LastMessageAt  time.Time           `json:"last_message_at"`
}
