package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestConversationStateValidate(t *testing.T) {
	cases := []struct {
		name    string
		state   ConversationState
		wantErr bool
	}{
		{"idle", IdleState(), false},
		{"idle with step", ConversationState{Flow: FlowIdle, Step: StepName}, true},
		{"identification name", ConversationState{Flow: FlowGuestIdentification, Step: StepName}, false},
		{"pincode birthdate", ConversationState{Flow: FlowPincodeIdentification, Step: StepBirthdate}, false},
		{"identification without step", ConversationState{Flow: FlowGuestIdentification}, true},
		{"request creation responsible", ConversationState{Flow: FlowRequestCreation, Step: StepWaitingForResponsible}, false},
		{"request creation wrong step", ConversationState{Flow: FlowRequestCreation, Step: StepName}, true},
		{"unknown flow", ConversationState{Flow: "mystery"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.state.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("Validate() = nil, want error for %v", tc.state)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil for %v", err, tc.state)
			}
		})
	}
}

func TestGuestRequestTypeFlow(t *testing.T) {
	if got := GuestRequestCode.Flow(); got != FlowGuestIdentification {
		t.Errorf("code request type mapped to flow %q", got)
	}
	if got := GuestRequestPincode.Flow(); got != FlowPincodeIdentification {
		t.Errorf("pincode request type mapped to flow %q", got)
	}
}

func TestContextNormalize(t *testing.T) {
	var ctx ConversationContext
	ctx.Normalize()
	if ctx.Language != DefaultLanguage {
		t.Errorf("expected default language %q, got %q", DefaultLanguage, ctx.Language)
	}

	ctx.Language = LanguageGerman
	ctx.Normalize()
	if ctx.Language != LanguageGerman {
		t.Errorf("Normalize overwrote pinned language, got %q", ctx.Language)
	}
}

func TestContextCloneIsDeep(t *testing.T) {
	original := ConversationContext{
		Language: LanguageEnglish,
		Booking: &BookingDraft{
			CheckInDate: "2026-09-01",
			LastAvailabilityCheck: &AvailabilitySnapshot{
				CheckedAt: time.Now(),
				Rooms:     []RoomOption{{Name: "Habitación Deluxe", CategoryID: 4, Type: RoomTypePrivate}},
			},
		},
		GuestIdentification: &GuestIdentificationDraft{
			Step:        StepBirthdate,
			RequestType: GuestRequestPincode,
			Candidates:  []CandidateReservation{{ID: 7, CheckInDate: "2026-09-01", CheckOutDate: "2026-09-03"}},
		},
	}

	clone := original.Clone()
	clone.Booking.CheckInDate = "2026-10-01"
	clone.Booking.LastAvailabilityCheck.Rooms[0].Name = "changed"
	clone.GuestIdentification.Candidates[0].ID = 99

	if original.Booking.CheckInDate != "2026-09-01" {
		t.Error("clone shares booking draft with original")
	}
	if original.Booking.LastAvailabilityCheck.Rooms[0].Name != "Habitación Deluxe" {
		t.Error("clone shares availability snapshot with original")
	}
	if original.GuestIdentification.Candidates[0].ID != 7 {
		t.Error("clone shares candidate list with original")
	}
}

func TestBookingDraftIsEmpty(t *testing.T) {
	var nilDraft *BookingDraft
	if !nilDraft.IsEmpty() {
		t.Error("nil draft should be empty")
	}
	if !(&BookingDraft{}).IsEmpty() {
		t.Error("zero draft should be empty")
	}
	if (&BookingDraft{RoomName: "Deluxe"}).IsEmpty() {
		t.Error("draft with room name should not be empty")
	}
}

func TestReservationAccessCodePriority(t *testing.T) {
	r := Reservation{ExternalReservationID: "LB-123", DoorPin: "4711", LockPassword: "secret"}
	if got := r.AccessCode(); got != "LB-123" {
		t.Errorf("expected external reservation id, got %q", got)
	}
	r.ExternalReservationID = ""
	if got := r.AccessCode(); got != "4711" {
		t.Errorf("expected door pin, got %q", got)
	}
	r.DoorPin = ""
	if got := r.AccessCode(); got != "secret" {
		t.Errorf("expected lock password, got %q", got)
	}
}

func TestReservationPendingFlags(t *testing.T) {
	r := Reservation{PaymentStatus: PaymentStatusPaid, OnlineCheckInCompleted: true}
	if r.NeedsPayment() {
		t.Error("paid reservation should not need payment")
	}
	if r.NeedsOnlineCheckIn() {
		t.Error("completed check-in should not be pending")
	}
	r = Reservation{PaymentStatus: "pending"}
	if !r.NeedsPayment() || !r.NeedsOnlineCheckIn() {
		t.Error("pending reservation should need payment and check-in")
	}
}

func TestContextJSONRoundTrip(t *testing.T) {
	ctx := ConversationContext{
		Language: LanguageSpanish,
		Booking:  &BookingDraft{CheckInDate: "2026-09-01", RoomType: RoomTypeShared},
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var got ConversationContext
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Language != LanguageSpanish || got.Booking == nil || got.Booking.CheckInDate != "2026-09-01" {
		t.Errorf("round trip lost data: %+v", got)
	}
	if got.GuestIdentification != nil {
		t.Error("absent draft should stay nil after round trip")
	}
}
