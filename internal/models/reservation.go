package models

import "time"

// ReservationStatus is the lifecycle status of an external reservation.
type ReservationStatus string

const (
	// ReservationStatusConfirmed means the reservation is confirmed.
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	// ReservationStatusNotificationSent means the arrival notification went out.
	ReservationStatusNotificationSent ReservationStatus = "notification_sent"
	// ReservationStatusCheckedIn means the guest has checked in.
	ReservationStatusCheckedIn ReservationStatus = "checked_in"
	// ReservationStatusCancelled means the reservation was cancelled.
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// PaymentStatusPaid marks a fully paid reservation.
const PaymentStatusPaid = "paid"

// ActiveStayStatuses are the statuses eligible for guest identification.
var ActiveStayStatuses = []ReservationStatus{
	ReservationStatusConfirmed,
	ReservationStatusNotificationSent,
	ReservationStatusCheckedIn,
}

// Reservation is a read-only projection of an externally owned reservation.
// The flow engine never creates or mutates these.
type Reservation struct {
	ID                     int64             `json:"id"`
	ScopeID                int64             `json:"scope_id"`
	GuestName              string            `json:"guest_name"`
	GuestPhone             string            `json:"guest_phone"`
	GuestNationality       string            `json:"guest_nationality"`
	GuestBirthdate         string            `json:"guest_birthdate,omitempty"`
	CheckInDate            time.Time         `json:"check_in_date"`
	CheckOutDate           time.Time         `json:"check_out_date"`
	Status                 ReservationStatus `json:"status"`
	PaymentStatus          string            `json:"payment_status"`
	OnlineCheckInCompleted bool              `json:"online_check_in_completed"`
	PaymentLink            string            `json:"payment_link,omitempty"`
	CheckInLink            string            `json:"check_in_link,omitempty"`
	ExternalReservationID  string            `json:"external_reservation_id,omitempty"`
	DoorPin                string            `json:"door_pin,omitempty"`
	LockPassword           string            `json:"lock_password,omitempty"`
}

// NeedsPayment reports whether the guest still has to pay.
func (r *Reservation) NeedsPayment() bool {
	return r.PaymentStatus != PaymentStatusPaid
}

// NeedsOnlineCheckIn reports whether online check-in is still pending.
func (r *Reservation) NeedsOnlineCheckIn() bool {
	return !r.OnlineCheckInCompleted
}

// AccessCode returns the code to share with the guest. External reservation
// id wins over the door pin, which wins over the lock password.
func (r *Reservation) AccessCode() string {
	if r.ExternalReservationID != "" {
		return r.ExternalReservationID
	}
	if r.DoorPin != "" {
		return r.DoorPin
	}
	return r.LockPassword
}

// Summary reduces the reservation to the candidate form kept in context
// while disambiguating.
func (r *Reservation) Summary() CandidateReservation {
	return CandidateReservation{
		ID:           r.ID,
		CheckInDate:  r.CheckInDate.Format(DateLayout),
		CheckOutDate: r.CheckOutDate.Format(DateLayout),
	}
}

// BookingRequest is the payload handed to the external booking service when
// the extractor decides a booking should fire.
type BookingRequest struct {
	ScopeID         int64    `json:"scope_id"`
	GuestName       string   `json:"guest_name"`
	CheckInDate     string   `json:"check_in_date"`
	CheckOutDate    string   `json:"check_out_date"`
	RoomType        RoomType `json:"room_type"`
	CategoryID      int64    `json:"category_id,omitempty"`
	FallbackAddress string   `json:"fallback_address"`
	UserID          *int64   `json:"user_id,omitempty"`
	RoleID          *int64   `json:"role_id,omitempty"`
}

// Validate checks that the booking request carries the fields a booking
// needs. Guest name is tolerated via a placeholder upstream and therefore
// required here.
func (b *BookingRequest) Validate() error {
	if b.FallbackAddress == "" {
		return ErrEmptyAddress
	}
	if b.ScopeID <= 0 {
		return ErrInvalidScope
	}
	return nil
}
