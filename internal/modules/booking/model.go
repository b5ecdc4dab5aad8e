// README: Booking aggregate and status definitions.
package booking

import (
	"time"

	"tripease/internal/types"
)

type Status string

const (
	StatusNone       Status = ""
	StatusPending    Status = "PENDING"
	StatusAccepted   Status = "ACCEPTED"
	StatusRejected   Status = "REJECTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Actor types recorded on state events.
const (
	ActorCustomer = "customer"
	ActorDriver   = "driver"
	ActorPartner  = "partner"
	ActorSystem   = "system"
)

// ExternalCustomerID marks bookings with no internal customer.
const ExternalCustomerID int64 = 0

// DefaultExternalTimeMin is used when a partner omits the trip duration.
const DefaultExternalTimeMin = 30

type Booking struct {
	ID               int64
	CustomerID       int64
	CustomerEmail    string
	DriverID         *int64
	DriverEmail      string
	PickupAddress    string
	Pickup           types.Point
	DestAddress      string
	Dest             types.Point
	DistanceKm       float64
	EstimatedTimeMin int
	BillAmount       float64
	RideType         types.RideType
	Status           Status
	StatusVersion    int
	External         *ExternalOrigin
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ExternalOrigin is present only on partner-submitted bookings.
type ExternalOrigin struct {
	SourceSystem      string
	ExternalBookingID int64
	PassengerName     string
	PassengerPhone    string
	SpecialRequests   string
	CallbackURL       string
}

func (b *Booking) IsExternal() bool {
	return b.External != nil
}

type Event struct {
	ID         int64
	BookingID  int64
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *int64
	CreatedAt  time.Time
}

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	_, ok := AllowedTransitions[s]
	return !ok
}
