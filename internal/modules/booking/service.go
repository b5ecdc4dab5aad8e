// README: Booking service implements the lifecycle state machine on top of compare-and-swap persistence.
package booking

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"tripease/internal/apperr"
	"tripease/internal/modules/identity"
	"tripease/internal/types"
)

// maxAttempts bounds re-validation after a lost compare-and-swap.
const maxAttempts = 3

var (
	ErrNotFound          = apperr.New(apperr.ErrNotFound, "booking not found")
	ErrNoLongerAvailable = apperr.New(apperr.ErrInvalidState, "booking is no longer available")
	ErrAlreadyAccepted   = apperr.New(apperr.ErrConflict, "booking already accepted by another driver")
	ErrNotPending        = apperr.New(apperr.ErrInvalidState, "booking is no longer pending")
	ErrNotAssigned       = apperr.New(apperr.ErrForbidden, "you are not assigned to this booking")
	ErrBusy              = apperr.New(apperr.ErrConflict, "booking was modified concurrently, please retry")
)

// StatusListener observes committed transitions. Implementations must not block
// and cannot fail the transition.
type StatusListener interface {
	BookingStatusChanged(ctx context.Context, b *Booking, from Status)
}

type Service struct {
	store     Repository
	listeners []StatusListener
	log       *zap.Logger
	now       func() time.Time
}

func NewService(store Repository, log *zap.Logger, listeners ...StatusListener) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, listeners: listeners, log: log, now: time.Now}
}

type CreateCommand struct {
	PickupAddress    string
	Pickup           types.Point
	DestAddress      string
	Dest             types.Point
	DistanceKm       float64
	EstimatedTimeMin int
	BillAmount       float64
	RideType         types.RideType
}

type ExternalCommand struct {
	SourceSystem      string
	ExternalBookingID int64
	PassengerName     string
	PassengerEmail    string
	PassengerPhone    string
	PickupAddress     string
	Pickup            types.Point
	DestAddress       string
	Dest              types.Point
	DistanceKm        float64
	EstimatedTimeMin  int
	BillAmount        float64
	RideType          types.RideType
	SpecialRequests   string
	CallbackURL       string
}

func (s *Service) Create(ctx context.Context, caller identity.Identity, cmd CreateCommand) (*Booking, error) {
	if err := requireRole(caller, identity.RoleCustomer); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	validateTrip(fields, cmd.Pickup, cmd.Dest, cmd.DistanceKm, cmd.EstimatedTimeMin, cmd.BillAmount, cmd.RideType)
	if len(fields) > 0 {
		return nil, &apperr.ValidationError{Fields: fields}
	}

	b := &Booking{
		CustomerID:       caller.ReferenceID,
		CustomerEmail:    caller.Email,
		PickupAddress:    cmd.PickupAddress,
		Pickup:           cmd.Pickup,
		DestAddress:      cmd.DestAddress,
		Dest:             cmd.Dest,
		DistanceKm:       cmd.DistanceKm,
		EstimatedTimeMin: cmd.EstimatedTimeMin,
		BillAmount:       cmd.BillAmount,
		RideType:         cmd.RideType,
		Status:           StatusPending,
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, b.ID, StatusNone, StatusPending, ActorCustomer, &caller.ReferenceID)
	s.log.Info("booking created",
		zap.Int64("booking_id", b.ID),
		zap.Int64("customer_id", b.CustomerID),
		zap.String("ride_type", string(b.RideType)),
	)
	return b, nil
}

// CreateExternal persists a partner booking. Duplicate (source, external id)
// pairs fail with ErrDuplicate.
func (s *Service) CreateExternal(ctx context.Context, cmd ExternalCommand) (*Booking, error) {
	fields := map[string]string{}
	if strings.TrimSpace(cmd.SourceSystem) == "" {
		fields["sourceSystem"] = "is required"
	}
	if cmd.ExternalBookingID <= 0 {
		fields["externalBookingId"] = "must be a positive number"
	}
	if cmd.CallbackURL != "" && !isWebhookURL(cmd.CallbackURL) {
		fields["callbackUrl"] = "must be an absolute http or https URL"
	}
	validateTrip(fields, cmd.Pickup, cmd.Dest, cmd.DistanceKm, cmd.EstimatedTimeMin, cmd.BillAmount, cmd.RideType)
	if len(fields) > 0 {
		return nil, &apperr.ValidationError{Fields: fields}
	}

	b := &Booking{
		CustomerID:       ExternalCustomerID,
		CustomerEmail:    cmd.PassengerEmail,
		PickupAddress:    cmd.PickupAddress,
		Pickup:           cmd.Pickup,
		DestAddress:      cmd.DestAddress,
		Dest:             cmd.Dest,
		DistanceKm:       cmd.DistanceKm,
		EstimatedTimeMin: cmd.EstimatedTimeMin,
		BillAmount:       cmd.BillAmount,
		RideType:         cmd.RideType,
		Status:           StatusPending,
		External: &ExternalOrigin{
			SourceSystem:      cmd.SourceSystem,
			ExternalBookingID: cmd.ExternalBookingID,
			PassengerName:     cmd.PassengerName,
			PassengerPhone:    cmd.PassengerPhone,
			SpecialRequests:   cmd.SpecialRequests,
			CallbackURL:       cmd.CallbackURL,
		},
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, b.ID, StatusNone, StatusPending, ActorPartner, nil)
	s.log.Info("external booking created",
		zap.Int64("booking_id", b.ID),
		zap.String("source_system", cmd.SourceSystem),
		zap.Int64("external_booking_id", cmd.ExternalBookingID),
	)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Booking, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetByExternal(ctx context.Context, sourceSystem string, externalID int64) (*Booking, error) {
	return s.store.GetByExternal(ctx, sourceSystem, externalID)
}

// ListPending returns unassigned PENDING bookings, newest first.
func (s *Service) ListPending(ctx context.Context) ([]*Booking, error) {
	return s.store.ListPending(ctx)
}

func (s *Service) ListForCustomer(ctx context.Context, caller identity.Identity) ([]*Booking, error) {
	if err := requireRole(caller, identity.RoleCustomer); err != nil {
		return nil, err
	}
	return s.store.ListByCustomer(ctx, caller.ReferenceID)
}

func (s *Service) ListForDriver(ctx context.Context, caller identity.Identity) ([]*Booking, error) {
	if err := requireRole(caller, identity.RoleDriver); err != nil {
		return nil, err
	}
	return s.store.ListByDriver(ctx, caller.ReferenceID)
}

func (s *Service) ListBySource(ctx context.Context, sourceSystem string) ([]*Booking, error) {
	return s.store.ListBySource(ctx, sourceSystem)
}

// Accept assigns the calling driver. The write only lands while the booking
// is still PENDING with no driver, so concurrent accepts have one winner and
// every loser sees ErrAlreadyAccepted.
func (s *Service) Accept(ctx context.Context, caller identity.Identity, id int64) (*Booking, error) {
	if err := requireRole(caller, identity.RoleDriver); err != nil {
		return nil, err
	}
	driverID := caller.ReferenceID
	return s.transition(ctx, id, StatusAccepted, checkAcceptable, func(t *Transition) {
		t.DriverID = &driverID
		t.DriverEmail = caller.Email
	}, ActorDriver, &driverID)
}

// Reject is not scoped to a driver: any caller may reject any PENDING booking.
func (s *Service) Reject(ctx context.Context, id int64) (*Booking, error) {
	return s.transition(ctx, id, StatusRejected, func(b *Booking) error {
		if b.Status != StatusPending {
			return ErrNotPending
		}
		return nil
	}, nil, ActorDriver, nil)
}

func (s *Service) Start(ctx context.Context, caller identity.Identity, id int64) (*Booking, error) {
	if err := requireRole(caller, identity.RoleDriver); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, StatusInProgress, assignedIn(caller, StatusAccepted), nil, ActorDriver, &caller.ReferenceID)
}

// Complete leaves BillAmount untouched; the quoted fare is final.
func (s *Service) Complete(ctx context.Context, caller identity.Identity, id int64) (*Booking, error) {
	if err := requireRole(caller, identity.RoleDriver); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, StatusCompleted, assignedIn(caller, StatusInProgress), nil, ActorDriver, &caller.ReferenceID)
}

func (s *Service) Cancel(ctx context.Context, id int64, actorType string) (*Booking, error) {
	return s.transition(ctx, id, StatusCancelled, func(b *Booking) error {
		if !CanTransition(b.Status, StatusCancelled) {
			return apperr.Newf(apperr.ErrInvalidState, "cannot cancel booking in current status: %s", b.Status)
		}
		return nil
	}, nil, actorType, nil)
}

// transition reads the booking, validates it with check, then applies a
// compare-and-swap update. A lost race re-reads and re-validates, so the
// caller gets the error matching the state that won.
func (s *Service) transition(
	ctx context.Context,
	id int64,
	to Status,
	check func(*Booking) error,
	mutate func(*Transition),
	actorType string,
	actorID *int64,
) (*Booking, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		b, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := check(b); err != nil {
			return nil, err
		}
		if !CanTransition(b.Status, to) {
			return nil, apperr.Newf(apperr.ErrInvalidState, "cannot move booking from %s to %s", b.Status, to)
		}
		t := Transition{ID: id, From: b.Status, To: to, Version: b.StatusVersion}
		if mutate != nil {
			mutate(&t)
		}
		ok, err := s.store.UpdateStatus(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			return s.committed(ctx, b, t, actorType, actorID), nil
		}
		s.log.Debug("booking transition lost race",
			zap.Int64("booking_id", id),
			zap.String("to", string(to)),
			zap.Int("attempt", attempt+1),
		)
	}
	return nil, ErrBusy
}

// committed re-reads the post-mutation state, records the event and fans out to listeners.
func (s *Service) committed(ctx context.Context, before *Booking, t Transition, actorType string, actorID *int64) *Booking {
	after, err := s.store.Get(ctx, before.ID)
	if err != nil {
		s.log.Warn("re-read after transition failed", zap.Int64("booking_id", before.ID), zap.Error(err))
		after = clone(before)
		after.Status = t.To
		after.StatusVersion = t.Version + 1
		if t.DriverID != nil {
			after.DriverID = t.DriverID
			after.DriverEmail = t.DriverEmail
		}
		after.UpdatedAt = s.now()
	}
	s.appendEvent(ctx, before.ID, t.From, t.To, actorType, actorID)
	s.log.Info("booking status changed",
		zap.Int64("booking_id", before.ID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("actor", actorType),
	)
	for _, l := range s.listeners {
		l.BookingStatusChanged(ctx, after, t.From)
	}
	return after
}

func (s *Service) appendEvent(ctx context.Context, id int64, from, to Status, actorType string, actorID *int64) {
	err := s.store.AppendEvent(ctx, &Event{
		BookingID:  id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.log.Warn("append booking event failed", zap.Int64("booking_id", id), zap.Error(err))
	}
}

// checkAcceptable orders the failure cases so that a booking taken by another
// driver reports a conflict even when its status has already moved on.
func checkAcceptable(b *Booking) error {
	if b.DriverID != nil {
		switch b.Status {
		case StatusAccepted, StatusInProgress, StatusCompleted:
			return ErrAlreadyAccepted
		}
	}
	if b.Status != StatusPending {
		return ErrNoLongerAvailable
	}
	if b.DriverID != nil {
		return ErrAlreadyAccepted
	}
	return nil
}

func assignedIn(caller identity.Identity, want Status) func(*Booking) error {
	return func(b *Booking) error {
		if b.DriverID == nil || *b.DriverID != caller.ReferenceID {
			return ErrNotAssigned
		}
		if b.Status != want {
			return apperr.Newf(apperr.ErrInvalidState, "booking must be %s, current status: %s", want, b.Status)
		}
		return nil
	}
}

func requireRole(caller identity.Identity, role identity.Role) error {
	if caller.IsZero() {
		return apperr.New(apperr.ErrUnauthenticated, "caller identity could not be resolved")
	}
	if caller.Role != role {
		return apperr.Newf(apperr.ErrForbidden, "operation requires the %s role", role)
	}
	return nil
}

func validateTrip(fields map[string]string, pickup, dest types.Point, distanceKm float64, timeMin int, bill float64, rideType types.RideType) {
	checkPoint(fields, "pickup", pickup)
	checkPoint(fields, "destination", dest)
	if distanceKm < 0 {
		fields["tripDistanceInKm"] = "must not be negative"
	}
	if timeMin < 0 {
		fields["estimatedTimeMin"] = "must not be negative"
	}
	if bill < 0 {
		fields["billAmount"] = "must not be negative"
	}
	if !rideType.Valid() {
		fields["rideType"] = "must be one of AUTO, BIKE, CAR, PREMIUM"
	}
}

func checkPoint(fields map[string]string, prefix string, p types.Point) {
	if p.Lat < -90 || p.Lat > 90 {
		fields[prefix+"Lat"] = "must be between -90 and 90"
	}
	if p.Lng < -180 || p.Lng > 180 {
		fields[prefix+"Lng"] = "must be between -180 and 180"
	}
}

func isWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
