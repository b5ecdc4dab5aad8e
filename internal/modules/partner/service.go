// README: Partner adapter; maps partner bookings onto the lifecycle manager with soft-failure responses.
package partner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tripease/internal/apperr"
	"tripease/internal/modules/booking"
	"tripease/internal/modules/identity"
)

const (
	msgCreated         = "Booking created successfully. Waiting for driver assignment."
	msgFound           = "Booking found"
	msgNotFound        = "Booking not found"
	msgCancelled       = "Booking cancelled successfully"
	msgCannotCancel    = "Cannot cancel booking in current status: %s"
	msgCreateFailed    = "Error creating booking: %s"
	msgDuplicate       = "Booking already exists for %s/%d"
	msgInFlight        = "Booking for %s/%d is already being processed"
	msgInternalFailure = "internal error"
)

type Bookings interface {
	CreateExternal(ctx context.Context, cmd booking.ExternalCommand) (*booking.Booking, error)
	Get(ctx context.Context, id int64) (*booking.Booking, error)
	GetByExternal(ctx context.Context, sourceSystem string, externalID int64) (*booking.Booking, error)
	Cancel(ctx context.Context, id int64, actorType string) (*booking.Booking, error)
	ListBySource(ctx context.Context, sourceSystem string) ([]*booking.Booking, error)
}

// DriverDirectory resolves the display name of an assigned driver.
type DriverDirectory interface {
	FindByEmail(ctx context.Context, email string) (identity.Identity, error)
}

type Service struct {
	bookings Bookings
	guard    Guard
	drivers  DriverDirectory
	log      *zap.Logger
}

// NewService accepts nil guard and drivers.
func NewService(bookings Bookings, guard Guard, drivers DriverDirectory, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{bookings: bookings, guard: guard, drivers: drivers, log: log}
}

// Create never returns an error; failures are reported through Response.Success.
func (s *Service) Create(ctx context.Context, req Request) Response {
	cmd := req.toCommand()

	claimed := false
	if s.guard != nil && cmd.SourceSystem != "" && cmd.ExternalBookingID > 0 {
		ok, err := s.guard.Claim(ctx, cmd.SourceSystem, cmd.ExternalBookingID)
		switch {
		case err != nil:
			s.log.Warn("idempotency claim failed, relying on unique index", zap.Error(err))
		case !ok:
			return s.duplicate(ctx, cmd.SourceSystem, cmd.ExternalBookingID)
		default:
			claimed = true
		}
	}

	b, err := s.bookings.CreateExternal(ctx, cmd)
	if err != nil {
		if claimed {
			if rerr := s.guard.Release(ctx, cmd.SourceSystem, cmd.ExternalBookingID); rerr != nil {
				s.log.Warn("release idempotency claim failed", zap.Error(rerr))
			}
		}
		if errors.Is(err, apperr.ErrDuplicate) {
			return s.duplicate(ctx, cmd.SourceSystem, cmd.ExternalBookingID)
		}
		return Response{
			SourceSystem:      cmd.SourceSystem,
			ExternalBookingID: cmd.ExternalBookingID,
			Message:           fmt.Sprintf(msgCreateFailed, s.publicMessage(err)),
		}
	}
	return s.respond(ctx, b, msgCreated, true)
}

func (s *Service) StatusByID(ctx context.Context, id int64) Response {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return s.lookupFailure(err, Response{TripEaseBookingID: id})
	}
	return s.respond(ctx, b, msgFound, true)
}

func (s *Service) StatusByExternalID(ctx context.Context, sourceSystem string, externalID int64) Response {
	b, err := s.bookings.GetByExternal(ctx, sourceSystem, externalID)
	if err != nil {
		return s.lookupFailure(err, Response{SourceSystem: sourceSystem, ExternalBookingID: externalID})
	}
	return s.respond(ctx, b, msgFound, true)
}

// Cancel refuses bookings already IN_PROGRESS, COMPLETED or otherwise final.
func (s *Service) Cancel(ctx context.Context, id int64) Response {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return s.lookupFailure(err, Response{TripEaseBookingID: id})
	}
	if !booking.CanTransition(b.Status, booking.StatusCancelled) {
		return s.respond(ctx, b, fmt.Sprintf(msgCannotCancel, b.Status), false)
	}
	cancelled, err := s.bookings.Cancel(ctx, id, booking.ActorPartner)
	if errors.Is(err, apperr.ErrInvalidState) {
		// Lost a race with a driver transition; report the state that won.
		if cur, gerr := s.bookings.Get(ctx, id); gerr == nil {
			return s.respond(ctx, cur, fmt.Sprintf(msgCannotCancel, cur.Status), false)
		}
	}
	if err != nil {
		return Response{TripEaseBookingID: id, Message: s.publicMessage(err)}
	}
	return s.respond(ctx, cancelled, msgCancelled, true)
}

func (s *Service) ListBySource(ctx context.Context, sourceSystem string) ([]Response, error) {
	list, err := s.bookings.ListBySource(ctx, sourceSystem)
	if err != nil {
		return nil, err
	}
	out := make([]Response, 0, len(list))
	for _, b := range list {
		out = append(out, s.respond(ctx, b, msgFound, true))
	}
	return out, nil
}

func (s *Service) duplicate(ctx context.Context, sourceSystem string, externalID int64) Response {
	existing, err := s.bookings.GetByExternal(ctx, sourceSystem, externalID)
	if err != nil {
		return Response{
			SourceSystem:      sourceSystem,
			ExternalBookingID: externalID,
			Message:           fmt.Sprintf(msgInFlight, sourceSystem, externalID),
		}
	}
	return s.respond(ctx, existing, fmt.Sprintf(msgDuplicate, sourceSystem, externalID), false)
}

// lookupFailure echoes the identifiers the partner asked about.
func (s *Service) lookupFailure(err error, echo Response) Response {
	echo.Message = msgNotFound
	if !errors.Is(err, apperr.ErrNotFound) {
		echo.Message = s.publicMessage(err)
	}
	return echo
}

// publicMessage keeps typed error messages and redacts everything else.
func (s *Service) publicMessage(err error) string {
	var typed *apperr.Error
	var invalid *apperr.ValidationError
	if errors.As(err, &typed) || errors.As(err, &invalid) {
		return err.Error()
	}
	s.log.Error("partner request failed", zap.Error(err))
	return msgInternalFailure
}

func (s *Service) respond(ctx context.Context, b *booking.Booking, msg string, success bool) Response {
	r := Response{
		TripEaseBookingID: b.ID,
		Status:            b.Status,
		DriverEmail:       b.DriverEmail,
		EstimatedFare:     b.BillAmount,
		EstimatedTimeMin:  b.EstimatedTimeMin,
		Message:           msg,
		Success:           success,
	}
	if b.External != nil {
		r.SourceSystem = b.External.SourceSystem
		r.ExternalBookingID = b.External.ExternalBookingID
	}
	if s.drivers != nil && b.DriverEmail != "" {
		if d, err := s.drivers.FindByEmail(ctx, b.DriverEmail); err == nil {
			r.DriverName = d.Name
		}
	}
	return r
}
