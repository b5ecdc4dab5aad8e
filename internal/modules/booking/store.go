// README: Booking store backed by PostgreSQL.
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripease/internal/apperr"
)

const uniqueViolation = "23505"

// Repository is the persistence contract the lifecycle manager depends on.
// Lists are ordered most recent first.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id int64) (*Booking, error)
	GetByExternal(ctx context.Context, sourceSystem string, externalID int64) (*Booking, error)
	ListPending(ctx context.Context) ([]*Booking, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]*Booking, error)
	ListByDriver(ctx context.Context, driverID int64) ([]*Booking, error)
	ListBySource(ctx context.Context, sourceSystem string) ([]*Booking, error)
	UpdateStatus(ctx context.Context, t Transition) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// Transition is a compare-and-swap status update. It applies only while the
// row still has status From and version Version. A non-nil DriverID also
// requires the row to have no driver yet.
type Transition struct {
	ID          int64
	From        Status
	To          Status
	Version     int
	DriverID    *int64
	DriverEmail string
}

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

const bookingColumns = `
	id, customer_id, customer_email, driver_id, driver_email,
	pickup_address, pickup_lat, pickup_lng,
	destination_address, destination_lat, destination_lng,
	trip_distance_km, estimated_time_min, bill_amount, ride_type,
	status, status_version,
	source_system, external_booking_id, passenger_name, passenger_phone, special_requests, callback_url,
	created_at, updated_at`

func (s *Store) Create(ctx context.Context, b *Booking) error {
	var (
		source, name, phone, requests, callback *string
		extID                                   *int64
	)
	if ext := b.External; ext != nil {
		source, extID = &ext.SourceSystem, &ext.ExternalBookingID
		name, phone = &ext.PassengerName, &ext.PassengerPhone
		requests, callback = &ext.SpecialRequests, &ext.CallbackURL
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO bookings (
			customer_id, customer_email, driver_id, driver_email,
			pickup_address, pickup_lat, pickup_lng,
			destination_address, destination_lat, destination_lng,
			trip_distance_km, estimated_time_min, bill_amount, ride_type,
			status, status_version, is_external,
			source_system, external_booking_id, passenger_name, passenger_phone, special_requests, callback_url
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17,
			$18, $19, $20, $21, $22, $23
		)
		RETURNING id, created_at, updated_at`,
		b.CustomerID, b.CustomerEmail, b.DriverID, b.DriverEmail,
		b.PickupAddress, b.Pickup.Lat, b.Pickup.Lng,
		b.DestAddress, b.Dest.Lat, b.Dest.Lng,
		b.DistanceKm, b.EstimatedTimeMin, b.BillAmount, string(b.RideType),
		string(b.Status), b.StatusVersion, b.External != nil,
		source, extID, name, phone, requests, callback,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.New(apperr.ErrDuplicate, "booking already exists for this source system and external booking id")
	}
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanOne(row)
}

func (s *Store) GetByExternal(ctx context.Context, sourceSystem string, externalID int64) (*Booking, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE source_system = $1 AND external_booking_id = $2`, sourceSystem, externalID)
	return scanOne(row)
}

func (s *Store) ListPending(ctx context.Context) ([]*Booking, error) {
	return s.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = $1 AND driver_id IS NULL
		ORDER BY created_at DESC, id DESC`, string(StatusPending))
}

func (s *Store) ListByCustomer(ctx context.Context, customerID int64) ([]*Booking, error) {
	return s.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC`, customerID)
}

func (s *Store) ListByDriver(ctx context.Context, driverID int64) ([]*Booking, error) {
	return s.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE driver_id = $1
		ORDER BY created_at DESC, id DESC`, driverID)
}

func (s *Store) ListBySource(ctx context.Context, sourceSystem string) ([]*Booking, error) {
	return s.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE source_system = $1
		ORDER BY created_at DESC, id DESC`, sourceSystem)
}

func (s *Store) UpdateStatus(ctx context.Context, t Transition) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = $1,
			status_version = status_version + 1,
			driver_id = COALESCE($2::bigint, driver_id),
			driver_email = COALESCE(NULLIF($3, ''), driver_email),
			updated_at = NOW()
		WHERE id = $4 AND status = $5 AND status_version = $6
		  AND ($2::bigint IS NULL OR driver_id IS NULL)`,
		string(t.To),
		t.DriverID,
		t.DriverEmail,
		t.ID,
		string(t.From),
		t.Version,
	)
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO booking_state_events (
			booking_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.BookingID,
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		e.ActorID,
		e.CreatedAt,
	)
	return err
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*Booking, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanOne(row pgx.Row) (*Booking, error) {
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b                                       Booking
		source, name, phone, requests, callback *string
		extID                                   *int64
	)
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.CustomerEmail, &b.DriverID, &b.DriverEmail,
		&b.PickupAddress, &b.Pickup.Lat, &b.Pickup.Lng,
		&b.DestAddress, &b.Dest.Lat, &b.Dest.Lng,
		&b.DistanceKm, &b.EstimatedTimeMin, &b.BillAmount, &b.RideType,
		&b.Status, &b.StatusVersion,
		&source, &extID, &name, &phone, &requests, &callback,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if source != nil && extID != nil {
		b.External = &ExternalOrigin{
			SourceSystem:      *source,
			ExternalBookingID: *extID,
			PassengerName:     deref(name),
			PassengerPhone:    deref(phone),
			SpecialRequests:   deref(requests),
			CallbackURL:       deref(callback),
		}
	}
	return &b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
