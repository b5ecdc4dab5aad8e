// README: SQL-level store tests against pgxmock; no database required.
package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"tripease/internal/apperr"
	"tripease/internal/types"
)

const casUpdate = `(?s)UPDATE bookings.*SET status = \$1.*status_version = status_version \+ 1.*` +
	`WHERE id = \$4 AND status = \$5 AND status_version = \$6.*\$2::bigint IS NULL OR driver_id IS NULL`

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock init error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		mock.Close()
	})
	return NewStore(mock), mock
}

func TestStore_UpdateStatusAcceptClaimsDriver(t *testing.T) {
	store, mock := newMockStore(t)
	driver := int64(101)

	mock.ExpectExec(casUpdate).
		WithArgs("ACCEPTED", &driver, "a@drivers.example", int64(7), "PENDING", 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := store.UpdateStatus(context.Background(), Transition{
		ID: 7, From: StatusPending, To: StatusAccepted, Version: 0,
		DriverID: &driver, DriverEmail: "a@drivers.example",
	})
	if err != nil || !ok {
		t.Fatalf("expected swap to apply, got ok=%v err=%v", ok, err)
	}
}

func TestStore_UpdateStatusLostRace(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(casUpdate).
		WithArgs("IN_PROGRESS", (*int64)(nil), "", int64(7), "ACCEPTED", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.UpdateStatus(context.Background(), Transition{
		ID: 7, From: StatusAccepted, To: StatusInProgress, Version: 1,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok {
		t.Fatal("zero affected rows must report a lost swap")
	}
}

func TestStore_UpdateStatusError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(casUpdate).WillReturnError(errors.New("conn reset"))

	if _, err := store.UpdateStatus(context.Background(), Transition{ID: 1, From: StatusPending, To: StatusCancelled}); err == nil {
		t.Fatal("expected driver error to surface")
	}
}

func TestStore_CreateReturnsID(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)INSERT INTO bookings.*RETURNING id, created_at, updated_at`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(42), now, now))

	b := &Booking{CustomerID: 7, RideType: types.RideCar, Status: StatusPending}
	if err := store.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID != 42 || !b.CreatedAt.Equal(now) {
		t.Fatalf("unexpected booking after insert: %+v", b)
	}
}

func TestStore_CreateDuplicateExternal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO bookings`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	b := &Booking{
		CustomerID: ExternalCustomerID,
		RideType:   types.RideCar,
		Status:     StatusPending,
		External:   &ExternalOrigin{SourceSystem: "ITM", ExternalBookingID: 5001},
	}
	if err := store.Create(context.Background(), b); !errors.Is(err, apperr.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT.*FROM bookings WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	if _, err := store.Get(context.Background(), 99); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_AppendEvent(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 4, 2, 9, 31, 0, 0, time.UTC)
	actor := int64(101)

	mock.ExpectExec(`INSERT INTO booking_state_events`).
		WithArgs(int64(7), "PENDING", "ACCEPTED", ActorDriver, &actor, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.AppendEvent(context.Background(), &Event{
		BookingID: 7, FromStatus: StatusPending, ToStatus: StatusAccepted,
		ActorType: ActorDriver, ActorID: &actor, CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("append event: %v", err)
	}
}
