// README: Partner adapter tests (soft failures, idempotency, cancel rules, webhook delivery).
package partner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tripease/internal/modules/booking"
	"tripease/internal/modules/identity"
	"tripease/internal/types"
)

type fixture struct {
	bookings *booking.Service
	partner  *Service
	drivers  *identity.MemoryStore
	notifier *Notifier
	driver   identity.Identity
}

func newFixture(t *testing.T, notifier *Notifier) *fixture {
	t.Helper()
	drivers := identity.NewMemoryStore()
	driver := identity.Identity{Email: "ravi@drivers.example", Role: identity.RoleDriver, Name: "Ravi"}
	if err := drivers.Save(context.Background(), &driver); err != nil {
		t.Fatalf("save driver: %v", err)
	}
	var listeners []booking.StatusListener
	if notifier != nil {
		listeners = append(listeners, notifier)
	}
	bookings := booking.NewService(booking.NewMemoryStore(), nil, listeners...)
	return &fixture{
		bookings: bookings,
		partner:  NewService(bookings, NewLocalGuard(time.Minute), drivers, nil),
		drivers:  drivers,
		notifier: notifier,
		driver:   driver,
	}
}

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func validRequest(extID int64) Request {
	return Request{
		SourceSystem:       "ITM",
		ExternalBookingID:  i64(extID),
		PassengerName:      "Asha",
		PassengerEmail:     "asha@example.com",
		PassengerPhone:     "+91-9000000000",
		PickupAddress:      "Airport T1",
		PickupLat:          f64(13.1986),
		PickupLng:          f64(77.7066),
		DestinationAddress: "Whitefield",
		DestinationLat:     f64(12.9698),
		DestinationLng:     f64(77.7500),
		EstimatedFare:      f64(640),
		RideType:           types.RideCar,
	}
}

func TestCreate_Success(t *testing.T) {
	fx := newFixture(t, nil)
	resp := fx.partner.Create(context.Background(), validRequest(1001))

	if !resp.Success || resp.Message != msgCreated {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.TripEaseBookingID == 0 || resp.Status != booking.StatusPending {
		t.Fatalf("unexpected booking fields: %+v", resp)
	}
	if resp.EstimatedTimeMin != booking.DefaultExternalTimeMin {
		t.Errorf("EstimatedTimeMin = %d, want default %d", resp.EstimatedTimeMin, booking.DefaultExternalTimeMin)
	}
	if resp.EstimatedFare != 640 || resp.SourceSystem != "ITM" || resp.ExternalBookingID != 1001 {
		t.Errorf("unexpected echo fields: %+v", resp)
	}

	b, err := fx.bookings.Get(context.Background(), resp.TripEaseBookingID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.CustomerID != booking.ExternalCustomerID || b.CustomerEmail != "asha@example.com" || !b.IsExternal() {
		t.Errorf("unexpected stored booking: %+v", b)
	}
	if b.DistanceKm != 0 {
		t.Errorf("absent distance should default to 0, got %v", b.DistanceKm)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	first := fx.partner.Create(ctx, validRequest(2002))
	if !first.Success {
		t.Fatalf("first create failed: %+v", first)
	}
	second := fx.partner.Create(ctx, validRequest(2002))
	if second.Success {
		t.Fatalf("duplicate accepted: %+v", second)
	}
	if second.TripEaseBookingID != first.TripEaseBookingID {
		t.Errorf("duplicate response should reference booking %d, got %d", first.TripEaseBookingID, second.TripEaseBookingID)
	}

	// Without the guard the unique constraint still rejects it.
	unguarded := NewService(fx.bookings, nil, nil, nil)
	third := unguarded.Create(ctx, validRequest(2002))
	if third.Success || third.TripEaseBookingID != first.TripEaseBookingID {
		t.Fatalf("unguarded duplicate: %+v", third)
	}

	list, err := fx.partner.ListBySource(ctx, "ITM")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one booking, got %d", len(list))
	}
}

func TestCreate_ConcurrentDuplicates(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	const attempts = 6
	var wg sync.WaitGroup
	results := make(chan Response, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- fx.partner.Create(ctx, validRequest(3003))
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for r := range results {
		if r.Success {
			success++
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one success, got %d", success)
	}
}

func TestCreate_SoftValidationFailure(t *testing.T) {
	fx := newFixture(t, nil)
	req := validRequest(0)
	req.ExternalBookingID = nil
	req.SourceSystem = ""
	req.RideType = ""

	resp := fx.partner.Create(context.Background(), req)
	if resp.Success {
		t.Fatalf("expected failure: %+v", resp)
	}
	if !strings.HasPrefix(resp.Message, "Error creating booking: ") {
		t.Errorf("message = %q", resp.Message)
	}
	for _, f := range []string{"sourceSystem", "externalBookingId", "rideType"} {
		if !strings.Contains(resp.Message, f) {
			t.Errorf("message %q does not mention %s", resp.Message, f)
		}
	}
}

func TestStatusLookups(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	created := fx.partner.Create(ctx, validRequest(4004))

	if r := fx.partner.StatusByID(ctx, created.TripEaseBookingID); !r.Success || r.Message != msgFound {
		t.Errorf("by id: %+v", r)
	}
	if r := fx.partner.StatusByExternalID(ctx, "ITM", 4004); !r.Success || r.TripEaseBookingID != created.TripEaseBookingID {
		t.Errorf("by external id: %+v", r)
	}
	if r := fx.partner.StatusByID(ctx, 9999); r.Success || r.Message != msgNotFound || r.TripEaseBookingID != 9999 {
		t.Errorf("missing by id: %+v", r)
	}
	r := fx.partner.StatusByExternalID(ctx, "OTHER", 4004)
	if r.Success || r.Message != msgNotFound {
		t.Errorf("missing by external id: %+v", r)
	}
	if r.SourceSystem != "OTHER" || r.ExternalBookingID != 4004 || r.TripEaseBookingID != 0 {
		t.Errorf("missing by external id should echo the query: %+v", r)
	}
}

func TestCancel(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	pending := fx.partner.Create(ctx, validRequest(5001))
	if r := fx.partner.Cancel(ctx, pending.TripEaseBookingID); !r.Success || r.Status != booking.StatusCancelled || r.Message != msgCancelled {
		t.Fatalf("cancel pending: %+v", r)
	}
	if r := fx.partner.Cancel(ctx, pending.TripEaseBookingID); r.Success || r.Message != "Cannot cancel booking in current status: CANCELLED" {
		t.Errorf("cancel twice: %+v", r)
	}

	running := fx.partner.Create(ctx, validRequest(5002))
	if _, err := fx.bookings.Accept(ctx, fx.driver, running.TripEaseBookingID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := fx.bookings.Start(ctx, fx.driver, running.TripEaseBookingID); err != nil {
		t.Fatalf("start: %v", err)
	}
	r := fx.partner.Cancel(ctx, running.TripEaseBookingID)
	if r.Success || r.Message != "Cannot cancel booking in current status: IN_PROGRESS" {
		t.Fatalf("cancel in progress: %+v", r)
	}
	if r.Status != booking.StatusInProgress || r.DriverName != "Ravi" {
		t.Errorf("status or driver changed: %+v", r)
	}

	if _, err := fx.bookings.Complete(ctx, fx.driver, running.TripEaseBookingID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if r := fx.partner.Cancel(ctx, running.TripEaseBookingID); r.Success || r.Message != "Cannot cancel booking in current status: COMPLETED" {
		t.Errorf("cancel completed: %+v", r)
	}

	if r := fx.partner.Cancel(ctx, 424242); r.Success || r.Message != msgNotFound || r.TripEaseBookingID != 424242 {
		t.Errorf("cancel missing: %+v", r)
	}
}

func TestWebhook_DeliveredOnTransition(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []webhookPayload
		keys     []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		payloads = append(payloads, p)
		keys = append(keys, r.Header.Get("X-API-Key"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.Client(), "callback-secret", time.Second, nil)
	fx := newFixture(t, notifier)
	ctx := context.Background()

	req := validRequest(6001)
	req.CallbackURL = srv.URL + "/hooks/tripease"
	created := fx.partner.Create(ctx, req)
	if _, err := fx.bookings.Accept(ctx, fx.driver, created.TripEaseBookingID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	notifier.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 callback, got %d", len(payloads))
	}
	want := webhookPayload{
		TripEaseBookingID: created.TripEaseBookingID,
		ExternalBookingID: 6001,
		Status:            booking.StatusAccepted,
		DriverEmail:       fx.driver.Email,
	}
	if payloads[0] != want {
		t.Errorf("payload = %+v, want %+v", payloads[0], want)
	}
	if keys[0] != "callback-secret" {
		t.Errorf("X-API-Key = %q", keys[0])
	}
}

func TestWebhook_FailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.Client(), "k", time.Second, nil)
	fx := newFixture(t, notifier)
	ctx := context.Background()

	req := validRequest(7001)
	req.CallbackURL = srv.URL
	created := fx.partner.Create(ctx, req)
	b, err := fx.bookings.Accept(ctx, fx.driver, created.TripEaseBookingID)
	if err != nil {
		t.Fatalf("accept failed because of callback: %v", err)
	}
	notifier.Wait()
	if b.Status != booking.StatusAccepted {
		t.Fatalf("status = %s", b.Status)
	}

	if err := notifier.Notify(ctx, b); err == nil {
		t.Errorf("expected synchronous notify to report the 500")
	}
}

func TestWebhook_SkipsInternalBookings(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	notifier := NewNotifier(srv.Client(), "", time.Second, nil)
	notifier.BookingStatusChanged(context.Background(), &booking.Booking{ID: 1, Status: booking.StatusAccepted}, booking.StatusPending)
	notifier.Wait()
	if hits != 0 {
		t.Fatalf("internal booking triggered %d callbacks", hits)
	}
}

func TestWebhook_BackgroundDeliverySnapshotsBooking(t *testing.T) {
	got := make(chan webhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		got <- p
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.Client(), "", time.Second, nil)
	b := &booking.Booking{
		ID:       11,
		Status:   booking.StatusAccepted,
		External: &booking.ExternalOrigin{SourceSystem: "ITM", ExternalBookingID: 8001, CallbackURL: srv.URL},
	}
	notifier.BookingStatusChanged(context.Background(), b, booking.StatusPending)
	b.Status = booking.StatusCompleted
	notifier.Wait()

	select {
	case p := <-got:
		if p.Status != booking.StatusAccepted || p.ExternalBookingID != 8001 {
			t.Errorf("payload = %+v", p)
		}
	default:
		t.Fatal("no callback delivered")
	}
}

func TestNotify_RequiresCallback(t *testing.T) {
	notifier := NewNotifier(nil, "", time.Second, nil)
	b := &booking.Booking{ID: 3, External: &booking.ExternalOrigin{SourceSystem: "ITM", ExternalBookingID: 1}}
	if err := notifier.Notify(context.Background(), b); err == nil || !strings.Contains(err.Error(), "no callback url") {
		t.Fatalf("expected missing callback error, got %v", err)
	}
}

func TestLocalGuard(t *testing.T) {
	ctx := context.Background()
	g := NewLocalGuard(time.Minute)
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }

	if ok, _ := g.Claim(ctx, "ITM", 1); !ok {
		t.Fatalf("first claim should succeed")
	}
	if ok, _ := g.Claim(ctx, "ITM", 1); ok {
		t.Fatalf("second claim should fail while held")
	}
	if ok, _ := g.Claim(ctx, "ITM", 2); !ok {
		t.Fatalf("other key should be claimable")
	}
	_ = g.Release(ctx, "ITM", 1)
	if ok, _ := g.Claim(ctx, "ITM", 1); !ok {
		t.Fatalf("claim after release should succeed")
	}
	clock = clock.Add(2 * time.Minute)
	if ok, _ := g.Claim(ctx, "ITM", 2); !ok {
		t.Fatalf("claim after expiry should succeed")
	}
}
