// README: Partner webhook notifier; best-effort, no retry.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"tripease/internal/modules/booking"
)

const (
	apiKeyHeader           = "X-API-Key"
	defaultCallbackTimeout = 10 * time.Second
)

type Notifier struct {
	http    *http.Client
	apiKey  string
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewNotifier(httpClient *http.Client, apiKey string, timeout time.Duration, log *zap.Logger) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultCallbackTimeout
	}
	return &Notifier{http: httpClient, apiKey: apiKey, timeout: timeout, log: log}
}

// BookingStatusChanged sends the callback in the background for partner
// bookings that registered a callback URL. Failures are logged and dropped.
func (n *Notifier) BookingStatusChanged(_ context.Context, b *booking.Booking, from booking.Status) {
	if !hasCallback(b) {
		return
	}
	snapshot := *b

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.Notify(ctx, &snapshot); err != nil {
			n.log.Warn("partner callback failed",
				zap.Int64("booking_id", snapshot.ID),
				zap.Int64("external_booking_id", snapshot.External.ExternalBookingID),
				zap.String("from", string(from)),
				zap.String("status", string(snapshot.Status)),
				zap.Error(err),
			)
			return
		}
		n.log.Debug("partner callback delivered",
			zap.Int64("booking_id", snapshot.ID),
			zap.String("status", string(snapshot.Status)),
		)
	}()
}

// Notify delivers the callback for b and reports the outcome.
func (n *Notifier) Notify(ctx context.Context, b *booking.Booking) error {
	if !hasCallback(b) {
		return fmt.Errorf("booking %d has no callback url", b.ID)
	}
	return n.post(ctx, b.External.CallbackURL, payloadFor(b))
}

func hasCallback(b *booking.Booking) bool {
	return b.IsExternal() && b.External.CallbackURL != ""
}

// Wait blocks until in-flight callbacks finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) post(ctx context.Context, url string, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set(apiKeyHeader, n.apiKey)
	}
	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}

func payloadFor(b *booking.Booking) webhookPayload {
	return webhookPayload{
		TripEaseBookingID: b.ID,
		ExternalBookingID: b.External.ExternalBookingID,
		Status:            b.Status,
		DriverEmail:       b.DriverEmail,
	}
}
