// README: Smoke and load cases; covers DB, Redis, migrations, internal ride flow, partner API and concurrency.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"tripease/internal/infra"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		start := time.Now()
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		if res.Latency == 0 {
			res.Latency = time.Since(start)
		}
		results = append(results, res)
		fmt.Printf("%-5s %s (%s)", res.Status, tc.Name, res.Latency.Round(time.Millisecond))
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return fail("db not configured")
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return fail(err.Error())
				}
				return pass("")
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return skip("redis not configured")
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return fail(err.Error())
				}
				return pass("")
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return skip("apply-migration=false")
				}
				if r.db == nil {
					return fail("db not configured")
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return fail(err.Error())
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return fail(err.Error())
					}
				}
				return pass("")
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return fail("db not configured")
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return fail(err.Error())
				}
				var missing []string
				for _, t := range tables {
					var exists bool
					if err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, t).Scan(&exists); err != nil {
						return fail(err.Error())
					}
					if !exists {
						missing = append(missing, t)
					}
				}
				if len(missing) > 0 {
					return fail("missing: " + strings.Join(missing, ","))
				}
				return pass(fmt.Sprintf("%d tables", len(tables)))
			},
		},
		httpCase("API: health", http.MethodGet, base+"/health", nil, nil, http.StatusOK),
		httpCase("Partner: missing API key rejected", http.MethodGet, base+"/api/external/ride/health", nil, nil, http.StatusUnauthorized),
		{
			Name: "Partner: health",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.APIKey == "" {
					return skip("api-key not set")
				}
				code, _, err := r.call(ctx, http.MethodGet, base+"/api/external/ride/health", nil, r.partnerHeaders())
				return expect(code, err, http.StatusOK)
			},
		},
		{
			Name: "Fare: calculate",
			Run: func(ctx context.Context, r *Runner) Result {
				code, body, err := r.call(ctx, http.MethodPost, base+"/fare/calculate", tripBody(), nil)
				if res := expect(code, err, http.StatusOK); res.Status != statusPass {
					return res
				}
				var calc struct {
					DistanceText  string            `json:"distanceText"`
					FareEstimates []json.RawMessage `json:"fareEstimates"`
				}
				if err := json.Unmarshal(body, &calc); err != nil {
					return fail(err.Error())
				}
				if len(calc.FareEstimates) != 4 {
					return fail(fmt.Sprintf("expected 4 estimates, got %d", len(calc.FareEstimates)))
				}
				return pass(calc.DistanceText)
			},
		},
		{
			Name: "Ride: book, accept, start, complete",
			Run:  rideLifecycle,
		},
		{
			Name: "Partner: book, lookup, cancel",
			Run:  partnerFlow,
		},
		{
			Name: "Concurrency: multi accept same booking",
			Run:  concurrentAccept,
		},
		{
			Name: "Perf: fare calculate throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodPost, base+"/fare/calculate", tripBody(), nil)
			},
		},
		{
			Name: "Perf: pending list throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.JWTSecret == "" {
					return skip("jwt-secret not set")
				}
				h, err := r.bearer("bench-driver@tripease.local", "DRIVER")
				if err != nil {
					return fail(err.Error())
				}
				return perfLoad(ctx, r, http.MethodGet, base+"/ride/pending", nil, h)
			},
		},
	}
}

func rideLifecycle(ctx context.Context, r *Runner) Result {
	if r.cfg.JWTSecret == "" {
		return skip("jwt-secret not set")
	}
	base := r.cfg.BaseURL
	customer, err := r.bearer("bench-customer@tripease.local", "CUSTOMER")
	if err != nil {
		return fail(err.Error())
	}
	driver, err := r.bearer("bench-driver@tripease.local", "DRIVER")
	if err != nil {
		return fail(err.Error())
	}

	b, err := r.book(ctx, customer)
	if err != nil {
		return fail(err.Error())
	}
	for _, step := range []struct{ action, want string }{
		{"accept", "ACCEPTED"},
		{"start", "IN_PROGRESS"},
		{"complete", "COMPLETED"},
	} {
		code, body, err := r.call(ctx, http.MethodPost, fmt.Sprintf("%s/ride/%s/%d", base, step.action, b.BookingID), nil, driver)
		if res := expect(code, err, http.StatusOK); res.Status != statusPass {
			return fail(step.action + ": " + res.Note)
		}
		var got rideDetails
		if err := json.Unmarshal(body, &got); err != nil {
			return fail(err.Error())
		}
		if got.TripStatus != step.want {
			return fail(fmt.Sprintf("%s: status %s, want %s", step.action, got.TripStatus, step.want))
		}
	}
	return pass(fmt.Sprintf("booking %d", b.BookingID))
}

func partnerFlow(ctx context.Context, r *Runner) Result {
	if r.cfg.APIKey == "" {
		return skip("api-key not set")
	}
	base := r.cfg.BaseURL
	extID := time.Now().UnixNano() % 1_000_000_000
	req := tripBody()
	req["sourceSystem"] = "BENCH"
	req["externalBookingId"] = extID
	req["passengerName"] = "Bench Rider"
	req["rideType"] = "AUTO"

	code, body, err := r.call(ctx, http.MethodPost, base+"/api/external/ride/book", req, r.partnerHeaders())
	if res := expect(code, err, http.StatusCreated); res.Status != statusPass {
		return res
	}
	var created partnerResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return fail(err.Error())
	}

	code, _, err = r.call(ctx, http.MethodPost, base+"/api/external/ride/book", req, r.partnerHeaders())
	if res := expect(code, err, http.StatusBadRequest); res.Status != statusPass {
		return fail("duplicate submission: " + res.Note)
	}

	code, body, err = r.call(ctx, http.MethodGet, fmt.Sprintf("%s/api/external/ride/external/BENCH/%d/status", base, extID), nil, r.partnerHeaders())
	if res := expect(code, err, http.StatusOK); res.Status != statusPass {
		return res
	}
	var found partnerResponse
	_ = json.Unmarshal(body, &found)
	if !found.Success || found.TripEaseBookingID != created.TripEaseBookingID {
		return fail(fmt.Sprintf("lookup mismatch: %+v", found))
	}

	_, body, err = r.call(ctx, http.MethodPost, fmt.Sprintf("%s/api/external/ride/%d/cancel", base, created.TripEaseBookingID), nil, r.partnerHeaders())
	if err != nil {
		return fail(err.Error())
	}
	var cancelled partnerResponse
	_ = json.Unmarshal(body, &cancelled)
	if !cancelled.Success || cancelled.Status != "CANCELLED" {
		return fail(fmt.Sprintf("cancel: %+v", cancelled))
	}
	return pass(fmt.Sprintf("booking %d", created.TripEaseBookingID))
}

func concurrentAccept(ctx context.Context, r *Runner) Result {
	if r.cfg.JWTSecret == "" {
		return skip("jwt-secret not set")
	}
	customer, err := r.bearer("bench-customer@tripease.local", "CUSTOMER")
	if err != nil {
		return fail(err.Error())
	}
	b, err := r.book(ctx, customer)
	if err != nil {
		return fail(err.Error())
	}
	url := fmt.Sprintf("%s/ride/accept/%d", r.cfg.BaseURL, b.BookingID)

	var ok, conflict, other int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.bearer(fmt.Sprintf("bench-driver-%d@tripease.local", i), "DRIVER")
			if err != nil {
				atomic.AddInt64(&other, 1)
				return
			}
			code, _, err := r.call(ctx, http.MethodPost, url, nil, h)
			switch {
			case err != nil:
				atomic.AddInt64(&other, 1)
			case code == http.StatusOK:
				atomic.AddInt64(&ok, 1)
			case code == http.StatusConflict:
				atomic.AddInt64(&conflict, 1)
			default:
				atomic.AddInt64(&other, 1)
			}
		}(i)
	}
	wg.Wait()

	note := fmt.Sprintf("ok=%d conflict=%d other=%d", ok, conflict, other)
	if ok != 1 || other != 0 {
		return fail(note)
	}
	return pass(note)
}

func perfLoad(ctx context.Context, r *Runner, method, url string, payload any, headers map[string]string) Result {
	var b []byte
	if payload != nil {
		b, _ = json.Marshal(payload)
	}
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				req, _ := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(b))
				req.Header.Set("Content-Type", "application/json")
				for k, v := range headers {
					req.Header.Set(k, v)
				}
				resp, err := r.httpc.Do(req)
				if err != nil {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode >= 500 {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				atomic.AddInt64(&count, 1)
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return fail("no requests completed")
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Latency: r.cfg.Duration, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

type rideDetails struct {
	BookingID  int64  `json:"bookingId"`
	TripStatus string `json:"tripStatus"`
}

type partnerResponse struct {
	TripEaseBookingID int64  `json:"tripEaseBookingId"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	Success           bool   `json:"success"`
}

func (r *Runner) book(ctx context.Context, headers map[string]string) (rideDetails, error) {
	req := tripBody()
	req["tripDistanceInKm"] = 4.2
	req["estimatedTimeMin"] = 13
	req["billAmount"] = 113
	req["rideType"] = "CAR"
	code, body, err := r.call(ctx, http.MethodPost, r.cfg.BaseURL+"/ride/book", req, headers)
	if err != nil {
		return rideDetails{}, err
	}
	if code != http.StatusOK {
		return rideDetails{}, fmt.Errorf("book: status %d: %s", code, body)
	}
	var b rideDetails
	err = json.Unmarshal(body, &b)
	return b, err
}

func (r *Runner) call(ctx context.Context, method, url string, payload any, headers map[string]string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

func (r *Runner) bearer(email, role string) (map[string]string, error) {
	token, err := infra.SignToken(r.cfg.JWTSecret, email, email, role, time.Hour)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

func (r *Runner) partnerHeaders() map[string]string {
	return map[string]string{"X-API-Key": r.cfg.APIKey}
}

func tripBody() map[string]any {
	return map[string]any{
		"pickupAddress":      "MG Road Metro",
		"pickupLat":          12.9756,
		"pickupLng":          77.6050,
		"destinationAddress": "Indiranagar 100ft Road",
		"destinationLat":     12.9719,
		"destinationLng":     77.6412,
	}
}

func httpCase(name, method, url string, body any, headers map[string]string, okStatuses ...int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			code, _, err := r.call(ctx, method, url, body, headers)
			return expect(code, err, okStatuses...)
		},
	}
}

func expect(code int, err error, okStatuses ...int) Result {
	if err != nil {
		return fail(err.Error())
	}
	for _, s := range okStatuses {
		if code == s {
			return pass("")
		}
	}
	return fail(fmt.Sprintf("status=%d", code))
}

func pass(note string) Result { return Result{Status: statusPass, Note: note} }
func fail(note string) Result { return Result{Status: statusFail, Note: note} }
func skip(note string) Result { return Result{Status: statusSkip, Note: note} }

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
