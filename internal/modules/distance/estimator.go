// README: Distance estimator; routing service first, haversine fallback, never fails.
package distance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"tripease/internal/types"
)

const (
	SourceRouting  = "routing"
	SourceFallback = "fallback"
)

// Route is a raw routing result: metres and seconds.
type Route struct {
	DistanceMeters  float64
	DurationSeconds float64
}

// Router queries an external routing service.
type Router interface {
	Route(ctx context.Context, origin, dest types.Point) (Route, error)
}

// Cache stores routing estimates. Failures are ignored by the estimator.
type Cache interface {
	Get(ctx context.Context, origin, dest types.Point) (Estimate, bool, error)
	Set(ctx context.Context, origin, dest types.Point, e Estimate, ttl time.Duration) error
}

type Estimate struct {
	DistanceKm   float64 `json:"distanceKm"`
	DurationMin  int     `json:"durationMin"`
	DistanceText string  `json:"distanceText"`
	DurationText string  `json:"durationText"`
	Source       string  `json:"source"`
}

type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

type Estimator struct {
	router Router
	cache  Cache
	cfg    Config
	log    *zap.Logger
}

var errMalformedRoute = errors.New("malformed route")

// NewEstimator accepts a nil router (always fallback) and a nil cache.
func NewEstimator(router Router, cache Cache, cfg Config, log *zap.Logger) *Estimator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Estimator{router: router, cache: cache, cfg: cfg, log: log}
}

// Estimate returns the routing-service estimate, or the haversine fallback
// when the call fails, times out or returns unusable data.
func (e *Estimator) Estimate(ctx context.Context, origin, dest types.Point) Estimate {
	if e.cache != nil {
		if est, ok, err := e.cache.Get(ctx, origin, dest); err != nil {
			e.log.Debug("route cache read failed", zap.Error(err))
		} else if ok {
			return est
		}
	}

	if e.router != nil {
		est, err := e.route(ctx, origin, dest)
		if err == nil {
			if e.cache != nil && e.cfg.CacheTTL > 0 {
				if err := e.cache.Set(ctx, origin, dest, est, e.cfg.CacheTTL); err != nil {
					e.log.Debug("route cache write failed", zap.Error(err))
				}
			}
			return est
		}
		e.log.Warn("routing service unavailable, using haversine fallback",
			zap.Stringer("origin", origin),
			zap.Stringer("dest", dest),
			zap.Error(err),
		)
	}
	return Fallback(origin, dest)
}

func (e *Estimator) route(ctx context.Context, origin, dest types.Point) (Estimate, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	r, err := e.router.Route(ctx, origin, dest)
	if err != nil {
		return Estimate{}, err
	}
	if !usable(r.DistanceMeters) || !usable(r.DurationSeconds) {
		return Estimate{}, fmt.Errorf("%w: distance=%v duration=%v", errMalformedRoute, r.DistanceMeters, r.DurationSeconds)
	}
	return FromRoute(r), nil
}

func usable(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FromRoute rounds distance to 0.1 km and duration to the nearest minute.
func FromRoute(r Route) Estimate {
	km := roundHalfUp(r.DistanceMeters/100) / 10
	min := int(roundHalfUp(r.DurationSeconds / 60))
	return newEstimate(km, min, SourceRouting)
}

// Fallback approximates road distance as 1.3x the great-circle distance and
// the duration as 3 minutes per kilometre.
func Fallback(origin, dest types.Point) Estimate {
	straight := haversineKm(origin.Lat, origin.Lng, dest.Lat, dest.Lng)
	road := roundTenth(straight * roadFactor)
	return newEstimate(road, int(road*fallbackMinPerKm), SourceFallback)
}

func newEstimate(km float64, min int, source string) Estimate {
	return Estimate{
		DistanceKm:   km,
		DurationMin:  min,
		DistanceText: FormatDistance(km),
		DurationText: FormatDuration(min),
		Source:       source,
	}
}

func FormatDistance(km float64) string {
	return fmt.Sprintf("%.1f km", km)
}

// FormatDuration renders "N mins" below an hour, "H hr M mins" otherwise.
func FormatDuration(min int) string {
	if min < 60 {
		return fmt.Sprintf("%d mins", min)
	}
	return fmt.Sprintf("%d hr %d mins", min/60, min%60)
}
