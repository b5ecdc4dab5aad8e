// README: Entry point; loads config, wires services, starts the HTTP server and drains on shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tripease/internal/config"
	"tripease/internal/events"
	httptransport "tripease/internal/http"
	"tripease/internal/http/handlers"
	"tripease/internal/infra"
	"tripease/internal/maps"
	"tripease/internal/modules/booking"
	"tripease/internal/modules/distance"
	"tripease/internal/modules/fare"
	"tripease/internal/modules/identity"
	"tripease/internal/modules/partner"
)

const partnerClaimTTL = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.IsProduction(), cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]handlers.Check{}

	var (
		bookingStore  booking.Repository
		identityStore identity.Repository
	)
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns, cfg.DB.MinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		bookingStore = booking.NewStore(pool)
		identityStore = identity.NewStore(pool)
		health["postgres"] = pgCheck(pool)
	default:
		logger.Warn("using in-memory stores; data is lost on restart")
		bookingStore = booking.NewMemoryStore()
		identityStore = identity.NewMemoryStore()
	}

	var (
		routeCache distance.Cache
		guard      partner.Guard = partner.NewLocalGuard(partnerClaimTTL)
	)
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable; route cache disabled and partner claims are process-local", zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()
			routeCache = distance.NewRedisCache(rdb)
			guard = partner.NewRedisGuard(rdb, partnerClaimTTL)
			health["redis"] = redisCheck(rdb)
		}
	}

	router, err := newRouter(cfg.Routing)
	if err != nil {
		return err
	}
	estimator := distance.NewEstimator(router, routeCache, distance.Config{
		Timeout:  cfg.Routing.Timeout,
		CacheTTL: cfg.Routing.CacheTTL,
	}, logger.Named("distance"))

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	notifier := partner.NewNotifier(&http.Client{}, cfg.Partner.CallbackAPIKey, cfg.Partner.CallbackTimeout, logger.Named("webhook"))
	listeners := []booking.StatusListener{notifier}
	if cfg.AMQP.URL != "" {
		conn, ch, err := infra.NewAMQPChannel(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Warn("amqp unavailable; status events disabled", zap.Error(err))
		} else {
			defer func() {
				_ = ch.Close()
				_ = conn.Close()
			}()
			publisher := events.NewPublisher(ch, cfg.AMQP.Exchange, logger.Named("events"))
			defer publisher.Close()
			listeners = append(listeners, publisher)
		}
	}

	identities := identity.NewService(identityStore)
	bookings := booking.NewService(bookingStore, logger.Named("booking"), listeners...)
	fares := fare.NewService(estimator)
	partners := partner.NewService(bookings, guard, identityStore, logger.Named("partner"))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := httptransport.NewServer(httptransport.ServerDeps{
		Booking:        bookings,
		Fare:           fares,
		Partner:        partners,
		Identities:     identities,
		Verifier:       verifier,
		Health:         health,
		Logger:         logger,
		PartnerAPIKey:  cfg.Partner.APIKey,
		PartnerRate:    cfg.Partner.RatePerMinute,
		PartnerBurst:   cfg.Partner.Burst,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.String("routing", cfg.Routing.Provider),
			zap.String("auth", cfg.Auth.Provider),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	notifier.Wait()
	return nil
}

func newRouter(cfg config.RoutingConfig) (distance.Router, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case "google":
		rs, err := maps.NewRouteService(cfg.GoogleMapsKey)
		if err != nil {
			return nil, fmt.Errorf("google maps client: %w", err)
		}
		return rs, nil
	case "none":
		return nil, nil
	default:
		return maps.NewOSRMClient(cfg.OSRMBaseURL, client), nil
	}
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (infra.TokenVerifier, error) {
	if cfg.Provider == "firebase" {
		v, err := infra.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("firebase init: %w", err)
		}
		return v, nil
	}
	return infra.NewJWTVerifier(cfg.JWTSecret), nil
}

func pgCheck(pool *pgxpool.Pool) handlers.Check {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

func redisCheck(rdb *redis.Client) handlers.Check {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}
