// Package app wires configuration, storage and the HTTP server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/order"
	"github.com/xenking/giftkart/internal/handler"
	"github.com/xenking/giftkart/internal/idempotency"
	"github.com/xenking/giftkart/internal/notify"
	"github.com/xenking/giftkart/pkg/health"
	"github.com/xenking/giftkart/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("notify", cfg.Notify.Driver),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	st, err := openStorage(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer st.close()
	if st.pinger != nil {
		healthSvc.AddReadinessCheck(cfg.Storage, 5*time.Second, health.PingCheck(st.pinger))
	}

	// Idempotency keys need Redis; without it the header is ignored.
	var idem handler.Idempotency
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		store := idempotency.NewRedisStore(client, cfg.Redis.IdempotencyTTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(store))
		idem = store
	}

	pub, err := newPublisher(lg, cfg.Notify)
	if err != nil {
		return errors.Wrap(err, "create event publisher")
	}
	defer func() {
		if err := pub.Close(); err != nil {
			lg.Warn("Close event publisher", zap.Error(err))
		}
	}()
	dispatcher, err := notify.NewDispatcher(pub, lg.Named("notify"), notify.DispatcherOptions{
		QueueSize:     cfg.Notify.QueueSize,
		MeterProvider: m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create event dispatcher")
	}
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		// Keep publishing while the server drains; Close ends the loop.
		_ = dispatcher.Run(context.WithoutCancel(ctx))
	}()

	policy, err := cfg.Checkout.Policy()
	if err != nil {
		return errors.Wrap(err, "checkout policy")
	}
	loc, err := time.LoadLocation(cfg.Checkout.Location)
	if err != nil {
		return errors.Wrap(err, "checkout location")
	}
	orderService, err := order.NewService(st.deps, order.Options{
		Policy:         policy,
		Timeout:        cfg.Checkout.Timeout,
		AutoConfirm:    cfg.Checkout.AutoConfirm,
		Location:       loc,
		Notifier:       dispatcher,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.New(st.deps.Products, st.deps.Carts, orderService, idem)
	router := h.Router(handler.NewSecurity(st.apikeys, []byte(cfg.APIKeyPepper)))
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	routeFinder := httpmiddleware.MakeRouteFinder(router)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				ExposeHeaders:    []string{handler.ReplayedHeader, httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.APIKeyOrIP(handler.APIKeyHeader),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("giftkart-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}

		// No request can emit events any more; flush what is queued.
		dispatcher.Close()
		select {
		case <-dispatchDone:
		case <-shutdownCtx.Done():
			lg.Warn("Event queue not drained before shutdown timeout")
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
