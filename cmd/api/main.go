package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "stayhold/internal/adapters/http_server"
	"stayhold/internal/adapters/observability"
	"stayhold/internal/adapters/payment"
	"stayhold/internal/adapters/pricing"
	redisad "stayhold/internal/adapters/redis"
	"stayhold/internal/app"
	"stayhold/internal/domain"
	"stayhold/internal/shared"
	mysqlrepo "stayhold/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// outbound clients
	pricingClient, err := pricing.New(cfg.PricingBase, cfg.PricingKey, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pricing client")
	}
	paymentClient, err := payment.New(cfg.PaymentBase, cfg.PaymentKey, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize payment client")
	}

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	clock := domain.SystemClock()

	cal := app.NewCalendar(repo, cache, clock, cfg.HorizonDays, cfg.SnapshotTTL)
	locks := app.NewLockManager(cal, clock, cfg.LockTTL)
	quotes := app.NewQuoteService(pricingClient, cache, clock, cfg.MaxGuests)
	commit := app.NewCommitCoordinator(cal, locks, quotes, paymentClient, repo, clock)

	// background sweep of expired holds
	go locks.Run(ctx, cfg.SweepInterval)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Cal:      cal,
		Locks:    locks,
		Quotes:   quotes,
		Commit:   commit,
		Bookings: repo,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		_ = httpSrv.Shutdown(context.Background())
	}()

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
