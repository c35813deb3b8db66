package main

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"stayhold/internal/adapters/observability"
	redisad "stayhold/internal/adapters/redis"
	"stayhold/internal/app"
	"stayhold/internal/domain"
	"stayhold/internal/shared"
	mysqlrepo "stayhold/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Int("workers", cfg.SeedWorkers).
		Int("days", cfg.SeedDays).
		Int("properties", len(cfg.SeedPropertyIDs)).
		Msg("seeder starting")

	if len(cfg.SeedPropertyIDs) == 0 {
		log.Fatal().Msg("SEED_PROPERTY_IDS is empty")
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	clock := domain.SystemClock()
	seed := app.NewSeedService(repo, cache, clock)

	from := domain.DateOf(clock.Now())
	to := from.AddDays(cfg.SeedDays - 1)

	sem := semaphore.NewWeighted(int64(cfg.SeedWorkers))
	var wg sync.WaitGroup

	for _, id := range cfg.SeedPropertyIDs {
		id := id

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, int64(1)); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(propertyID int64) {
			defer wg.Done()
			defer sem.Release(int64(1))

			n, err := seed.OpenRange(ctx, propertyID, from, to)
			if err != nil {
				log.Warn().Int64("id", propertyID).Err(err).Msg("seed failed")
				return
			}
			log.Info().Int64("id", propertyID).Int("days", n).Msg("seed ok")
		}(id)
	}

	wg.Wait()
	log.Info().Msg("seeding completed")
}
