// Command seed creates the initial accounts, the default checklist and the
// sample calls. Existing records are kept, so it is safe to run on every
// deploy.
//
//	seed                 # embedded data
//	seed -file data.yaml # custom data
//
// SEED_SKIP_CALLS=true leaves out the sample calls.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/callqa-backend/internal/config"
	"github.com/tbourn/callqa-backend/internal/repo"
	"github.com/tbourn/callqa-backend/internal/seed"
	"github.com/tbourn/callqa-backend/internal/sysutil"
)

func main() {
	file := flag.String("file", "", "YAML seed file (default: embedded data)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	data, err := load(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("load seed data")
	}
	if sysutil.IsTruthy(os.Getenv("SEED_SKIP_CALLS")) {
		data.Calls = nil
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := seed.Apply(ctx, db, data, cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
	log.Info().
		Int("users", res.Users).
		Int("checklists", res.Checklists).
		Int("calls", res.Calls).
		Msg("seed complete")
}

func load(path string) (*seed.Data, error) {
	if path == "" {
		return seed.Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return seed.Parse(b)
}
