package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/repository"
	"github.com/xenking/giftkart/internal/seed"
)

type options struct {
	databaseURL string
	seedFile    string
	pepper      string
	// Optional extra key, e.g. a production admin key kept out of the file.
	apiKey     string
	apiKeyUser string
	apiKeyRole string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.seedFile, "seed-file", "db/seed/catalog.json", "path to the catalog JSON file")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.StringVar(&opts.apiKey, "api-key", "", "additional API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyUser, "api-key-user", "admin", "user ID of the additional API key")
	flag.StringVar(&opts.apiKeyRole, "api-key-role", string(auth.RoleAdmin), "role of the additional API key")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.pepper == "" {
		opts.pepper = os.Getenv("KART_API_KEY_PEPPER")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("KART_SEED_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	data, err := seed.Load(opts.seedFile)
	if err != nil {
		return err
	}
	if opts.apiKey != "" {
		if !auth.Role(opts.apiKeyRole).Valid() {
			return errors.Errorf("unknown role %q", opts.apiKeyRole)
		}
		data.APIKeys = append(data.APIKeys, seed.APIKey{
			ID:     "cli-" + opts.apiKeyUser,
			Key:    opts.apiKey,
			Name:   "Seeded from command line",
			UserID: opts.apiKeyUser,
			Role:   opts.apiKeyRole,
		})
	}

	lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seed.Apply(ctx, lg, seed.NewPostgresSink(pool), data, []byte(opts.pepper))
}
