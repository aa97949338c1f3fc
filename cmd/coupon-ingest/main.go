// Command coupon-ingest loads coupon campaigns from gzip-compressed code
// lists into the coupons table.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/repository"
)

func main() {
	var (
		pattern       string
		databaseURL   string
		dryRun        bool
		discountType  string
		value         string
		minOrderValue string
		perUser       int
		validFrom     string
		validUntil    string
		description   string
		bloomCapacity uint
		bloomFPR      float64
	)
	flag.StringVar(&pattern, "files", "data/campaign*.gz", "glob of gzip-compressed campaign files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and report without writing")
	flag.StringVar(&discountType, "discount-type", string(coupon.DiscountPercentage), "default discount type")
	flag.StringVar(&value, "value", "10", "default discount value")
	flag.StringVar(&minOrderValue, "min-order-value", "0", "default minimum order value")
	flag.IntVar(&perUser, "usage-limit-per-user", 1, "uses per user, 0 for unlimited")
	flag.StringVar(&validFrom, "valid-from", "", "RFC 3339 start of the campaign")
	flag.StringVar(&validUntil, "valid-until", "", "RFC 3339 end of the campaign")
	flag.StringVar(&description, "description", "Campaign code", "coupon description")
	flag.UintVar(&bloomCapacity, "bloom-capacity", 10_000_000, "expected codes per file")
	flag.Float64Var(&bloomFPR, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	defaults, err := campaignDefaults(discountType, value, minOrderValue, perUser, validFrom, validUntil, description)
	if err != nil {
		lg.Fatal("Invalid campaign flags", zap.Error(err))
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	in := &ingester{lg: lg, defaults: defaults, bloomCapacity: bloomCapacity, bloomFPR: bloomFPR}
	if err := run(ctx, in, pattern, databaseURL, dryRun); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, in *ingester, pattern, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "glob campaign files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", pattern)
	}

	res, err := in.run(ctx, files)
	if err != nil {
		return err
	}
	in.lg.Info("Codes parsed",
		zap.Int("valid", len(res.Coupons)),
		zap.Int("conflicts", len(res.Conflicts)),
		zap.Int("invalid", res.Invalid),
	)
	if len(res.Conflicts) > 0 {
		in.lg.Warn("Codes listed in several files were skipped",
			zap.Strings("sample", res.Conflicts[:min(10, len(res.Conflicts))]),
		)
	}
	if dryRun || len(res.Coupons) == 0 {
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.NewCouponRepository(pool).UpsertMany(ctx, res.Coupons); err != nil {
		return errors.Wrap(err, "write coupons")
	}
	in.lg.Info("Coupons written", zap.Int("count", len(res.Coupons)))
	return nil
}

func campaignDefaults(discountType, value, minOrder string, perUser int, from, until, description string) (campaign, error) {
	c := campaign{
		DiscountType:      coupon.DiscountType(discountType),
		UsageLimitPerUser: perUser,
		Description:       description,
	}
	if !c.DiscountType.Valid() {
		return c, errors.Errorf("unknown discount type %q", discountType)
	}
	var err error
	if c.Value, err = decimal.NewFromString(value); err != nil {
		return c, errors.Wrap(err, "value")
	}
	if c.MinOrderValue, err = decimal.NewFromString(minOrder); err != nil {
		return c, errors.Wrap(err, "min order value")
	}
	if c.ValidFrom, err = optTime(from); err != nil {
		return c, errors.Wrap(err, "valid-from")
	}
	if c.ValidUntil, err = optTime(until); err != nil {
		return c, errors.Wrap(err, "valid-until")
	}
	if perUser < 0 {
		return c, errors.New("usage limit per user must not be negative")
	}
	return c, nil
}

func optTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
