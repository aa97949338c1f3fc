package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/giftkart/internal/domain/coupon"
)

const (
	minCodeLen    = 4
	maxCodeLen    = 32
	progressEvery = 1_000_000
	// Campaign files are scanned concurrently; the file bitmask is a uint.
	maxFiles = bits.UintSize
)

// campaign holds the rule applied to lines that only carry a code.
type campaign struct {
	DiscountType      coupon.DiscountType
	Value             decimal.Decimal
	MaxDiscount       *decimal.Decimal
	MinOrderValue     decimal.Decimal
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	UsageLimitTotal   *int
	UsageLimitPerUser int
	Description       string
}

type ingester struct {
	lg            *zap.Logger
	defaults      campaign
	bloomCapacity uint
	bloomFPR      float64
}

// result is the outcome of scanning a set of campaign files.
type result struct {
	Coupons []coupon.Coupon
	// Conflicts are codes listed in more than one file; they are skipped.
	Conflicts []string
	Invalid   int
}

// run scans files in two passes. Pass 1 builds a bloom filter per file.
// Pass 2 parses every line and marks codes that hit another file's filter;
// only those candidates are compared exactly.
func (in *ingester) run(ctx context.Context, files []string) (*result, error) {
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files per run", maxFiles)
	}

	in.lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := in.buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	in.lg.Info("Pass 2: parsing codes")
	scans := make([]fileScan, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			s, err := in.scanFile(gctx, i, f, filters)
			if err != nil {
				return errors.Wrapf(err, "scan %s", f)
			}
			scans[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge(scans), nil
}

type fileScan struct {
	coupons    map[string]coupon.Coupon
	candidates map[string]uint
	invalid    int
}

func merge(scans []fileScan) *result {
	masks := make(map[string]uint)
	for _, s := range scans {
		for code, mask := range s.candidates {
			masks[code] |= mask
		}
	}

	res := &result{}
	conflicts := make(map[string]struct{})
	for code, mask := range masks {
		if bits.OnesCount(mask) >= 2 {
			conflicts[code] = struct{}{}
			res.Conflicts = append(res.Conflicts, code)
		}
	}
	for _, s := range scans {
		res.Invalid += s.invalid
		for code, c := range s.coupons {
			if _, ok := conflicts[code]; !ok {
				res.Coupons = append(res.Coupons, c)
			}
		}
	}
	slices.Sort(res.Conflicts)
	slices.SortFunc(res.Coupons, func(a, b coupon.Coupon) int { return strings.Compare(a.Code, b.Code) })
	return res
}

func (in *ingester) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(in.bloomCapacity, in.bloomFPR)
			var count uint64
			err := streamGzFile(ctx, path, func(line string) {
				code, ok := lineCode(line)
				if !ok {
					return
				}
				filter.AddString(code)
				if count++; count%progressEvery == 0 {
					in.lg.Info("Pass 1 progress", zap.String("file", path), zap.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func (in *ingester) scanFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) (fileScan, error) {
	s := fileScan{
		coupons:    make(map[string]coupon.Coupon),
		candidates: make(map[string]uint),
	}
	fileBit := uint(1) << uint(idx)

	err := streamGzFile(ctx, path, func(line string) {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			return
		}
		c, err := in.parseLine(line)
		if err != nil {
			s.invalid++
			in.lg.Debug("Skipping line", zap.String("file", path), zap.Error(err))
			return
		}
		// The first occurrence within a file wins.
		if _, dup := s.coupons[c.Code]; !dup {
			s.coupons[c.Code] = c
		}
		for j, f := range filters {
			if j != idx && f.TestString(c.Code) {
				s.candidates[c.Code] |= fileBit
				break
			}
		}
	})
	if err != nil {
		return s, err
	}

	in.lg.Info("Pass 2 complete",
		zap.String("file", path),
		zap.Int("codes", len(s.coupons)),
		zap.Int("candidates", len(s.candidates)),
		zap.Int("invalid", s.invalid),
	)
	return s, nil
}

// lineCode extracts the normalized code of a line.
func lineCode(line string) (string, bool) {
	raw, _, _ := strings.Cut(line, ",")
	code := coupon.NormalizeCode(raw)
	return code, validCode(code)
}

func validCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// parseLine reads "code[,discount_type,value[,min_order_value]]". Missing
// fields come from the campaign defaults.
func (in *ingester) parseLine(line string) (coupon.Coupon, error) {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	code, ok := lineCode(fields[0])
	if !ok {
		return coupon.Coupon{}, errors.Errorf("invalid code %q", fields[0])
	}

	d := in.defaults
	c := coupon.Coupon{
		Code:              code,
		Description:       d.Description,
		DiscountType:      d.DiscountType,
		Value:             d.Value,
		MaxDiscount:       d.MaxDiscount,
		MinOrderValue:     d.MinOrderValue,
		ValidFrom:         d.ValidFrom,
		ValidUntil:        d.ValidUntil,
		UsageLimitTotal:   d.UsageLimitTotal,
		UsageLimitPerUser: d.UsageLimitPerUser,
		Active:            true,
	}
	switch len(fields) {
	case 1:
	case 3, 4:
		c.DiscountType = coupon.DiscountType(strings.ToLower(fields[1]))
		v, err := decimal.NewFromString(fields[2])
		if err != nil {
			return c, errors.Wrapf(err, "value of %s", code)
		}
		c.Value = v
		if len(fields) == 4 {
			if c.MinOrderValue, err = decimal.NewFromString(fields[3]); err != nil {
				return c, errors.Wrapf(err, "min order value of %s", code)
			}
		}
	default:
		return c, errors.Errorf("%s: expected 1, 3 or 4 fields, got %d", code, len(fields))
	}

	if !c.DiscountType.Valid() {
		return c, errors.Errorf("%s: unknown discount type %q", code, c.DiscountType)
	}
	if !c.Value.IsPositive() {
		return c, errors.Errorf("%s: value must be positive", code)
	}
	if c.DiscountType == coupon.DiscountPercentage && c.Value.GreaterThan(decimal.NewFromInt(100)) {
		return c, errors.Errorf("%s: percentage above 100", code)
	}
	return c, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
