package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/coupon"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func testIngester(t *testing.T) *ingester {
	t.Helper()
	defaults, err := campaignDefaults("percentage", "10", "0", 1, "", "", "test")
	require.NoError(t, err)
	return &ingester{lg: zap.NewNop(), defaults: defaults, bloomCapacity: 1000, bloomFPR: 0.001}
}

func TestIngest_SkipsCodesInSeveralFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz", "# spring", "ALPHA1", "shared-1", "bravo2,fixed,15", "BAD!"),
		writeGz(t, dir, "b.gz", "SHARED-1", "CHARLIE3,percentage,20,100", "", "delta4,bogus,5"),
		writeGz(t, dir, "c.gz", "ECHO5", "ECHO5"),
	}

	res, err := testIngester(t).run(context.Background(), files)
	require.NoError(t, err)

	codes := make([]string, len(res.Coupons))
	for i, c := range res.Coupons {
		codes[i] = c.Code
	}
	assert.Equal(t, []string{"ALPHA1", "BRAVO2", "CHARLIE3", "ECHO5"}, codes)
	assert.Equal(t, []string{"SHARED-1"}, res.Conflicts)
	assert.Equal(t, 2, res.Invalid)

	bravo := res.Coupons[1]
	assert.Equal(t, coupon.DiscountFixed, bravo.DiscountType)
	assert.True(t, decimal.NewFromInt(15).Equal(bravo.Value))
	assert.Equal(t, 1, bravo.UsageLimitPerUser)
	assert.True(t, bravo.Active)

	charlie := res.Coupons[2]
	assert.True(t, decimal.NewFromInt(100).Equal(charlie.MinOrderValue))
}

func TestParseLine(t *testing.T) {
	in := testIngester(t)

	tests := []struct {
		line    string
		wantErr bool
	}{
		{line: "GIFT2026"},
		{line: " gift2026 , fixed , 5 "},
		{line: "GIFT2026,percentage,100"},
		{line: "GIFT2026,percentage,101", wantErr: true},
		{line: "GIFT2026,fixed,0", wantErr: true},
		{line: "GIFT2026,fixed", wantErr: true},
		{line: "GIFT2026,fixed,abc", wantErr: true},
		{line: "ABC", wantErr: true},
		{line: "HAS SPACE", wantErr: true},
		{line: strings.Repeat("A", maxCodeLen+1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			c, err := in.parseLine(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "GIFT2026", c.Code)
		})
	}
}

func TestCampaignDefaults(t *testing.T) {
	c, err := campaignDefaults("fixed", "25", "200", 0, "2026-11-01T00:00:00Z", "2026-12-31T23:59:59Z", "Holiday")
	require.NoError(t, err)
	require.NotNil(t, c.ValidFrom)
	require.NotNil(t, c.ValidUntil)
	assert.True(t, c.ValidFrom.Before(*c.ValidUntil))

	_, err = campaignDefaults("bogo", "1", "0", 0, "", "", "")
	require.Error(t, err)
	_, err = campaignDefaults("fixed", "1", "0", 0, "tomorrow", "", "")
	require.Error(t, err)
	_, err = campaignDefaults("fixed", "1", "0", -1, "", "", "")
	require.Error(t, err)
}
