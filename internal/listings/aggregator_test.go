package listings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brydisanto/smash-the-wall/internal/opensea"
	"github.com/brydisanto/smash-the-wall/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rawListing(tokenID, maker, currency, wei string) opensea.RawListing {
	var r opensea.RawListing
	r.Price.Current.Currency = currency
	r.Price.Current.Decimals = 18
	r.Price.Current.Value = wei
	r.ProtocolData.Parameters.Offerer = maker
	if tokenID != "" {
		r.ProtocolData.Parameters.Offer = []struct {
			IdentifierOrCriteria string `json:"identifierOrCriteria"`
		}{{IdentifierOrCriteria: tokenID}}
	}
	return r
}

// fakePages serves canned pages and can inject one error per call index.
type fakePages struct {
	pages [][]opensea.RawListing
	errAt map[int]error // call index -> error for that call
	calls int
}

func (f *fakePages) ListingsPage(_ context.Context, cursor string) ([]opensea.RawListing, string, error) {
	idx := f.calls
	f.calls++
	if err, ok := f.errAt[idx]; ok {
		return nil, "", err
	}
	page := 0
	if cursor != "" {
		page = int(cursor[0] - '0')
	}
	if page >= len(f.pages) {
		return nil, "", nil
	}
	next := ""
	if page+1 < len(f.pages) {
		next = string(rune('0' + page + 1))
	}
	return f.pages[page], next, nil
}

func testOpts() Options {
	return Options{MaxPages: 10, RetryWait: time.Millisecond, PriceCeilingEth: 1.0}
}

func TestAggregateDedupeKeepsLowestPrice(t *testing.T) {
	src := &fakePages{pages: [][]opensea.RawListing{
		{
			rawListing("7", "0xAA", "ETH", "500000000000000000"), // 0.5
			rawListing("8", "0xAA", "ETH", "300000000000000000"), // 0.3
		},
		{
			rawListing("7", "0xBB", "WETH", "400000000000000000"), // 0.4, lower: replaces
			rawListing("8", "0xBB", "ETH", "900000000000000000"),  // 0.9, higher: ignored
		},
	}}

	res := Aggregate(context.Background(), src, testOpts(), zap.NewNop())

	require.Equal(t, 2, res.Count)
	assert.Equal(t, "8", res.Listings[0].TokenID) // 0.3 first, sorted ascending
	assert.InDelta(t, 0.3, res.Listings[0].PriceEth, 1e-12)
	assert.Equal(t, "0xaa", res.Listings[0].Maker)
	assert.InDelta(t, 0.4, res.Listings[1].PriceEth, 1e-12)
	assert.Equal(t, "0xbb", res.Listings[1].Maker)
	assert.InDelta(t, 0.3, res.FloorPrice, 1e-12)
}

func TestReduceEqualPriceReplaces(t *testing.T) {
	byToken := map[string]types.Listing{}
	Reduce(byToken, []opensea.RawListing{rawListing("1", "0xAA", "ETH", "100")}, 1.0, "")
	Reduce(byToken, []opensea.RawListing{rawListing("1", "0xBB", "ETH", "100")}, 1.0, "")
	assert.Equal(t, "0xbb", byToken["1"].Maker)
}

func TestReduceFilters(t *testing.T) {
	byToken := map[string]types.Listing{}
	Reduce(byToken, []opensea.RawListing{
		rawListing("1", "0xAA", "USDC", "1000000"),                // wrong currency
		rawListing("2", "0xAA", "ETH", "2000000000000000000"),     // 2.0, over ceiling
		rawListing("", "0xAA", "ETH", "100"),                      // no token id
		rawListing("3", "0xAA", "ETH", "not-a-number"),            // bad value
		rawListing("4", "0xAA", "weth", "500000000000000000"),     // kept, currency case-insensitive
		rawListing("5", "0xOTHER", "ETH", "500000000000000000"),   // dropped by maker filter
		rawListing("6", "0xAa", "ETH", "700000000000000000"),      // kept, maker case-insensitive
	}, 1.0, "0xaa")

	require.Len(t, byToken, 2)
	assert.Contains(t, byToken, "4")
	assert.Contains(t, byToken, "6")
	assert.Equal(t, types.CurrencyWETH, byToken["4"].Currency)
}

func TestAggregateRetriesRateLimitOnce(t *testing.T) {
	src := &fakePages{
		pages: [][]opensea.RawListing{{rawListing("1", "0xAA", "ETH", "100000000000000000")}},
		errAt: map[int]error{0: &opensea.HTTPError{Status: 429, RateLimited: true}},
	}

	res := Aggregate(context.Background(), src, testOpts(), zap.NewNop())

	assert.Equal(t, 2, src.calls) // failed call + the one retry
	assert.Equal(t, 1, res.Count)
}

func TestAggregateRateLimitTwiceGivesPartial(t *testing.T) {
	limited := &opensea.HTTPError{Status: 429, RateLimited: true}
	src := &fakePages{
		pages: [][]opensea.RawListing{
			{rawListing("1", "0xAA", "ETH", "100000000000000000")},
			{rawListing("2", "0xAA", "ETH", "200000000000000000")},
		},
		errAt: map[int]error{1: limited, 2: limited},
	}

	res := Aggregate(context.Background(), src, testOpts(), zap.NewNop())

	// page 0 succeeded, page 1 rate-limited on both attempts
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "1", res.Listings[0].TokenID)
}

func TestAggregatePartialOnPlainError(t *testing.T) {
	src := &fakePages{
		pages: [][]opensea.RawListing{
			{rawListing("1", "0xAA", "ETH", "100000000000000000")},
			{rawListing("2", "0xAA", "ETH", "200000000000000000")},
		},
		errAt: map[int]error{1: errors.New("boom")},
	}

	res := Aggregate(context.Background(), src, testOpts(), zap.NewNop())

	assert.Equal(t, 2, src.calls) // no retry for a non-rate-limit error
	assert.Equal(t, 1, res.Count)
}

func TestAggregatePageCeiling(t *testing.T) {
	src := &fakePages{pages: [][]opensea.RawListing{
		{rawListing("1", "0xAA", "ETH", "100000000000000000")},
		{rawListing("2", "0xAA", "ETH", "200000000000000000")},
		{rawListing("3", "0xAA", "ETH", "300000000000000000")},
	}}
	opts := testOpts()
	opts.MaxPages = 2

	res := Aggregate(context.Background(), src, opts, zap.NewNop())

	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 2, res.Count)
}

func TestFloorIgnoresZeroPrice(t *testing.T) {
	src := &fakePages{pages: [][]opensea.RawListing{{
		rawListing("1", "0xAA", "ETH", "0"),
		rawListing("2", "0xAA", "ETH", "250000000000000000"),
	}}}

	res := Aggregate(context.Background(), src, testOpts(), zap.NewNop())

	assert.Equal(t, 2, res.Count)
	assert.InDelta(t, 0.25, res.FloorPrice, 1e-12)
}

func TestFloorZeroWhenEmpty(t *testing.T) {
	res := Aggregate(context.Background(), &fakePages{}, testOpts(), zap.NewNop())
	assert.Zero(t, res.Count)
	assert.Zero(t, res.FloorPrice)
}

type fakeMeta struct {
	names  map[string]string
	images map[string]string
	err    error
}

func (f *fakeMeta) NFT(_ context.Context, tokenID string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return f.names[tokenID], f.images[tokenID], nil
}

func TestEnrichMetadataKeepsDefaultsOnFailure(t *testing.T) {
	ls := []types.Listing{{TokenID: "1"}, {TokenID: "2"}}
	Decorate(ls, "0xcontract", "good-vibes-club")
	require.Equal(t, "Citizen of Vibetown #1", ls[0].Name)

	src := &fakeMeta{
		names:  map[string]string{"1": "Vibe One"},
		images: map[string]string{"1": "https://img/1"},
		err:    nil,
	}
	EnrichMetadata(context.Background(), src, ls, 5, 0)

	assert.Equal(t, "Vibe One", ls[0].Name)
	assert.Equal(t, "https://img/1", ls[0].ImageURL)
	// token 2 had no metadata, decorated defaults survive
	assert.Equal(t, "Citizen of Vibetown #2", ls[1].Name)
	assert.Contains(t, ls[1].ItemURL, "/0xcontract/2")
}

func TestEnrichMetadataAllFailed(t *testing.T) {
	ls := []types.Listing{{TokenID: "9"}}
	Decorate(ls, "0xc", "gvc")
	EnrichMetadata(context.Background(), &fakeMeta{err: errors.New("down")}, ls, 5, 0)
	assert.Equal(t, "Citizen of Vibetown #9", ls[0].Name)
}
