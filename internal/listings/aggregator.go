package listings

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brydisanto/smash-the-wall/internal/metrics"
	"github.com/brydisanto/smash-the-wall/internal/opensea"
	"github.com/brydisanto/smash-the-wall/internal/types"
	"go.uber.org/zap"
)

// PageSource is the fetch capability the aggregator paginates over. The
// production implementation is *opensea.Client; tests feed canned pages.
type PageSource interface {
	ListingsPage(ctx context.Context, cursor string) ([]opensea.RawListing, string, error)
}

type Options struct {
	MaxPages        int
	PageDelay       time.Duration
	RetryWait       time.Duration // backoff before the single 429 retry
	PriceCeilingEth float64
	MakerFilter     string // optional; matched case-insensitively
}

type Result struct {
	Listings   []types.Listing // sorted by price ascending
	Count      int
	FloorPrice float64 // lowest strictly-positive price, 0 when empty
}

// Aggregate pulls listing pages sequentially until the cursor runs out,
// the page ceiling is hit, or a fetch fails. A rate-limit response is
// retried exactly once after RetryWait; any other failure terminates the
// loop and whatever was collected so far is returned.
func Aggregate(ctx context.Context, src PageSource, opts Options, log *zap.Logger) Result {
	if opts.RetryWait == 0 {
		opts.RetryWait = 2 * time.Second
	}

	byToken := make(map[string]types.Listing, 256)
	cursor := ""

	for page := 0; page < opts.MaxPages; page++ {
		items, next, err := src.ListingsPage(ctx, cursor)
		if err != nil {
			var he *opensea.HTTPError
			if errors.As(err, &he) && he.RateLimited {
				log.Warn("listings: rate limited, retrying page once", zap.Int("page", page))
				if !sleep(ctx, opts.RetryWait) {
					break
				}
				items, next, err = src.ListingsPage(ctx, cursor)
			}
			if err != nil {
				log.Warn("listings: page fetch failed, returning partial results",
					zap.Int("page", page), zap.Error(err))
				break
			}
		}

		Reduce(byToken, items, opts.PriceCeilingEth, opts.MakerFilter)

		if next == "" {
			break
		}
		cursor = next

		if opts.PageDelay > 0 && !sleep(ctx, opts.PageDelay) {
			break
		}
	}

	res := collect(byToken)
	metrics.ActiveListings.Set(float64(res.Count))
	metrics.FloorPriceEth.Set(res.FloorPrice)
	return res
}

// Reduce folds one raw page into the dedup map: currency must be ETH or
// WETH, price must not exceed the ceiling, the maker must match the filter
// when one is set, and per token the lowest observed price wins (an
// equal-or-lower duplicate replaces the stored entry).
func Reduce(byToken map[string]types.Listing, items []opensea.RawListing, ceilingEth float64, makerFilter string) {
	for _, raw := range items {
		l, ok := normalize(raw)
		if !ok {
			continue
		}
		if l.PriceEth > ceilingEth {
			continue
		}
		if makerFilter != "" && !strings.EqualFold(l.Maker, makerFilter) {
			continue
		}
		if prev, exists := byToken[l.TokenID]; exists && prev.PriceEth < l.PriceEth {
			continue
		}
		byToken[l.TokenID] = l
	}
}

func normalize(raw opensea.RawListing) (types.Listing, bool) {
	tokenID := raw.TokenID()
	if tokenID == "" {
		return types.Listing{}, false
	}
	cur := types.Currency(strings.ToUpper(raw.Price.Current.Currency))
	if cur != types.CurrencyETH && cur != types.CurrencyWETH {
		return types.Listing{}, false
	}
	wei, ok := new(big.Int).SetString(raw.Price.Current.Value, 10)
	if !ok || wei.Sign() < 0 {
		return types.Listing{}, false
	}
	return types.Listing{
		TokenID:  tokenID,
		Maker:    strings.ToLower(raw.ProtocolData.Parameters.Offerer),
		PriceWei: wei,
		PriceEth: types.WeiToEth(wei),
		Currency: cur,
	}, true
}

func collect(byToken map[string]types.Listing) Result {
	out := make([]types.Listing, 0, len(byToken))
	floor := 0.0
	for _, l := range byToken {
		out = append(out, l)
		if l.PriceEth > 0 && (floor == 0 || l.PriceEth < floor) {
			floor = l.PriceEth
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceEth == out[j].PriceEth {
			return out[i].TokenID < out[j].TokenID
		}
		return out[i].PriceEth < out[j].PriceEth
	})
	return Result{Listings: out, Count: len(out), FloorPrice: floor}
}

// sleep waits d or until ctx is done; reports whether the full delay passed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// MetadataSource fetches display metadata for one token.
type MetadataSource interface {
	NFT(ctx context.Context, tokenID string) (name, image string, err error)
}

// Decorate fills display defaults so the response is usable even when
// metadata enrichment fails for a token.
func Decorate(ls []types.Listing, nftContract, collection string) {
	for i := range ls {
		ls[i].Name = "Citizen of Vibetown #" + ls[i].TokenID
		ls[i].ImageURL = "https://i.seadn.io/s/raw/files/" + collection + "/" + ls[i].TokenID + ".png"
		ls[i].ItemURL = "https://opensea.io/assets/ethereum/" + nftContract + "/" + ls[i].TokenID
	}
}

// EnrichMetadata overwrites names and images from the marketplace metadata
// endpoint. Tokens are independent keys, so lookups run in fixed-size
// parallel batches with a short pause in between; a failed lookup keeps
// the decorated defaults.
func EnrichMetadata(ctx context.Context, src MetadataSource, ls []types.Listing, batchSize int, pause time.Duration) {
	if batchSize <= 0 {
		batchSize = 5
	}
	for start := 0; start < len(ls); start += batchSize {
		end := start + batchSize
		if end > len(ls) {
			end = len(ls)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				name, image, err := src.NFT(ctx, ls[i].TokenID)
				if err != nil {
					return
				}
				if name != "" {
					ls[i].Name = name
				}
				if image != "" {
					ls[i].ImageURL = image
				}
			}()
		}
		wg.Wait()
		if end < len(ls) && !sleep(ctx, pause) {
			return
		}
	}
}
