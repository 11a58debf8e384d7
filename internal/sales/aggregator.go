package sales

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/brydisanto/smash-the-wall/internal/opensea"
	"github.com/brydisanto/smash-the-wall/internal/types"
	"go.uber.org/zap"
)

// EventSource is the paged fetch capability for account sale events.
type EventSource interface {
	EventsPage(ctx context.Context, cursor string, after int64) ([]opensea.RawEvent, string, error)
}

type Options struct {
	Seller    string // tracked wallet; events with another seller are dropped
	After     int64  // unix seconds lower bound, 0 = unbounded
	MaxPages  int
	PageDelay time.Duration
	RetryWait time.Duration
}

// Aggregate paginates the events feed with the same discipline as the
// listing aggregator: sequential pages, one 2s retry on a rate limit,
// partial results on any other failure. The account feed also returns
// events where the wallet was the buyer, so every event is re-checked
// against the tracked seller before it is kept.
func Aggregate(ctx context.Context, src EventSource, opts Options, log *zap.Logger) []types.SaleEvent {
	if opts.RetryWait == 0 {
		opts.RetryWait = 2 * time.Second
	}

	var out []types.SaleEvent
	cursor := ""

	for page := 0; page < opts.MaxPages; page++ {
		events, next, err := src.EventsPage(ctx, cursor, opts.After)
		if err != nil {
			var he *opensea.HTTPError
			if errors.As(err, &he) && he.RateLimited {
				log.Warn("sales: rate limited, retrying page once", zap.Int("page", page))
				if !sleep(ctx, opts.RetryWait) {
					break
				}
				events, next, err = src.EventsPage(ctx, cursor, opts.After)
			}
			if err != nil {
				log.Warn("sales: page fetch failed, returning partial results",
					zap.Int("page", page), zap.Error(err))
				break
			}
		}

		out = append(out, Filter(events, opts.Seller)...)

		if next == "" {
			break
		}
		cursor = next

		if opts.PageDelay > 0 && !sleep(ctx, opts.PageDelay) {
			break
		}
	}
	return out
}

// Filter keeps sale events whose seller matches the tracked wallet
// (case-insensitive) and normalizes them into canonical records. Events
// without a buyer or payment are skipped, never propagated as errors.
func Filter(events []opensea.RawEvent, seller string) []types.SaleEvent {
	out := make([]types.SaleEvent, 0, len(events))
	for _, ev := range events {
		if !strings.EqualFold(ev.Seller, seller) {
			continue
		}
		buyer := strings.ToLower(ev.Buyer)
		if buyer == "" {
			continue
		}
		wei, ok := new(big.Int).SetString(ev.Payment.Quantity, 10)
		if !ok {
			wei = big.NewInt(0)
		}
		ts := ev.EventTimestamp * 1000
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		image := ev.NFT.ImageURL
		if image == "" {
			image = ev.NFT.DisplayImageURL
		}
		out = append(out, types.SaleEvent{
			Seller:      strings.ToLower(ev.Seller),
			Buyer:       buyer,
			TokenID:     ev.NFT.Identifier,
			PriceWei:    wei,
			PriceEth:    types.WeiToEth(wei),
			TimestampMs: ts,
			ImageURL:    image,
		})
	}
	return out
}

// Changes24h is the trailing-window fold: sale count, total ETH, and the
// linear burn estimate for that ETH at the given prices.
type Changes24h struct {
	Sold         int     `json:"gvcsSold24h"`
	EthSpent     float64 `json:"ethSpent24h"`
	TokensBurned float64 `json:"vibestrBurned24h"`
}

func FoldChanges(events []types.SaleEvent, ethUSD, tokenUSD float64) Changes24h {
	var c Changes24h
	for _, ev := range events {
		c.Sold++
		c.EthSpent += ev.PriceEth
	}
	if tokenUSD > 0 {
		c.TokensBurned = c.EthSpent * ethUSD / tokenUSD
	}
	return c
}

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
