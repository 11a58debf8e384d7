package leaderboard

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brydisanto/smash-the-wall/internal/types"
	"github.com/brydisanto/smash-the-wall/internal/usernames"
)

// Rank folds sale events into per-buyer aggregates and returns the top N.
// Buyers are keyed by lowercased address; wei totals accumulate in big.Int
// so converting to ETH happens once, at the end, not per event. Order:
// purchase count descending, ties by total spend descending.
func Rank(sales []types.SaleEvent, topN int) []types.BuyerAggregate {
	byBuyer := make(map[string]*types.BuyerAggregate, 64)
	for _, ev := range sales {
		addr := strings.ToLower(ev.Buyer)
		if addr == "" {
			continue
		}
		agg := byBuyer[addr]
		if agg == nil {
			agg = &types.BuyerAggregate{Address: addr, TotalSpentWei: new(big.Int)}
			byBuyer[addr] = agg
		}
		agg.PurchaseCount++
		if ev.PriceWei != nil {
			agg.TotalSpentWei.Add(agg.TotalSpentWei, ev.PriceWei)
		}
	}

	out := make([]types.BuyerAggregate, 0, len(byBuyer))
	for _, agg := range byBuyer {
		agg.TotalSpentEth = types.WeiToEth(agg.TotalSpentWei)
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PurchaseCount != out[j].PurchaseCount {
			return out[i].PurchaseCount > out[j].PurchaseCount
		}
		if c := out[i].TotalSpentWei.Cmp(out[j].TotalSpentWei); c != 0 {
			return c > 0
		}
		return out[i].Address < out[j].Address
	})

	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// ResolveNames fills Username and Display for the retained buyers. The
// addresses are independent keys, so resolution runs in fixed-size
// parallel batches with a short pause between batches to bound the number
// of outstanding external calls.
func ResolveNames(ctx context.Context, r *usernames.Resolver, buyers []types.BuyerAggregate, batchSize int, pause time.Duration) {
	if batchSize <= 0 {
		batchSize = 5
	}
	for start := 0; start < len(buyers); start += batchSize {
		end := start + batchSize
		if end > len(buyers) {
			end = len(buyers)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				name := r.Resolve(ctx, buyers[i].Address)
				buyers[i].Username = name
				if name != "" {
					buyers[i].Display = name
				} else {
					buyers[i].Display = ShortAddress(buyers[i].Address)
				}
			}()
		}
		wg.Wait()
		if end < len(buyers) && pause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pause):
			}
		}
	}
}

// EstimateBurn attaches the linear burn estimate per buyer: the tokens
// their ETH would buy (and burn) at the given prices.
func EstimateBurn(buyers []types.BuyerAggregate, ethUSD, tokenUSD float64) {
	if tokenUSD <= 0 {
		return
	}
	for i := range buyers {
		buyers[i].TokensBurned = buyers[i].TotalSpentEth * ethUSD / tokenUSD
	}
}

// ShortAddress renders 0x1234…abcd for buyers without a username.
func ShortAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
