// Package sim projects the economic effect of a sweep: the ETH proceeds
// are assumed to buy the token on the open market and send it to the burn
// sink. Two models coexist on purpose. The linear buy/burn model prices
// the whole purchase at the current spot and is canonical for burned-token
// quantities. The constant-product path models a single pool with known
// reserves and is canonical for the sweep calculator's price projection.
// Project combines a conservative buy-pressure exponentiation with a
// supply-contraction factor because the proceeds actually flow through
// several venues whose reserves we do not know.
package sim

import (
	"math"
	"sort"

	"github.com/brydisanto/smash-the-wall/internal/types"
)

// PoolState is a constant-product pool: K() is invariant across trades.
type PoolState struct {
	EthReserve   float64
	TokenReserve float64
}

func (p PoolState) K() float64 { return p.EthReserve * p.TokenReserve }

// After returns the pool after ethIn ETH is traded in for tokens.
func (p PoolState) After(ethIn float64) PoolState {
	ethAfter := p.EthReserve + ethIn
	return PoolState{EthReserve: ethAfter, TokenReserve: p.K() / ethAfter}
}

// SpotPrice is the pool's marginal token price in ETH terms.
func (p PoolState) SpotPrice() float64 {
	if p.TokenReserve <= 0 {
		return 0
	}
	return p.EthReserve / p.TokenReserve
}

// PriceRatioAfter is post-trade spot over pre-trade spot; > 1 for any
// positive ethIn (buy pressure can only raise the price).
func (p PoolState) PriceRatioAfter(ethIn float64) float64 {
	old := p.SpotPrice()
	if old <= 0 {
		return 1
	}
	return p.After(ethIn).SpotPrice() / old
}

// LinearBurn is model path 1: tokens bought (and burned) when the whole
// purchase clears at the current spot price.
func LinearBurn(ethAmount, ethUSD, tokenUSD float64) float64 {
	if tokenUSD <= 0 {
		return 0
	}
	return ethAmount * ethUSD / tokenUSD
}

// Params are the market constants the projection needs beyond the chain
// snapshot. They come from config (with oracle readings substituted when
// available) so the projection stays a pure function of its arguments.
type Params struct {
	EthUSD           float64
	TokenUSD         float64
	MarketCapUSD     float64
	PoolLiquidityUSD float64
	BuyPressureExp   float64
}

// Figures is one side (current or projected) of a simulation result.
type Figures struct {
	Burned            float64 `json:"burned"`
	BurnPercentage    float64 `json:"burnPercentage"`
	CirculatingSupply float64 `json:"circulatingSupply"`
	PriceUsd          float64 `json:"priceUsd"`
	MarketCap         float64 `json:"marketCap"`
	TokensBurned      float64 `json:"tokensBurned,omitempty"`
}

type Inputs struct {
	EthSwept                  float64 `json:"totalListingEth"`
	EthPriceUsd               float64 `json:"ethPriceUsd"`
	UsdFromSale               float64 `json:"usdFromSales"`
	BuyPressureMultiplier     float64 `json:"buyPressureMultiplier"`
	SupplyReductionMultiplier float64 `json:"supplyReductionMultiplier"`
}

type Result struct {
	Current   Figures `json:"current"`
	Projected Figures `json:"projected"`
	Input     Inputs  `json:"input"`
}

// Project runs the combined model: linear burn for supply figures, then
// buy-pressure exponentiation times supply contraction for the price.
// ethSwept == 0 degenerates to multipliers of 1 and projected == current.
func Project(ethSwept float64, snap types.ChainSnapshot, p Params) Result {
	circulating := snap.Circulating()

	current := Figures{
		Burned:            snap.Burned,
		BurnPercentage:    snap.BurnPercentage(),
		CirculatingSupply: circulating,
		PriceUsd:          p.TokenUSD,
		MarketCap:         p.MarketCapUSD,
	}

	usdFromSale := ethSwept * p.EthUSD
	tokensBurned := LinearBurn(ethSwept, p.EthUSD, p.TokenUSD)

	projectedBurned := snap.Burned + tokensBurned
	projectedCirculating := snap.TotalSupply - projectedBurned

	projectedBurnPct := 0.0
	if snap.TotalSupply > 0 {
		projectedBurnPct = projectedBurned / snap.TotalSupply * 100
	}

	buyPressure := 1.0
	if p.PoolLiquidityUSD > 0 {
		buyPressure = math.Pow(1+usdFromSale/p.PoolLiquidityUSD, p.BuyPressureExp)
	}
	supplyReduction := 1.0
	if circulating > 0 && projectedCirculating > 0 {
		supplyReduction = circulating / projectedCirculating
	}

	projectedPrice := p.TokenUSD * buyPressure * supplyReduction

	return Result{
		Current: current,
		Projected: Figures{
			Burned:            projectedBurned,
			BurnPercentage:    projectedBurnPct,
			CirculatingSupply: projectedCirculating,
			PriceUsd:          projectedPrice,
			MarketCap:         projectedCirculating * projectedPrice,
			TokensBurned:      tokensBurned,
		},
		Input: Inputs{
			EthSwept:                  ethSwept,
			EthPriceUsd:               p.EthUSD,
			UsdFromSale:               usdFromSale,
			BuyPressureMultiplier:     buyPressure,
			SupplyReductionMultiplier: supplyReduction,
		},
	}
}

// SweepCost sums the n cheapest listing prices. Past the end of the book
// the last known price is assumed for the remainder. With no live
// listings at all, the dense-wall fallback prices item i at
// floor*(1+i*slope).
func SweepCost(listingPricesEth []float64, n int, denseFloor, slope float64) float64 {
	if n <= 0 {
		return 0
	}
	if len(listingPricesEth) == 0 {
		total := 0.0
		for i := 0; i < n; i++ {
			total += denseFloor * (1 + float64(i)*slope)
		}
		return total
	}

	sorted := make([]float64, len(listingPricesEth))
	copy(sorted, listingPricesEth)
	sort.Float64s(sorted)

	total := 0.0
	last := sorted[len(sorted)-1]
	for i := 0; i < n; i++ {
		if i < len(sorted) {
			total += sorted[i]
		} else {
			total += last
		}
	}
	return total
}

// SweepImpact runs the raw constant-product path against the known pool:
// no correction factors, just the reserve shift.
func SweepImpact(pool PoolState, ethIn, currentPriceUsd float64) (projectedPriceUsd, priceIncreasePct float64) {
	ratio := pool.PriceRatioAfter(ethIn)
	return currentPriceUsd * ratio, (ratio - 1) * 100
}
