package types

import (
	"math/big"
	"time"
)

type Currency string

const (
	CurrencyETH  Currency = "ETH"
	CurrencyWETH Currency = "WETH"
)

// Listing is one active sell order, normalized from a marketplace page.
// After aggregation there is exactly one Listing per TokenID.
type Listing struct {
	TokenID  string   `json:"tokenId"`
	Maker    string   `json:"maker"` // lowercased hex address
	PriceWei *big.Int `json:"-"`
	PriceEth float64  `json:"priceEth"`
	Currency Currency `json:"currency"`

	// Display fields, filled by metadata enrichment (optional).
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image,omitempty"`
	ItemURL  string `json:"url,omitempty"`
}

// SaleEvent is one completed sale where the tracked wallet was the seller.
type SaleEvent struct {
	Seller      string   `json:"seller"`
	Buyer       string   `json:"buyer"`
	TokenID     string   `json:"tokenId"`
	PriceWei    *big.Int `json:"-"`
	PriceEth    float64  `json:"priceEth"`
	TimestampMs int64    `json:"timestamp"`
	ImageURL    string   `json:"imageUrl,omitempty"`
}

// BuyerAggregate is the per-buyer fold of SaleEvents. TotalSpentWei stays
// a big.Int until display so large buyers cannot overflow a float sum.
type BuyerAggregate struct {
	Address       string   `json:"address"`
	Username      string   `json:"username,omitempty"`
	Display       string   `json:"display"`
	PurchaseCount int      `json:"purchaseCount"`
	TotalSpentWei *big.Int `json:"-"`
	TotalSpentEth float64  `json:"totalSpentEth"`
	TokensBurned  float64  `json:"tokensBurned"`
}

// ChainSnapshot is one atomic read of the token contract: either all three
// fields came from the same round of calls or the read failed as a whole.
type ChainSnapshot struct {
	Burned      float64
	TotalSupply float64
	Decimals    uint8
	Ts          time.Time
}

func (s ChainSnapshot) Circulating() float64 { return s.TotalSupply - s.Burned }

// BurnPercentage reports 0 for a zero total supply instead of dividing.
func (s ChainSnapshot) BurnPercentage() float64 {
	if s.TotalSupply <= 0 {
		return 0
	}
	return s.Burned / s.TotalSupply * 100
}

// WeiToEth converts a wei amount to decimal ETH without first squeezing
// the integer through a float64.
func WeiToEth(x *big.Int) float64 {
	if x == nil {
		return 0
	}
	f := new(big.Float).SetInt(x)
	f.Quo(f, big.NewFloat(1e18))
	val, _ := f.Float64()
	return val
}

// PriceReading is one oracle pass. A failed sub-fetch leaves its field at 0,
// it never fails the whole reading.
type PriceReading struct {
	EthUSD   float64 `json:"ethUsd"`
	TokenUSD float64 `json:"tokenUsd"`
	PairUSD  float64 `json:"pairUsd"` // secondary tracked token
	Ts       int64   `json:"-"`
}
