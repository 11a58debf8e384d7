package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brydisanto/smash-the-wall/internal/config"
	"github.com/brydisanto/smash-the-wall/internal/opensea"
	"github.com/brydisanto/smash-the-wall/internal/sim"
	"github.com/brydisanto/smash-the-wall/internal/types"
	"github.com/brydisanto/smash-the-wall/internal/usernames"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeMarket serves one canned page per feed; enough for handler-level
// contract tests, the pagination corners live in the aggregator tests.
type fakeMarket struct {
	listings []opensea.RawListing
	events   []opensea.RawEvent
	names    map[string]string
}

func (f *fakeMarket) ListingsPage(_ context.Context, _ string) ([]opensea.RawListing, string, error) {
	return f.listings, "", nil
}

func (f *fakeMarket) EventsPage(_ context.Context, _ string, _ int64) ([]opensea.RawEvent, string, error) {
	return f.events, "", nil
}

func (f *fakeMarket) NFT(_ context.Context, tokenID string) (string, string, error) {
	return "", "", errors.New("metadata down")
}

func (f *fakeMarket) Account(_ context.Context, addr string) (string, error) {
	return f.names[addr], nil
}

type fakeChain struct {
	snap types.ChainSnapshot
	err  error
}

func (f *fakeChain) Snapshot(_ context.Context) (types.ChainSnapshot, error) { return f.snap, f.err }

type fakeOracle struct{ reading types.PriceReading }

func (f *fakeOracle) Read(_ context.Context) types.PriceReading { return f.reading }

const testSeller = "0xd0cc2b0efb168bfe1f94a948d8df70fa10257196"

func listingRaw(tokenID, maker, wei string) opensea.RawListing {
	var l opensea.RawListing
	l.Price.Current.Currency = "ETH"
	l.Price.Current.Value = wei
	l.ProtocolData.Parameters.Offerer = maker
	l.ProtocolData.Parameters.Offer = []struct {
		IdentifierOrCriteria string `json:"identifierOrCriteria"`
	}{{IdentifierOrCriteria: tokenID}}
	return l
}

func saleRaw(buyer, tokenID, wei string) opensea.RawEvent {
	var ev opensea.RawEvent
	ev.EventType = "sale"
	ev.Seller = testSeller
	ev.Buyer = buyer
	ev.Payment.Quantity = wei
	ev.NFT.Identifier = tokenID
	ev.EventTimestamp = 1700000000
	return ev
}

func newTestServer(market Marketplace, ch ChainSource, oracle PriceSource) *Server {
	cfg := config.Default()
	cfg.OpenSea.ListingsPageDelayMs = 1
	cfg.OpenSea.HoldingsPageDelayMs = 1
	cfg.OpenSea.NFTsPageDelayMs = 1
	cfg.OpenSea.EventsPageDelayMs = 1
	cfg.Leaderboard.BatchPauseMs = 1
	return NewServer(cfg, zap.NewNop(), market, ch, oracle, usernames.NewMemoryCache(100))
}

func doGet(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHandleBurn(t *testing.T) {
	s := newTestServer(&fakeMarket{},
		&fakeChain{snap: types.ChainSnapshot{Burned: 50, TotalSupply: 1000, Decimals: 18}},
		&fakeOracle{})

	rec, _ := doGet(t, s, "/api/burn")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp burnResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 50, resp.Burned, 1e-9)
	assert.InDelta(t, 5.0, resp.BurnPercentage, 1e-9)
	assert.Empty(t, resp.Error)
}

func TestHandleBurnChainDown(t *testing.T) {
	s := newTestServer(&fakeMarket{}, &fakeChain{err: errors.New("rpc down")}, &fakeOracle{})

	rec, _ := doGet(t, s, "/api/burn")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp burnResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestHandlePricesAllFeedsDown(t *testing.T) {
	s := newTestServer(&fakeMarket{}, &fakeChain{}, &fakeOracle{})

	rec, body := doGet(t, s, "/api/prices")

	// partial-data contract: degraded payload still ships with 200
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "ethUsd")
	assert.Contains(t, body, "vibestrUsd")
	assert.Contains(t, body, "pnkstrUsd")
	assert.Contains(t, body, "error")
}

func TestHandlePrices(t *testing.T) {
	s := newTestServer(&fakeMarket{}, &fakeChain{},
		&fakeOracle{reading: types.PriceReading{EthUSD: 3300, TokenUSD: 0.0106, PairUSD: 0.03}})

	rec, _ := doGet(t, s, "/api/prices")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp pricesResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 3300, resp.EthUsd, 1e-9)
	assert.InDelta(t, 0.0106, resp.VibestrUsd, 1e-9)
	assert.Empty(t, resp.Error)
}

func TestHandleCollection(t *testing.T) {
	s := newTestServer(&fakeMarket{listings: []opensea.RawListing{
		listingRaw("1", "0xAA", "500000000000000000"),
		listingRaw("2", "0xBB", "300000000000000000"),
		listingRaw("3", "0xCC", "2000000000000000000"), // above 1 ETH ceiling
	}}, &fakeChain{}, &fakeOracle{})

	rec, _ := doGet(t, s, "/api/collection")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp collectionResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalListings)
	assert.InDelta(t, 0.3, resp.FloorPrice, 1e-12)
}

func TestHandleHoldingsLadder(t *testing.T) {
	s := newTestServer(&fakeMarket{listings: []opensea.RawListing{
		listingRaw("1", testSeller, "500000000000000000"),
		listingRaw("2", "0xoutsider", "100000000000000000"), // not the tracked wallet
		listingRaw("3", testSeller, "300000000000000000"),
	}}, &fakeChain{}, &fakeOracle{})

	rec, _ := doGet(t, s, "/api/holdings")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp holdingsResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Listings, 2)
	assert.InDelta(t, 0.3, resp.Listings[0], 1e-12) // ascending ladder
	assert.InDelta(t, 0.5, resp.Listings[1], 1e-12)
}

func TestHandleNFTsDecoratedDespiteMetadataFailure(t *testing.T) {
	s := newTestServer(&fakeMarket{listings: []opensea.RawListing{
		listingRaw("7", testSeller, "500000000000000000"),
	}}, &fakeChain{}, &fakeOracle{})

	rec, _ := doGet(t, s, "/api/nfts")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp nftsResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Citizen of Vibetown #7", resp.NFTs[0].Name)
	assert.NotEmpty(t, resp.NFTs[0].ItemURL)
}

func TestHandleBuyersRanking(t *testing.T) {
	s := newTestServer(&fakeMarket{
		events: []opensea.RawEvent{
			saleRaw("0xaaa0000000000001", "1", "100000000000000000"),
			saleRaw("0xbbb0000000000002", "2", "200000000000000000"),
			saleRaw("0xbbb0000000000002", "3", "200000000000000000"),
		},
		names: map[string]string{"0xbbb0000000000002": "whale"},
	}, &fakeChain{}, &fakeOracle{reading: types.PriceReading{EthUSD: 3300, TokenUSD: 0.0106}})

	rec, _ := doGet(t, s, "/api/buyers")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp buyersResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.TotalSales)
	require.Len(t, resp.Buyers, 2)
	assert.Equal(t, "0xbbb0000000000002", resp.Buyers[0].Address)
	assert.Equal(t, "whale", resp.Buyers[0].Display)
	assert.Equal(t, 2, resp.Buyers[0].PurchaseCount)
	assert.Greater(t, resp.Buyers[0].TokensBurned, 0.0)
}

func TestHandleChanges(t *testing.T) {
	s := newTestServer(&fakeMarket{events: []opensea.RawEvent{
		saleRaw("0xaaa0000000000001", "1", "500000000000000000"),
		saleRaw("0xaaa0000000000001", "2", "250000000000000000"),
	}}, &fakeChain{}, &fakeOracle{reading: types.PriceReading{EthUSD: 3300, TokenUSD: 0.0106}})

	rec, body := doGet(t, s, "/api/changes")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "gvcsSold24h")
	assert.Contains(t, body, "ethSpent24h")
	assert.Contains(t, body, "vibestrBurned24h")
}

func TestHandleSimulation(t *testing.T) {
	s := newTestServer(&fakeMarket{},
		&fakeChain{snap: types.ChainSnapshot{Burned: 50_000_000, TotalSupply: 1_000_000_000, Decimals: 18}},
		&fakeOracle{reading: types.PriceReading{EthUSD: 3300, TokenUSD: 0.0106}})

	rec, _ := doGet(t, s, "/api/simulation?totalEth=10")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sim.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 10, resp.Input.EthSwept, 1e-9)
	assert.InDelta(t, 3_113_207.547, resp.Projected.TokensBurned, 0.01)
	assert.Greater(t, resp.Projected.PriceUsd, resp.Current.PriceUsd)
}

func TestHandleSimulationChainDown(t *testing.T) {
	s := newTestServer(&fakeMarket{}, &fakeChain{err: errors.New("rpc down")}, &fakeOracle{})

	rec, body := doGet(t, s, "/api/simulation?totalEth=10")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body, "error")
}

func TestHandleSimulationUsesFallbackPrices(t *testing.T) {
	// oracle fully down: config fallbacks keep the figures non-zero
	s := newTestServer(&fakeMarket{},
		&fakeChain{snap: types.ChainSnapshot{Burned: 1, TotalSupply: 1_000_000_000, Decimals: 18}},
		&fakeOracle{})

	rec, _ := doGet(t, s, "/api/simulation?totalEth=5")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sim.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 5*3300, resp.Input.UsdFromSale, 1e-6)
	assert.Greater(t, resp.Projected.TokensBurned, 0.0)
}

func TestCORSAndRouting(t *testing.T) {
	s := newTestServer(&fakeMarket{}, &fakeChain{}, &fakeOracle{})
	h := s.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/prices", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSales(t *testing.T) {
	s := newTestServer(&fakeMarket{events: []opensea.RawEvent{
		saleRaw("0xaaa0000000000001", "9", "100000000000000000"),
	}}, &fakeChain{}, &fakeOracle{})

	rec, _ := doGet(t, s, "/api/sales")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp salesResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sales, 1)
	assert.Equal(t, "9", resp.Sales[0].TokenID)
	assert.InDelta(t, 0.1, resp.Sales[0].PriceEth, 1e-12)
	assert.NotEmpty(t, resp.Sales[0].BuyerName)
}
