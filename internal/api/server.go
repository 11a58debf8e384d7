package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brydisanto/smash-the-wall/internal/chain"
	"github.com/brydisanto/smash-the-wall/internal/config"
	"github.com/brydisanto/smash-the-wall/internal/leaderboard"
	"github.com/brydisanto/smash-the-wall/internal/listings"
	"github.com/brydisanto/smash-the-wall/internal/metrics"
	"github.com/brydisanto/smash-the-wall/internal/sales"
	"github.com/brydisanto/smash-the-wall/internal/sim"
	"github.com/brydisanto/smash-the-wall/internal/types"
	"github.com/brydisanto/smash-the-wall/internal/usernames"
	"go.uber.org/zap"
)

// Marketplace groups the fetch capabilities the handlers paginate over.
// *opensea.Client satisfies it; tests plug canned sources.
type Marketplace interface {
	listings.PageSource
	sales.EventSource
	listings.MetadataSource
	usernames.AccountSource
}

type ChainSource interface {
	Snapshot(ctx context.Context) (types.ChainSnapshot, error)
}

type PriceSource interface {
	Read(ctx context.Context) types.PriceReading
}

type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	market   Marketplace
	chain    ChainSource
	oracle   PriceSource
	resolver *usernames.Resolver
}

func NewServer(cfg *config.Config, log *zap.Logger, market Marketplace, chain ChainSource, oracle PriceSource, cache usernames.Cache) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		market:   market,
		chain:    chain,
		oracle:   oracle,
		resolver: usernames.NewResolver(market, cache, log),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/burn", s.instrument("burn", s.handleBurn))
	mux.HandleFunc("/api/prices", s.instrument("prices", s.handlePrices))
	mux.HandleFunc("/api/collection", s.instrument("collection", s.handleCollection))
	mux.HandleFunc("/api/holdings", s.instrument("holdings", s.handleHoldings))
	mux.HandleFunc("/api/nfts", s.instrument("nfts", s.handleNFTs))
	mux.HandleFunc("/api/sales", s.instrument("sales", s.handleSales))
	mux.HandleFunc("/api/buyers", s.instrument("buyers", s.handleBuyers))
	mux.HandleFunc("/api/changes", s.instrument("changes", s.handleChanges))
	mux.HandleFunc("/api/simulation", s.instrument("simulation", s.handleSimulation))
	return withCORS(mux)
}

// Start runs the API server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:              s.cfg.API.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() { <-ctx.Done(); _ = srv.Close() }()

	s.log.Info("api: listening", zap.String("addr", s.cfg.API.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error("api: server error", zap.Error(err))
	}
}

// ---------- handlers ----------

type burnResp struct {
	Burned         float64 `json:"burned"`
	TotalSupply    float64 `json:"totalSupply"`
	BurnPercentage float64 `json:"burnPercentage"`
	Decimals       uint8   `json:"decimals"`
	Error          string  `json:"error,omitempty"`
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	snap, err := s.chain.Snapshot(r.Context())
	if err != nil {
		s.log.Error("api: burn snapshot failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, burnResp{Error: "failed to fetch burn data"})
		return
	}
	writeJSON(w, http.StatusOK, burnResp{
		Burned:         snap.Burned,
		TotalSupply:    snap.TotalSupply,
		BurnPercentage: snap.BurnPercentage(),
		Decimals:       snap.Decimals,
	})
}

type pricesResp struct {
	EthUsd     float64 `json:"ethUsd"`
	VibestrUsd float64 `json:"vibestrUsd"`
	PnkstrUsd  float64 `json:"pnkstrUsd"`
	Error      string  `json:"error,omitempty"`
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	reading := s.oracle.Read(r.Context())
	resp := pricesResp{EthUsd: reading.EthUSD, VibestrUsd: reading.TokenUSD, PnkstrUsd: reading.PairUSD}
	if reading.EthUSD == 0 && reading.TokenUSD == 0 && reading.PairUSD == 0 {
		resp.Error = "all price feeds failed"
	}
	writeJSON(w, http.StatusOK, resp)
}

type collectionResp struct {
	TotalListings int     `json:"totalListings"`
	FloorPrice    float64 `json:"floorPrice"`
	Error         string  `json:"error,omitempty"`
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	res := listings.Aggregate(r.Context(), s.market, listings.Options{
		MaxPages:        s.cfg.OpenSea.ListingsMaxPages,
		PageDelay:       s.cfg.ListingsPageDelay(),
		PriceCeilingEth: s.cfg.Sweep.PriceCeilingEth,
	}, s.log)
	writeJSON(w, http.StatusOK, collectionResp{
		TotalListings: res.Count,
		FloorPrice:    res.FloorPrice,
	})
}

type holdingsResp struct {
	Count      int       `json:"count"`
	Listings   []float64 `json:"listings"`
	FloorPrice float64   `json:"floorPrice"`
	Error      string    `json:"error,omitempty"`
}

// handleHoldings reports the tracked wallet's own listings as an ascending
// price ladder; the sweep calculator consumes it directly.
func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	res := listings.Aggregate(r.Context(), s.market, listings.Options{
		MaxPages:        s.cfg.OpenSea.HoldingsMaxPages,
		PageDelay:       s.cfg.HoldingsPageDelay(),
		PriceCeilingEth: s.cfg.Sweep.PriceCeilingEth,
		MakerFilter:     s.cfg.OpenSea.SellerWallet,
	}, s.log)

	prices := make([]float64, 0, len(res.Listings))
	for _, l := range res.Listings {
		prices = append(prices, l.PriceEth)
	}
	writeJSON(w, http.StatusOK, holdingsResp{
		Count:      res.Count,
		Listings:   prices,
		FloorPrice: res.FloorPrice,
	})
}

type nftsResp struct {
	NFTs  []types.Listing `json:"nfts"`
	Count int             `json:"count"`
	Error string          `json:"error,omitempty"`
}

func (s *Server) handleNFTs(w http.ResponseWriter, r *http.Request) {
	res := listings.Aggregate(r.Context(), s.market, listings.Options{
		MaxPages:        s.cfg.OpenSea.NFTsMaxPages,
		PageDelay:       s.cfg.NFTsPageDelay(),
		PriceCeilingEth: s.cfg.Sweep.PriceCeilingEth,
		MakerFilter:     s.cfg.OpenSea.SellerWallet,
	}, s.log)

	listings.Decorate(res.Listings, s.cfg.OpenSea.NFTContract, s.cfg.OpenSea.Collection)
	listings.EnrichMetadata(r.Context(), s.market, res.Listings,
		s.cfg.Leaderboard.ResolveBatch, s.cfg.NFTsPageDelay())

	writeJSON(w, http.StatusOK, nftsResp{NFTs: res.Listings, Count: res.Count})
}

type saleRow struct {
	Buyer     string  `json:"buyer"`
	BuyerName string  `json:"buyerName"`
	TokenID   string  `json:"tokenId"`
	PriceEth  float64 `json:"priceEth"`
	Timestamp int64   `json:"timestamp"`
	ImageURL  string  `json:"imageUrl,omitempty"`
}

type salesResp struct {
	Sales []saleRow `json:"sales"`
	Error string    `json:"error,omitempty"`
}

// handleSales returns the 10 most recent sales from a single page, shaped
// for display.
func (s *Server) handleSales(w http.ResponseWriter, r *http.Request) {
	events := sales.Aggregate(r.Context(), s.market, sales.Options{
		Seller:   s.cfg.OpenSea.SellerWallet,
		MaxPages: 1,
	}, s.log)
	if len(events) > 10 {
		events = events[:10]
	}

	rows := make([]saleRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, saleRow{
			Buyer:     chain.DisplayAddress(ev.Buyer),
			BuyerName: leaderboard.ShortAddress(ev.Buyer),
			TokenID:   ev.TokenID,
			PriceEth:  ev.PriceEth,
			Timestamp: ev.TimestampMs,
			ImageURL:  ev.ImageURL,
		})
	}
	writeJSON(w, http.StatusOK, salesResp{Sales: rows})
}

type buyersResp struct {
	Buyers     []types.BuyerAggregate `json:"buyers"`
	TotalSales int                    `json:"totalSales"`
	Error      string                 `json:"error,omitempty"`
}

func (s *Server) handleBuyers(w http.ResponseWriter, r *http.Request) {
	events := sales.Aggregate(r.Context(), s.market, sales.Options{
		Seller:    s.cfg.OpenSea.SellerWallet,
		MaxPages:  s.cfg.OpenSea.EventsMaxPages,
		PageDelay: s.cfg.EventsPageDelay(),
	}, s.log)

	buyers := leaderboard.Rank(events, s.cfg.Leaderboard.TopN)
	leaderboard.ResolveNames(r.Context(), s.resolver, buyers,
		s.cfg.Leaderboard.ResolveBatch, s.cfg.BatchPause())

	ethUSD, tokenUSD := s.pricesOrFallback(r.Context())
	leaderboard.EstimateBurn(buyers, ethUSD, tokenUSD)

	writeJSON(w, http.StatusOK, buyersResp{Buyers: buyers, TotalSales: len(events)})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	after := time.Now().Add(-24 * time.Hour).Unix()
	events := sales.Aggregate(r.Context(), s.market, sales.Options{
		Seller:    s.cfg.OpenSea.SellerWallet,
		After:     after,
		MaxPages:  s.cfg.OpenSea.EventsMaxPages,
		PageDelay: s.cfg.EventsPageDelay(),
	}, s.log)

	ethUSD, tokenUSD := s.pricesOrFallback(r.Context())
	writeJSON(w, http.StatusOK, sales.FoldChanges(events, ethUSD, tokenUSD))
}

type simulationResp struct {
	sim.Result
	Error string `json:"error,omitempty"`
}

func (s *Server) handleSimulation(w http.ResponseWriter, r *http.Request) {
	ethSwept, _ := strconv.ParseFloat(r.URL.Query().Get("totalEth"), 64)
	if ethSwept < 0 {
		ethSwept = 0
	}

	snap, err := s.chain.Snapshot(r.Context())
	if err != nil {
		s.log.Error("api: simulation snapshot failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, simulationResp{Error: "failed to calculate simulation"})
		return
	}

	ethUSD, tokenUSD := s.pricesOrFallback(r.Context())
	res := sim.Project(ethSwept, snap, sim.Params{
		EthUSD:           ethUSD,
		TokenUSD:         tokenUSD,
		MarketCapUSD:     s.cfg.Sweep.MarketCapUSD,
		PoolLiquidityUSD: s.cfg.Sweep.PoolLiquidityUSD,
		BuyPressureExp:   s.cfg.Sweep.BuyPressureExp,
	})
	writeJSON(w, http.StatusOK, simulationResp{Result: res})
}

// pricesOrFallback substitutes configured constants for any oracle field
// that failed; a stale-but-plausible price beats a zero that would turn
// every derived figure into zero.
func (s *Server) pricesOrFallback(ctx context.Context) (ethUSD, tokenUSD float64) {
	reading := s.oracle.Read(ctx)
	ethUSD = reading.EthUSD
	if ethUSD <= 0 {
		ethUSD = s.cfg.Sweep.EthUSDFallback
	}
	tokenUSD = reading.TokenUSD
	if tokenUSD <= 0 {
		tokenUSD = s.cfg.Sweep.TokenUSDFallback
	}
	return ethUSD, tokenUSD
}

// ---------- plumbing ----------

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		metrics.RequestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
