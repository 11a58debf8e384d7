// sweepcalc answers one question from the terminal: what does buying the
// N cheapest wall listings cost, and what does the implied burn do to the
// token? It runs the same aggregation and projection code as the server
// but exits after a single pass.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brydisanto/smash-the-wall/internal/chain"
	"github.com/brydisanto/smash-the-wall/internal/config"
	"github.com/brydisanto/smash-the-wall/internal/listings"
	"github.com/brydisanto/smash-the-wall/internal/opensea"
	"github.com/brydisanto/smash-the-wall/internal/prices"
	"github.com/brydisanto/smash-the-wall/internal/sim"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	n := flag.Int("n", 10, "number of cheapest listings to sweep")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
		} else {
			logger.Fatal("failed to load config", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	market := opensea.NewClient(cfg, logger)
	res := listings.Aggregate(ctx, market, listings.Options{
		MaxPages:        cfg.OpenSea.HoldingsMaxPages,
		PageDelay:       cfg.HoldingsPageDelay(),
		PriceCeilingEth: cfg.Sweep.PriceCeilingEth,
		MakerFilter:     cfg.OpenSea.SellerWallet,
	}, logger)

	reading := prices.NewOracle(cfg, logger).Read(ctx)
	ethUSD := reading.EthUSD
	if ethUSD == 0 {
		ethUSD = cfg.Sweep.EthUSDFallback
	}
	tokenUSD := reading.TokenUSD
	if tokenUSD == 0 {
		tokenUSD = cfg.Sweep.TokenUSDFallback
	}

	reader, err := chain.NewReader(cfg)
	if err != nil {
		logger.Fatal("failed to initialize chain reader", zap.Error(err))
	}
	snap, err := reader.Snapshot(ctx)
	if err != nil {
		logger.Fatal("failed to read chain state", zap.Error(err))
	}

	pricesEth := make([]float64, len(res.Listings))
	for i, l := range res.Listings {
		pricesEth[i] = l.PriceEth
	}
	cost := sim.SweepCost(pricesEth, *n, cfg.Sweep.DenseWallFloor, cfg.Sweep.DenseWallSlope)

	proj := sim.Project(cost, snap, sim.Params{
		EthUSD:           ethUSD,
		TokenUSD:         tokenUSD,
		MarketCapUSD:     cfg.Sweep.MarketCapUSD,
		PoolLiquidityUSD: cfg.Sweep.PoolLiquidityUSD,
		BuyPressureExp:   cfg.Sweep.BuyPressureExp,
	})

	pool := sim.PoolState{
		EthReserve:   cfg.Sweep.PoolEthReserve,
		TokenReserve: cfg.Sweep.PoolTokenReserve,
	}
	poolPrice, poolPct := sim.SweepImpact(pool, cost, tokenUSD)

	fmt.Printf("wall listings under %.2f ETH:  %d (floor %.4f ETH)\n",
		cfg.Sweep.PriceCeilingEth, res.Count, res.FloorPrice)
	fmt.Printf("sweep %d cheapest:            %.4f ETH  ($%.2f)\n",
		*n, cost, cost*ethUSD)
	fmt.Println()
	fmt.Printf("tokens burned:                %.0f\n", proj.Projected.TokensBurned)
	fmt.Printf("burn after sweep:             %.3f%% (now %.3f%%)\n",
		proj.Projected.BurnPercentage, proj.Current.BurnPercentage)
	fmt.Printf("heuristic price:              $%.6f -> $%.6f (x%.4f)\n",
		tokenUSD, proj.Projected.PriceUsd, proj.Projected.PriceUsd/tokenUSD)
	fmt.Printf("pool model price:             $%.6f -> $%.6f (+%.2f%%)\n",
		tokenUSD, poolPrice, poolPct)
	fmt.Printf("projected market cap:         $%.0f\n", proj.Projected.MarketCap)
}
