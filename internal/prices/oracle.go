package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brydisanto/smash-the-wall/internal/config"
	"github.com/brydisanto/smash-the-wall/internal/types"
	"go.uber.org/zap"
)

// Oracle reads USD prices from two independent feeds: CoinGecko for the
// native coin, DexScreener per tracked ERC-20. Each sub-fetch is isolated,
// a failure zeroes that field only.
type Oracle struct {
	cfg  *config.Config
	log  *zap.Logger
	http *http.Client
}

func NewOracle(cfg *config.Config, log *zap.Logger) *Oracle {
	return &Oracle{cfg: cfg, log: log, http: &http.Client{Timeout: 10 * time.Second}}
}

type cgSimplePrice map[string]map[string]float64

type dsTokenResp struct {
	Pairs []struct {
		PriceUsd string `json:"priceUsd"`
		Liquidity struct {
			Usd float64 `json:"usd"`
		} `json:"liquidity"`
	} `json:"pairs"`
}

func (o *Oracle) Read(ctx context.Context) types.PriceReading {
	r := types.PriceReading{Ts: time.Now().UnixMilli()}

	if eth, err := o.ethUSD(ctx); err != nil {
		o.log.Warn("prices: eth feed failed", zap.Error(err))
	} else {
		r.EthUSD = eth
	}

	if v, err := o.tokenUSD(ctx, o.cfg.Chain.TokenContract); err != nil {
		o.log.Warn("prices: token feed failed",
			zap.String("contract", o.cfg.Chain.TokenContract), zap.Error(err))
	} else {
		r.TokenUSD = v
	}

	if v, err := o.tokenUSD(ctx, o.cfg.Prices.PairContract); err != nil {
		o.log.Warn("prices: pair token feed failed",
			zap.String("contract", o.cfg.Prices.PairContract), zap.Error(err))
	} else {
		r.PairUSD = v
	}

	return r
}

func (o *Oracle) ethUSD(ctx context.Context) (float64, error) {
	u := strings.TrimRight(o.cfg.Prices.CoinGeckoURL, "/") + "/simple/price?ids=ethereum&vs_currencies=usd"
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return 0, err
	}
	if o.cfg.Prices.CoinGeckoKey != "" {
		req.Header.Set("x-cg-demo-api-key", o.cfg.Prices.CoinGeckoKey)
	}
	var sp cgSimplePrice
	if err := o.doJSON(req, &sp); err != nil {
		return 0, err
	}
	v := sp["ethereum"]["usd"]
	if v <= 0 {
		return 0, fmt.Errorf("no usd price for ethereum in response")
	}
	return v, nil
}

// tokenUSD takes the best-pair price DexScreener reports for a contract.
func (o *Oracle) tokenUSD(ctx context.Context, contract string) (float64, error) {
	u := strings.TrimRight(o.cfg.Prices.DexScreenerURL, "/") + "/tokens/" + url.PathEscape(contract)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return 0, err
	}
	var tr dsTokenResp
	if err := o.doJSON(req, &tr); err != nil {
		return 0, err
	}
	if len(tr.Pairs) == 0 {
		return 0, fmt.Errorf("no pairs for %s", contract)
	}
	v, err := strconv.ParseFloat(tr.Pairs[0].PriceUsd, 64)
	if err != nil {
		return 0, fmt.Errorf("bad priceUsd %q: %w", tr.Pairs[0].PriceUsd, err)
	}
	return v, nil
}

func (o *Oracle) doJSON(req *http.Request, v interface{}) error {
	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d %s: %s", resp.StatusCode, req.URL.String(), strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
