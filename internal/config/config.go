package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"api"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	OpenSea struct {
		BaseURL      string `yaml:"base_url"`
		APIKey       string `yaml:"api_key"`
		Collection   string `yaml:"collection"`
		SellerWallet string `yaml:"seller_wallet"`
		NFTContract  string `yaml:"nft_contract"`

		ListingsPageLimit int `yaml:"listings_page_limit"`
		EventsPageLimit   int `yaml:"events_page_limit"`

		ListingsMaxPages int `yaml:"listings_max_pages"`
		HoldingsMaxPages int `yaml:"holdings_max_pages"`
		NFTsMaxPages     int `yaml:"nfts_max_pages"`
		EventsMaxPages   int `yaml:"events_max_pages"`

		ListingsPageDelayMs int `yaml:"listings_page_delay_ms"`
		HoldingsPageDelayMs int `yaml:"holdings_page_delay_ms"`
		NFTsPageDelayMs     int `yaml:"nfts_page_delay_ms"`
		EventsPageDelayMs   int `yaml:"events_page_delay_ms"`
	} `yaml:"opensea"`

	Chain struct {
		RPCHTTP       string `yaml:"rpc_http"`
		TokenContract string `yaml:"token_contract"`
		BurnAddress   string `yaml:"burn_address"`
	} `yaml:"chain"`

	Prices struct {
		CoinGeckoURL   string `yaml:"coingecko_url"`
		CoinGeckoKey   string `yaml:"coingecko_key"`
		DexScreenerURL string `yaml:"dexscreener_url"`
		PairContract   string `yaml:"pair_contract"` // secondary tracked token
	} `yaml:"prices"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		TTLHours int    `yaml:"ttl_hours"`
	} `yaml:"redis"`

	Sweep struct {
		PriceCeilingEth float64 `yaml:"price_ceiling_eth"`

		// Fallbacks used when an oracle read fails mid-request.
		EthUSDFallback   float64 `yaml:"eth_usd_fallback"`
		TokenUSDFallback float64 `yaml:"token_usd_fallback"`
		MarketCapUSD     float64 `yaml:"market_cap_usd"`

		// AMM model parameters.
		PoolLiquidityUSD float64 `yaml:"pool_liquidity_usd"`
		PoolEthReserve   float64 `yaml:"pool_eth_reserve"`
		PoolTokenReserve float64 `yaml:"pool_token_reserve"`
		BuyPressureExp   float64 `yaml:"buy_pressure_exp"`
		DenseWallSlope   float64 `yaml:"dense_wall_slope"`
		DenseWallFloor   float64 `yaml:"dense_wall_floor"`
	} `yaml:"sweep"`

	Leaderboard struct {
		TopN           int `yaml:"top_n"`
		ResolveBatch   int `yaml:"resolve_batch"`
		BatchPauseMs   int `yaml:"batch_pause_ms"`
		MemoryCacheCap int `yaml:"memory_cache_cap"`
	} `yaml:"leaderboard"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.fillDefaults()
	return &c, nil
}

// Default returns a config with every tunable at its default, for the CLI
// binaries and for tests.
func Default() *Config {
	c := &Config{}
	c.fillDefaults()
	return c
}

func (c *Config) fillDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9091"
	}
	if c.OpenSea.BaseURL == "" {
		c.OpenSea.BaseURL = "https://api.opensea.io/api/v2"
	}
	if c.OpenSea.Collection == "" {
		c.OpenSea.Collection = "good-vibes-club"
	}
	if c.OpenSea.SellerWallet == "" {
		c.OpenSea.SellerWallet = "0xd0cc2b0efb168bfe1f94a948d8df70fa10257196"
	}
	if c.OpenSea.NFTContract == "" {
		c.OpenSea.NFTContract = "0xB8Ea78fcaCEf50d41375E44E6814ebbA36Bb33c4"
	}
	if c.OpenSea.ListingsPageLimit == 0 {
		c.OpenSea.ListingsPageLimit = 100
	}
	if c.OpenSea.EventsPageLimit == 0 {
		c.OpenSea.EventsPageLimit = 50
	}
	if c.OpenSea.ListingsMaxPages == 0 {
		c.OpenSea.ListingsMaxPages = 50
	}
	if c.OpenSea.HoldingsMaxPages == 0 {
		c.OpenSea.HoldingsMaxPages = 10
	}
	if c.OpenSea.NFTsMaxPages == 0 {
		c.OpenSea.NFTsMaxPages = 15
	}
	if c.OpenSea.EventsMaxPages == 0 {
		c.OpenSea.EventsMaxPages = 5
	}
	if c.OpenSea.NFTsPageDelayMs == 0 {
		c.OpenSea.NFTsPageDelayMs = 100
	}
	if c.OpenSea.ListingsPageDelayMs == 0 {
		c.OpenSea.ListingsPageDelayMs = 1000
	}
	if c.OpenSea.HoldingsPageDelayMs == 0 {
		c.OpenSea.HoldingsPageDelayMs = 200
	}
	if c.OpenSea.EventsPageDelayMs == 0 {
		c.OpenSea.EventsPageDelayMs = 300
	}
	if c.Chain.RPCHTTP == "" {
		c.Chain.RPCHTTP = "https://eth.llamarpc.com"
	}
	if c.Chain.TokenContract == "" {
		c.Chain.TokenContract = "0xd0cC2b0eFb168bFe1f94a948D8df70FA10257196"
	}
	if c.Chain.BurnAddress == "" {
		c.Chain.BurnAddress = "0x000000000000000000000000000000000000dEaD"
	}
	if c.Prices.CoinGeckoURL == "" {
		c.Prices.CoinGeckoURL = "https://api.coingecko.com/api/v3"
	}
	if c.Prices.DexScreenerURL == "" {
		c.Prices.DexScreenerURL = "https://api.dexscreener.com/latest/dex"
	}
	if c.Prices.PairContract == "" {
		c.Prices.PairContract = "0xc50673EDb3A7b94E8CAD8a7d4E0cD68864E33eDF"
	}
	if c.Redis.TTLHours == 0 {
		c.Redis.TTLHours = 1
	}
	if c.Sweep.PriceCeilingEth == 0 {
		c.Sweep.PriceCeilingEth = 1.0
	}
	if c.Sweep.EthUSDFallback == 0 {
		c.Sweep.EthUSDFallback = 3300
	}
	if c.Sweep.TokenUSDFallback == 0 {
		c.Sweep.TokenUSDFallback = 0.0106
	}
	if c.Sweep.MarketCapUSD == 0 {
		c.Sweep.MarketCapUSD = 8_700_000
	}
	if c.Sweep.PoolLiquidityUSD == 0 {
		c.Sweep.PoolLiquidityUSD = 930_000
	}
	if c.Sweep.PoolEthReserve == 0 {
		c.Sweep.PoolEthReserve = 267.96
	}
	if c.Sweep.PoolTokenReserve == 0 {
		c.Sweep.PoolTokenReserve = 85_079_842
	}
	if c.Sweep.BuyPressureExp == 0 {
		c.Sweep.BuyPressureExp = 1.5
	}
	if c.Sweep.DenseWallSlope == 0 {
		c.Sweep.DenseWallSlope = 0.0004
	}
	if c.Sweep.DenseWallFloor == 0 {
		c.Sweep.DenseWallFloor = 0.94
	}
	if c.Leaderboard.TopN == 0 {
		c.Leaderboard.TopN = 20
	}
	if c.Leaderboard.ResolveBatch == 0 {
		c.Leaderboard.ResolveBatch = 5
	}
	if c.Leaderboard.BatchPauseMs == 0 {
		c.Leaderboard.BatchPauseMs = 50
	}
	if c.Leaderboard.MemoryCacheCap == 0 {
		c.Leaderboard.MemoryCacheCap = 10_000
	}
}

func (c *Config) ListingsPageDelay() time.Duration {
	return time.Duration(c.OpenSea.ListingsPageDelayMs) * time.Millisecond
}
func (c *Config) HoldingsPageDelay() time.Duration {
	return time.Duration(c.OpenSea.HoldingsPageDelayMs) * time.Millisecond
}
func (c *Config) NFTsPageDelay() time.Duration {
	return time.Duration(c.OpenSea.NFTsPageDelayMs) * time.Millisecond
}
func (c *Config) EventsPageDelay() time.Duration {
	return time.Duration(c.OpenSea.EventsPageDelayMs) * time.Millisecond
}
func (c *Config) BatchPause() time.Duration {
	return time.Duration(c.Leaderboard.BatchPauseMs) * time.Millisecond
}
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLHours) * time.Hour
}
