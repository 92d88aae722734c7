package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/clock"
	"github.com/kjannette/trahn-signals/internal/httputil"
	"github.com/kjannette/trahn-signals/internal/models"
)

const DefaultMarketURL = "https://api.dexscreener.com"

// MarketClient reads token market data from a DexScreener-compatible API.
// It makes exactly one request per call; pacing and retries belong to
// GuardedMarket.
type MarketClient struct {
	baseURL    string
	chainID    string
	httpClient *http.Client
	clock      clock.Clock
}

type MarketOptions struct {
	BaseURL string
	ChainID string // DexScreener chain slug, e.g. "ethereum"
	Timeout time.Duration
	Clock   clock.Clock
}

func NewMarketClient(opts MarketOptions) *MarketClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultMarketURL
	}
	if opts.ChainID == "" {
		opts.ChainID = "ethereum"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &MarketClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		chainID:    opts.ChainID,
		httpClient: &http.Client{Timeout: opts.Timeout},
		clock:      opts.Clock,
	}
}

type dexPair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Txns struct {
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	Makers struct {
		H24 int `json:"h24"`
	} `json:"makers"`
}

func (c *MarketClient) GetMarketSnapshot(ctx context.Context, token string) (models.MarketSnapshot, error) {
	op := "market snapshot " + token
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.MarketSnapshot{}, apperr.New(apperr.KindValidation, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if cerr := httputil.Classify(op, resp, err); cerr != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return models.MarketSnapshot{}, cerr
	}
	defer resp.Body.Close()

	var data struct {
		Pairs []dexPair `json:"pairs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return models.MarketSnapshot{}, apperr.New(apperr.KindUnavailable, op, fmt.Errorf("decode: %w", err))
	}

	best, ok := c.deepestPair(token, data.Pairs)
	if !ok {
		return models.MarketSnapshot{}, apperr.Newf(apperr.KindNotFound, op, "no %s pairs", c.chainID)
	}

	price, err := strconv.ParseFloat(best.PriceUSD, 64)
	if err != nil || price <= 0 {
		return models.MarketSnapshot{}, apperr.Newf(apperr.KindUnavailable, op, "invalid price %q", best.PriceUSD)
	}

	return models.MarketSnapshot{
		TokenAddress:      token,
		Symbol:            best.BaseToken.Symbol,
		Price:             price,
		LiquidityUSD:      best.Liquidity.USD,
		Volume24h:         best.Volume.H24,
		PriceChange24hPct: best.PriceChange.H24,
		HolderCount:       best.Makers.H24,
		OrganicScore:      organicScore(best.Txns.H24.Buys, best.Txns.H24.Sells),
		FetchedAt:         c.clock.Now(),
	}, nil
}

// deepestPair picks the highest-liquidity pair on the configured chain in
// which token is the base asset.
func (c *MarketClient) deepestPair(token string, pairs []dexPair) (dexPair, bool) {
	var best dexPair
	found := false
	for _, p := range pairs {
		if p.ChainID != c.chainID || !strings.EqualFold(p.BaseToken.Address, token) {
			continue
		}
		if !found || p.Liquidity.USD > best.Liquidity.USD {
			best, found = p, true
		}
	}
	return best, found
}

// organicScore rewards activity that is both frequent and two-sided.
// Returns a value in [0, 1].
func organicScore(buys, sells int) float64 {
	total := buys + sells
	if total == 0 {
		return 0
	}
	balance := 1 - float64(abs(buys-sells))/float64(total)
	activity := float64(total) / 1000
	if activity > 1 {
		activity = 1
	}
	return balance * activity
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
