package models

import "time"

type MarketSnapshot struct {
	TokenAddress      string    `json:"tokenAddress"`
	Symbol            string    `json:"symbol,omitempty"`
	Price             float64   `json:"price"`
	LiquidityUSD      float64   `json:"liquidityUsd"`
	Volume24h         float64   `json:"volume24h"`
	PriceChange24hPct float64   `json:"priceChange24hPct"`
	HolderCount       int       `json:"holderCount"`
	Verified          bool      `json:"verified"`
	OrganicScore      float64   `json:"organicScore"`
	FetchedAt         time.Time `json:"fetchedAt"`
}

// Quote amounts are in whole units of the respective asset.
type Quote struct {
	InputAsset     string   `json:"inputAsset"`
	OutputAsset    string   `json:"outputAsset"`
	InputAmount    float64  `json:"inputAmount"`
	ExpectedOutput float64  `json:"expectedOutput"`
	PriceImpactPct float64  `json:"priceImpactPct"`
	Routes         []string `json:"routes,omitempty"`
}

type SwapResult struct {
	TxID         string  `json:"txId"`
	ActualOutput float64 `json:"actualOutput"`
}
