package domain

// MarketMetrics is one immutable microstructure snapshot for a symbol.
// Instances are retained in fixed-length rolling windows, oldest first
// out.
type MarketMetrics struct {
	Symbol             string  `json:"symbol"`
	TimestampMs        int64   `json:"timestamp"`
	MidPrice           float64 `json:"mid_price"`
	Spread             float64 `json:"spread"`
	OrderImbalance     float64 `json:"order_imbalance"` // in [-1, 1]
	PriceImpact        float64 `json:"price_impact"`
	RealizedVolatility float64 `json:"realized_volatility"`

	EffectiveSpread    float64 `json:"effective_spread,omitempty"`
	TradeToCancelRatio float64 `json:"trade_to_cancel_ratio,omitempty"`
	LiquidityWeight    float64 `json:"liquidity_weight,omitempty"`
}

// ToxicityFactor is one named contribution to a toxicity score,
// independently capped to [0, 1].
type ToxicityFactor struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
}

// ToxicityAssessment is the cached verdict of the toxic flow detector
// for one symbol. It is recomputed periodically, not on every event;
// lookups between recomputations return the previous assessment
// verbatim.
type ToxicityAssessment struct {
	Symbol      string           `json:"symbol"`
	TimestampMs int64            `json:"timestamp"`
	IsToxic     bool             `json:"is_toxic"`
	Confidence  float64          `json:"confidence"` // in [0, 1]
	Factors     []ToxicityFactor `json:"factors"`
}
