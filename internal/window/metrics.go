package window

// RollingMetrics is a derived, on-demand snapshot of a token's windowed
// behaviour. It is never stored; every consumer works from a fresh
// computation so decisions always reflect the current window contents.
type RollingMetrics struct {
	TxCount30s     int `json:"tx_30s"`
	TxCount60s     int `json:"tx_60s"`
	TxCount180s    int `json:"tx_180s"`
	TxCountPrev60s int `json:"tx_prev_60s"` // the 60-120s-ago band

	UniqueBuyers5m int `json:"unique_buyers_5m"`
	RepeatBuyers5m int `json:"repeat_buyers_5m"`

	AvgBuySize float64 `json:"avg_buy_size"` // 180s window, SOL
	BuySizeStd float64 `json:"buy_size_std"` // population std dev
	LargestBuy float64 `json:"largest_buy"`

	MeanInterval60s float64 `json:"mean_interval_s"` // +Inf when <2 entries
	Accelerating    bool    `json:"accelerating"`
	Acceleration    int     `json:"acceleration"` // tx_60s - tx_prev_60s
}
