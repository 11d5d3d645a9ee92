package result

// Snapshot is one observation of the vault taken during a run. Amounts are
// decimal strings, value is in token0 terms at the pool price.
type Snapshot struct {
	Timestamp   int    `json:"timestamp"`
	Tick        int    `json:"tick"`
	Amount0     string `json:"amount0"`
	Amount1     string `json:"amount1"`
	Value       string `json:"value"`
	Price       string `json:"price"`
	TotalSupply string `json:"totalSupply"`
}

// Rebalance records the ranges placed by one rebalance.
type Rebalance struct {
	Timestamp  int `json:"timestamp"`
	Tick       int `json:"tick"`
	BaseLower  int `json:"baseLower"`
	BaseUpper  int `json:"baseUpper"`
	LimitLower int `json:"limitLower"`
	LimitUpper int `json:"limitUpper"`
}

type Save struct {
	SnapshotInterval int         `json:"snapshot_interval"`
	StartAmount0     string      `json:"start_amount0"`
	StartAmount1     string      `json:"start_amount1"`
	StartTime        int         `json:"start_time"`
	EndTime          int         `json:"end_time"`
	Results          []RunResult `json:"results"`
}

type RunResult struct {
	BaseThreshold  int    `json:"baseThreshold"`
	LimitThreshold int    `json:"limitThreshold"`
	EndAmount      string `json:"end_amount"`
	EndSupply      string `json:"end_supply"`
	ProtocolFees0  string `json:"protocol_fees0"`
	ProtocolFees1  string `json:"protocol_fees1"`
	Rebalances     int    `json:"rebalances"`
	VarianceHourly string `json:"variance_hourly"` // o^2
	VarianceDaily  string `json:"variance_daily"`
}
