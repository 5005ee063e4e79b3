package models

// CapTableEntry aggregates a stakeholder's holdings in one share class.
type CapTableEntry struct {
	StakeholderID     string  `json:"stakeholderId"`
	StakeholderName   string  `json:"stakeholderName"`
	ShareClassID      string  `json:"shareClassId"`
	ShareClassName    string  `json:"shareClassName"`
	Shares            int64   `json:"shares"`
	VestedShares      int64   `json:"vestedShares"`
	Percentage        float64 `json:"percentage"` // e.g. 15.5 for 15.5%
	InitialInvestment float64 `json:"initialInvestment,omitempty"`
}

// CapTable is the ownership structure at a point in time.
type CapTable struct {
	AsOfDate          string          `json:"asOfDate"`
	TotalShares       int64           `json:"totalShares"`
	TotalVestedShares int64           `json:"totalVestedShares"`
	Entries           []CapTableEntry `json:"entries"`
}

// WaterfallDistribution is one claimant's payout in a liquidation scenario,
// broken down by source.
type WaterfallDistribution struct {
	StakeholderID   string `json:"stakeholderId"`
	StakeholderName string `json:"stakeholderName"`
	ShareClassID    string `json:"shareClassId"`
	ShareClassName  string `json:"shareClassName"`

	InitialInvestment float64 `json:"initialInvestment"`

	FromDebtRepayment         float64 `json:"fromDebtRepayment"`
	FromLiquidationPreference float64 `json:"fromLiquidationPreference"`
	FromParticipation         float64 `json:"fromParticipation"`
	FromConvertedShares       float64 `json:"fromConvertedShares"`

	TotalProceeds float64 `json:"totalProceeds"`
	Multiple      float64 `json:"multiple"` // totalProceeds / initialInvestment
}

// WaterfallResult is the outcome of a liquidation simulation, including the
// step-by-step calculation log shown to the user.
type WaterfallResult struct {
	NetExitProceeds float64                 `json:"netExitProceeds"`
	Distributions   []WaterfallDistribution `json:"distributions"`
	RemainingValue  float64                 `json:"remainingValue"`
	CalculationLog  []string                `json:"calculationLog"`
}

// VoteDistributionEntry is one stakeholder/class position's voting power.
type VoteDistributionEntry struct {
	StakeholderName string  `json:"stakeholderName"`
	ShareClassName  string  `json:"shareClassName"`
	Votes           float64 `json:"votes"`
	Percentage      float64 `json:"percentage"`
}

// VotingResult is the voting-power distribution as of a date. Only vested
// shares vote.
type VotingResult struct {
	VoteDistribution []VoteDistributionEntry `json:"voteDistribution"`
	TotalVotes       float64                 `json:"totalVotes"`
	AsOfDate         string                  `json:"asOfDate"`
}

// TotalCapitalizationEntry is one line of the combined equity/hybrid/debt
// overview. AmountOrShares is preformatted for display.
type TotalCapitalizationEntry struct {
	Key             string  `json:"key"`
	StakeholderName string  `json:"stakeholderName"`
	InstrumentName  string  `json:"instrumentName"`
	InstrumentType  string  `json:"instrumentType"`
	AmountOrShares  string  `json:"amountOrShares"`
	Value           float64 `json:"value"`
}

// TotalCapitalizationResult values every outstanding instrument.
type TotalCapitalizationResult struct {
	Entries    []TotalCapitalizationEntry `json:"entries"`
	TotalValue float64                    `json:"totalValue"`
}
