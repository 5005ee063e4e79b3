package models

// Stakeholder is a person or entity holding instruments in a project.
type Stakeholder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LiquidationPreferenceType string

const (
	PrefNonParticipating    LiquidationPreferenceType = "NON_PARTICIPATING"
	PrefFullParticipating   LiquidationPreferenceType = "FULL_PARTICIPATING"
	PrefCappedParticipating LiquidationPreferenceType = "CAPPED_PARTICIPATING"
)

type AntiDilutionProtection string

const (
	AntiDilutionNone        AntiDilutionProtection = "NONE"
	AntiDilutionBroadBased  AntiDilutionProtection = "BROAD_BASED"
	AntiDilutionNarrowBased AntiDilutionProtection = "NARROW_BASED"
	AntiDilutionFullRatchet AntiDilutionProtection = "FULL_RATCHET"
)

// ShareClass describes the economic and control rights of a class of shares.
// A rank of 0 means common stock with no liquidation preference.
type ShareClass struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	LiquidationPreferenceRank   int                       `json:"liquidationPreferenceRank"`
	LiquidationPreferenceFactor float64                   `json:"liquidationPreferenceFactor"`
	LiquidationPreferenceType   LiquidationPreferenceType `json:"liquidationPreferenceType"`
	ParticipationCapFactor      *float64                  `json:"participationCapFactor,omitempty"`

	AntiDilutionProtection AntiDilutionProtection `json:"antiDilutionProtection"`
	VotesPerShare          float64                `json:"votesPerShare"`
	ProtectiveProvisions   []string               `json:"protectiveProvisions,omitempty"`
}

// Clone returns a deep copy so replay state never aliases transaction data.
func (sc *ShareClass) Clone() *ShareClass {
	cp := *sc
	if sc.ParticipationCapFactor != nil {
		v := *sc.ParticipationCapFactor
		cp.ParticipationCapFactor = &v
	}
	if sc.ProtectiveProvisions != nil {
		cp.ProtectiveProvisions = append([]string(nil), sc.ProtectiveProvisions...)
	}
	return &cp
}

// ShareClassUpdate carries a partial amendment of a share class. Nil fields
// are left untouched; the class id itself is never updatable.
type ShareClassUpdate struct {
	Name                        *string                    `json:"name,omitempty"`
	LiquidationPreferenceRank   *int                       `json:"liquidationPreferenceRank,omitempty"`
	LiquidationPreferenceFactor *float64                   `json:"liquidationPreferenceFactor,omitempty"`
	LiquidationPreferenceType   *LiquidationPreferenceType `json:"liquidationPreferenceType,omitempty"`
	ParticipationCapFactor      *float64                   `json:"participationCapFactor,omitempty"`
	AntiDilutionProtection      *AntiDilutionProtection    `json:"antiDilutionProtection,omitempty"`
	VotesPerShare               *float64                   `json:"votesPerShare,omitempty"`
	ProtectiveProvisions        []string                   `json:"protectiveProvisions,omitempty"`
}

// ApplyTo merges the non-nil fields of the update into the given class.
func (u *ShareClassUpdate) ApplyTo(sc *ShareClass) {
	if u.Name != nil {
		sc.Name = *u.Name
	}
	if u.LiquidationPreferenceRank != nil {
		sc.LiquidationPreferenceRank = *u.LiquidationPreferenceRank
	}
	if u.LiquidationPreferenceFactor != nil {
		sc.LiquidationPreferenceFactor = *u.LiquidationPreferenceFactor
	}
	if u.LiquidationPreferenceType != nil {
		sc.LiquidationPreferenceType = *u.LiquidationPreferenceType
	}
	if u.ParticipationCapFactor != nil {
		v := *u.ParticipationCapFactor
		sc.ParticipationCapFactor = &v
	}
	if u.AntiDilutionProtection != nil {
		sc.AntiDilutionProtection = *u.AntiDilutionProtection
	}
	if u.VotesPerShare != nil {
		sc.VotesPerShare = *u.VotesPerShare
	}
	if u.ProtectiveProvisions != nil {
		sc.ProtectiveProvisions = append([]string(nil), u.ProtectiveProvisions...)
	}
}

// VestingSchedule describes monthly linear vesting with a cliff.
// Acceleration is carried for completeness but has no computational effect.
type VestingSchedule struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	GrantDate           string `json:"grantDate"` // YYYY-MM-DD, start of vesting
	VestingPeriodMonths int    `json:"vestingPeriodMonths"`
	CliffMonths         int    `json:"cliffMonths"`
	Acceleration        string `json:"acceleration,omitempty"` // SINGLE_TRIGGER or DOUBLE_TRIGGER
}

// Shareholding is a single tranche of shares held by a stakeholder.
type Shareholding struct {
	ID                    string  `json:"id"`
	StakeholderID         string  `json:"stakeholderId"`
	StakeholderName       string  `json:"stakeholderName"`
	ShareClassID          string  `json:"shareClassId"`
	Shares                int64   `json:"shares"`
	Investment            float64 `json:"investment,omitempty"`
	OriginalPricePerShare float64 `json:"originalPricePerShare,omitempty"`
	VestingScheduleID     string  `json:"vestingScheduleId,omitempty"`
}
