package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

type TransactionType string

const (
	TxFounding        TransactionType = "FOUNDING"
	TxConvertibleLoan TransactionType = "CONVERTIBLE_LOAN"
	TxFinancingRound  TransactionType = "FINANCING_ROUND"
	TxShareTransfer   TransactionType = "SHARE_TRANSFER"
	TxDebtInstrument  TransactionType = "DEBT_INSTRUMENT"
	TxUpdateShareClass TransactionType = "UPDATE_SHARE_CLASS"
)

type TransactionStatus string

const (
	StatusDraft    TransactionStatus = "DRAFT"
	StatusActive   TransactionStatus = "ACTIVE"
	StatusArchived TransactionStatus = "ARCHIVED"
)

type ConversionMechanism string

const (
	MechanismCapAndDiscount ConversionMechanism = "CAP_AND_DISCOUNT"
	MechanismFixedPrice     ConversionMechanism = "FIXED_PRICE"
	MechanismFixedRatio     ConversionMechanism = "FIXED_RATIO"
)

// Seniority determines the repayment order of debt claims in a liquidation.
type Seniority string

const (
	SenioritySeniorSecured   Seniority = "SENIOR_SECURED"
	SenioritySeniorUnsecured Seniority = "SENIOR_UNSECURED"
	SenioritySubordinated    Seniority = "SUBORDINATED"
)

// TransactionBase carries the fields shared by every transaction variant.
// Dates are ISO YYYY-MM-DD strings, so lexicographic order is chronological.
type TransactionBase struct {
	ID        string            `json:"id"`
	Date      string            `json:"date"`
	Type      TransactionType   `json:"type"`
	Status    TransactionStatus `json:"status"`
	ValidFrom string            `json:"validFrom,omitempty"`
	ValidTo   string            `json:"validTo,omitempty"`
}

func (b *TransactionBase) Base() *TransactionBase { return b }

// Transaction is the closed union of all corporate event variants.
type Transaction interface {
	Base() *TransactionBase
	TransactionType() TransactionType
}

// FoundingTransaction incorporates the company: initial share classes,
// shareholdings and optional vesting schedules.
type FoundingTransaction struct {
	TransactionBase
	CompanyName      string            `json:"companyName"`
	LegalForm        string            `json:"legalForm"`
	Currency         string            `json:"currency,omitempty"`
	ShareClasses     []ShareClass      `json:"shareClasses"`
	Shareholdings    []Shareholding    `json:"shareholdings"`
	VestingSchedules []VestingSchedule `json:"vestingSchedules,omitempty"`
}

func (t *FoundingTransaction) TransactionType() TransactionType { return TxFounding }

// ConvertibleLoanTransaction is debt that may convert into equity during a
// later financing round. Which of the optional pricing fields apply depends
// on the conversion mechanism.
type ConvertibleLoanTransaction struct {
	TransactionBase
	InvestorName string  `json:"investorName"`
	StakeholderID string `json:"stakeholderId"`
	Amount       float64 `json:"amount"`
	InterestRate float64 `json:"interestRate,omitempty"` // p.a., e.g. 0.08 for 8%

	ConversionMechanism ConversionMechanism `json:"conversionMechanism"`

	ValuationCap *float64 `json:"valuationCap,omitempty"`
	Discount     float64  `json:"discount,omitempty"` // decimal, e.g. 0.2 for 20%

	FixedConversionPrice float64 `json:"fixedConversionPrice,omitempty"`

	RatioShares float64 `json:"ratioShares,omitempty"`
	RatioAmount float64 `json:"ratioAmount,omitempty"`

	Seniority Seniority `json:"seniority"`
}

func (t *ConvertibleLoanTransaction) TransactionType() TransactionType { return TxConvertibleLoan }

// FinancingRoundTransaction issues a new share class to new investors at a
// pre-money valuation and may trigger conversion of earlier loans.
type FinancingRoundTransaction struct {
	TransactionBase
	RoundName         string         `json:"roundName"`
	PreMoneyValuation float64        `json:"preMoneyValuation"`
	NewShareClass     ShareClass     `json:"newShareClass"`
	NewShareholdings  []Shareholding `json:"newShareholdings"`
	ConvertsLoanIDs   []string       `json:"convertsLoanIds,omitempty"`
}

func (t *FinancingRoundTransaction) TransactionType() TransactionType { return TxFinancingRound }

// AdditionalPayment captures side payments on a transfer, e.g. an
// equalization interest payment.
type AdditionalPayment struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// ShareTransferTransaction moves existing shares between stakeholders.
type ShareTransferTransaction struct {
	TransactionBase
	SellerStakeholderID string `json:"sellerStakeholderId"`
	BuyerStakeholderID  string `json:"buyerStakeholderId"`
	BuyerStakeholderName string `json:"buyerStakeholderName"`

	ShareClassID   string  `json:"shareClassId"`
	NumberOfShares int64   `json:"numberOfShares"`
	PricePerShare  float64 `json:"pricePerShare"`

	AdditionalPayment *AdditionalPayment `json:"additionalPayment,omitempty"`
}

func (t *ShareTransferTransaction) TransactionType() TransactionType { return TxShareTransfer }

// DebtInstrumentTransaction is plain non-convertible debt such as a bank loan.
type DebtInstrumentTransaction struct {
	TransactionBase
	LenderName   string    `json:"lenderName"`
	Amount       float64   `json:"amount"`
	InterestRate float64   `json:"interestRate"` // p.a., e.g. 0.05 for 5%
	Seniority    Seniority `json:"seniority"`
}

func (t *DebtInstrumentTransaction) TransactionType() TransactionType { return TxDebtInstrument }

// UpdateShareClassTransaction amends an existing share class from its date on.
type UpdateShareClassTransaction struct {
	TransactionBase
	ShareClassIDToUpdate string           `json:"shareClassIdToUpdate"`
	UpdatedProperties    ShareClassUpdate `json:"updatedProperties"`
}

func (t *UpdateShareClassTransaction) TransactionType() TransactionType { return TxUpdateShareClass }

// UnmarshalTransaction decodes a single transaction from its JSON envelope,
// dispatching on the "type" discriminant.
func UnmarshalTransaction(data []byte) (Transaction, error) {
	var probe struct {
		Type TransactionType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding transaction envelope: %w", err)
	}

	var tx Transaction
	switch probe.Type {
	case TxFounding:
		tx = &FoundingTransaction{}
	case TxConvertibleLoan:
		tx = &ConvertibleLoanTransaction{}
	case TxFinancingRound:
		tx = &FinancingRoundTransaction{}
	case TxShareTransfer:
		tx = &ShareTransferTransaction{}
	case TxDebtInstrument:
		tx = &DebtInstrumentTransaction{}
	case TxUpdateShareClass:
		tx = &UpdateShareClassTransaction{}
	default:
		return nil, fmt.Errorf("unknown transaction type %q", probe.Type)
	}

	if err := json.Unmarshal(data, tx); err != nil {
		return nil, fmt.Errorf("decoding %s transaction: %w", probe.Type, err)
	}
	return tx, nil
}

// Transactions decodes from a JSON array of transaction envelopes.
type Transactions []Transaction

func (ts *Transactions) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Transactions, 0, len(raw))
	for i, msg := range raw {
		tx, err := UnmarshalTransaction(msg)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
		out = append(out, tx)
	}
	*ts = out
	return nil
}

// SortTransactionsByDate orders transactions chronologically in place.
// The sort is stable so same-day transactions keep their input order.
func SortTransactionsByDate(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Base().Date < txs[j].Base().Date
	})
}

// FilterActive returns only transactions with ACTIVE status.
func FilterActive(txs []Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Base().Status == StatusActive {
			out = append(out, tx)
		}
	}
	return out
}
