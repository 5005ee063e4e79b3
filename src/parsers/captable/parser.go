// backend/src/parsers/captable/parser.go
package captable

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/username/capsim/backend/src/logger"
	"github.com/username/capsim/backend/src/models"
	"github.com/username/capsim/backend/src/security/validation"
)

// Section names of the workbook. A workbook is a single CSV file where each
// section starts with a marker row like "[Transactions]", followed by a
// header row and data rows. Rows reference each other through the
// user-visible keys "stakeholderId" and "transactionName".
const (
	sectionStakeholders  = "Stakeholders"
	sectionTransactions  = "Transactions"
	sectionShareClasses  = "ShareClasses"
	sectionShareholdings = "Shareholdings"
)

// row is one data row keyed by its section's header names.
type row map[string]string

// WorkbookParser implements the parsers.Parser interface for cap table
// workbook CSV files.
type WorkbookParser struct {
	newID func() string
}

// NewParser creates a new instance of the WorkbookParser.
func NewParser() *WorkbookParser {
	return &WorkbookParser{newID: uuid.NewString}
}

// NewParserWithIDGenerator creates a parser whose generated ids come from the
// given function. Used by tests that need stable ids.
func NewParserWithIDGenerator(newID func() string) *WorkbookParser {
	return &WorkbookParser{newID: newID}
}

func cell(r row, key string) string {
	return strings.TrimSpace(r[key])
}

// parseNum parses an optional numeric cell. Empty cells report ok=false so
// callers can apply their per-field defaults.
func parseNum(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func numOrDefault(s string, def float64) float64 {
	if v, ok := parseNum(s); ok {
		return v
	}
	return def
}

func cleanName(s string) string {
	return strings.TrimSpace(validation.SanitizeText(validation.StripUnprintable(s)))
}

// Parse reads a workbook CSV and converts it into a project's stakeholders
// and transactions. All internal ids are regenerated; cross-references in
// the file use the user-visible keys instead.
func (p *WorkbookParser) Parse(file io.Reader) (*models.ImportedProject, error) {
	sections, err := readSections(file)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{sectionStakeholders, sectionTransactions, sectionShareClasses, sectionShareholdings} {
		if _, ok := sections[name]; !ok {
			return nil, fmt.Errorf("missing required section: %s", name)
		}
	}

	stakeholderRows := sections[sectionStakeholders]
	transactionRows := sections[sectionTransactions]
	classRows := sections[sectionShareClasses]
	holdingRows := sections[sectionShareholdings]

	seenStakeholderIDs := make(map[string]bool)
	for _, r := range stakeholderRows {
		id := cell(r, "stakeholderId")
		if id == "" || cell(r, "name") == "" {
			return nil, fmt.Errorf("in '%s' section: each row must have a stakeholderId and a name", sectionStakeholders)
		}
		if seenStakeholderIDs[id] {
			return nil, fmt.Errorf("in '%s' section: duplicate stakeholderId found: %s", sectionStakeholders, id)
		}
		seenStakeholderIDs[id] = true
		if err := validation.CheckXSSPatterns(r["name"], "name", id); err != nil {
			return nil, err
		}
		if err := validation.CheckFormulaInjection(r["name"], "name", id); err != nil {
			return nil, err
		}
	}

	seenTxNames := make(map[string]bool)
	for _, r := range transactionRows {
		name := cell(r, "transactionName")
		if name == "" {
			return nil, fmt.Errorf("in '%s' section: each row must have a transactionName", sectionTransactions)
		}
		if seenTxNames[name] {
			return nil, fmt.Errorf("in '%s' section: duplicate transactionName found: %s", sectionTransactions, name)
		}
		seenTxNames[name] = true
	}

	stakeholders := make([]models.Stakeholder, 0, len(stakeholderRows))
	userToInternalID := make(map[string]string, len(stakeholderRows))
	userToName := make(map[string]string, len(stakeholderRows))
	for _, r := range stakeholderRows {
		userID := cell(r, "stakeholderId")
		name := cleanName(r["name"])
		sh := models.Stakeholder{ID: p.newID(), Name: name}
		stakeholders = append(stakeholders, sh)
		userToInternalID[userID] = sh.ID
		userToName[userID] = name
	}

	classesByTxName := groupByTxName(classRows)
	holdingsByTxName := groupByTxName(holdingRows)

	transactions := make([]models.Transaction, 0, len(transactionRows))
	txIDByName := make(map[string]string, len(transactionRows))

	for _, r := range transactionRows {
		txName := cell(r, "transactionName")
		base := models.TransactionBase{
			ID:     p.newID(),
			Type:   models.TransactionType(cell(r, "type")),
			Date:   cell(r, "date"),
			Status: models.TransactionStatus(cell(r, "status")),
		}
		if base.Status == "" {
			base.Status = models.StatusActive
		}
		base.ValidFrom = cell(r, "validFrom")
		if base.ValidFrom == "" {
			base.ValidFrom = base.Date
		}
		base.ValidTo = cell(r, "validTo")

		var tx models.Transaction
		switch base.Type {
		case models.TxConvertibleLoan:
			tx = p.buildConvertibleLoan(base, r, holdingsByTxName[txName], userToInternalID, userToName)
		case models.TxFounding:
			tx = p.buildFounding(base, r, classesByTxName[txName], holdingsByTxName[txName], userToInternalID, userToName)
		case models.TxFinancingRound:
			built, buildErr := p.buildFinancingRound(base, r, txName, classesByTxName[txName], holdingsByTxName[txName], userToInternalID, userToName)
			if buildErr != nil {
				return nil, buildErr
			}
			tx = built
		case models.TxDebtInstrument:
			tx = p.buildDebtInstrument(base, r)
		default:
			return nil, fmt.Errorf("unknown transaction type: %s", base.Type)
		}

		txIDByName[txName] = base.ID
		transactions = append(transactions, tx)
	}

	// Second pass: resolve loan conversion references now that every
	// transaction has its regenerated id.
	for i, r := range transactionRows {
		names := cell(r, "convertsLoanTransactionNames")
		if models.TransactionType(cell(r, "type")) != models.TxFinancingRound || names == "" {
			continue
		}
		round, ok := transactions[i].(*models.FinancingRoundTransaction)
		if !ok {
			continue
		}
		for _, loanName := range strings.Split(names, ",") {
			loanName = strings.TrimSpace(loanName)
			if loanName == "" {
				continue
			}
			loanID, found := txIDByName[loanName]
			if !found {
				logger.L.Warn("Workbook import: convertsLoanTransactionNames references unknown transaction", "loanName", loanName)
				continue
			}
			round.ConvertsLoanIDs = append(round.ConvertsLoanIDs, loanID)
		}
	}

	return &models.ImportedProject{
		Stakeholders: stakeholders,
		Transactions: transactions,
	}, nil
}

func (p *WorkbookParser) buildConvertibleLoan(base models.TransactionBase, r row, holdings []row, userToInternalID, userToName map[string]string) *models.ConvertibleLoanTransaction {
	// The lender is linked through a Shareholdings row carrying only the
	// stakeholderId; investorName in the Transactions row is the fallback.
	var loanStakeholderUserID string
	if len(holdings) > 0 {
		loanStakeholderUserID = cell(holdings[0], "stakeholderId")
	}
	investorName := userToName[loanStakeholderUserID]
	if investorName == "" {
		investorName = cleanName(r["investorName"])
	}

	mechanism := models.ConversionMechanism(cell(r, "conversionMechanism"))
	if mechanism == "" {
		mechanism = models.MechanismCapAndDiscount
	}
	seniority := models.Seniority(cell(r, "seniority"))
	if seniority == "" {
		seniority = models.SenioritySubordinated
	}

	loan := &models.ConvertibleLoanTransaction{
		TransactionBase:      base,
		InvestorName:         investorName,
		StakeholderID:        userToInternalID[loanStakeholderUserID],
		Amount:               numOrDefault(cell(r, "amount"), 0),
		InterestRate:         numOrDefault(cell(r, "interestRate"), 0),
		ConversionMechanism:  mechanism,
		Discount:             numOrDefault(cell(r, "discount"), 0),
		FixedConversionPrice: numOrDefault(cell(r, "fixedConversionPrice"), 0),
		RatioShares:          numOrDefault(cell(r, "ratioShares"), 0),
		RatioAmount:          numOrDefault(cell(r, "ratioAmount"), 0),
		Seniority:            seniority,
	}
	if capVal, ok := parseNum(cell(r, "valuationCap")); ok {
		loan.ValuationCap = &capVal
	}
	return loan
}

func (p *WorkbookParser) buildFounding(base models.TransactionBase, r row, classRows, holdingRows []row, userToInternalID, userToName map[string]string) *models.FoundingTransaction {
	classIDByName := make(map[string]string, len(classRows))
	shareClasses := make([]models.ShareClass, 0, len(classRows))
	for _, cr := range classRows {
		sc := p.buildShareClass(cr, 0, models.AntiDilutionNone)
		classIDByName[sc.Name] = sc.ID
		shareClasses = append(shareClasses, sc)
	}

	shareholdings := make([]models.Shareholding, 0, len(holdingRows))
	for _, hr := range holdingRows {
		userID := cell(hr, "stakeholderId")
		shareholdings = append(shareholdings, models.Shareholding{
			ID:              p.newID(),
			StakeholderID:   userToInternalID[userID],
			StakeholderName: userToName[userID],
			ShareClassID:    classIDByName[cell(hr, "shareClassName")],
			Shares:          int64(numOrDefault(cell(hr, "shares"), 0)),
			Investment:      numOrDefault(cell(hr, "investment"), 0),
		})
	}

	currency := cell(r, "currency")
	if currency == "" {
		currency = "EUR"
	}
	return &models.FoundingTransaction{
		TransactionBase: base,
		CompanyName:     cleanName(r["companyName"]),
		LegalForm:       cleanName(r["legalForm"]),
		Currency:        currency,
		ShareClasses:    shareClasses,
		Shareholdings:   shareholdings,
	}
}

func (p *WorkbookParser) buildFinancingRound(base models.TransactionBase, r row, txName string, classRows, holdingRows []row, userToInternalID, userToName map[string]string) (*models.FinancingRoundTransaction, error) {
	if len(classRows) == 0 {
		return nil, fmt.Errorf("in '%s' section: financing round '%s' has no share class row", sectionShareClasses, txName)
	}
	newShareClass := p.buildShareClass(classRows[0], 1, models.AntiDilutionBroadBased)

	newShareholdings := make([]models.Shareholding, 0, len(holdingRows))
	for _, hr := range holdingRows {
		userID := cell(hr, "stakeholderId")
		newShareholdings = append(newShareholdings, models.Shareholding{
			ID:              p.newID(),
			StakeholderID:   userToInternalID[userID],
			StakeholderName: userToName[userID],
			ShareClassID:    newShareClass.ID,
			Shares:          int64(numOrDefault(cell(hr, "shares"), 0)),
			Investment:      numOrDefault(cell(hr, "investment"), 0),
		})
	}

	return &models.FinancingRoundTransaction{
		TransactionBase:   base,
		RoundName:         cleanName(r["roundName"]),
		PreMoneyValuation: numOrDefault(cell(r, "preMoneyValuation"), 0),
		NewShareClass:     newShareClass,
		NewShareholdings:  newShareholdings,
	}, nil
}

func (p *WorkbookParser) buildDebtInstrument(base models.TransactionBase, r row) *models.DebtInstrumentTransaction {
	seniority := models.Seniority(cell(r, "seniority"))
	if seniority == "" {
		seniority = models.SenioritySubordinated
	}
	return &models.DebtInstrumentTransaction{
		TransactionBase: base,
		LenderName:      cleanName(r["lenderName"]),
		Amount:          numOrDefault(cell(r, "amount"), 0),
		InterestRate:    numOrDefault(cell(r, "interestRate"), 0),
		Seniority:       seniority,
	}
}

func (p *WorkbookParser) buildShareClass(r row, defaultRank int, defaultAntiDilution models.AntiDilutionProtection) models.ShareClass {
	prefType := models.LiquidationPreferenceType(cell(r, "liquidationPreferenceType"))
	if prefType == "" {
		prefType = models.PrefNonParticipating
	}
	antiDilution := models.AntiDilutionProtection(cell(r, "antiDilutionProtection"))
	if antiDilution == "" {
		antiDilution = defaultAntiDilution
	}

	sc := models.ShareClass{
		ID:                          p.newID(),
		Name:                        cleanName(r["name"]),
		LiquidationPreferenceRank:   int(numOrDefault(cell(r, "liquidationPreferenceRank"), float64(defaultRank))),
		LiquidationPreferenceFactor: numOrDefault(cell(r, "liquidationPreferenceFactor"), 1),
		LiquidationPreferenceType:   prefType,
		AntiDilutionProtection:      antiDilution,
		VotesPerShare:               numOrDefault(cell(r, "votesPerShare"), 1),
	}
	if capVal, ok := parseNum(cell(r, "participationCapFactor")); ok {
		sc.ParticipationCapFactor = &capVal
	}
	return sc
}

func groupByTxName(rows []row) map[string][]row {
	out := make(map[string][]row)
	for _, r := range rows {
		name := cell(r, "transactionName")
		if name == "" {
			continue
		}
		out[name] = append(out[name], r)
	}
	return out
}

// readSections splits the workbook CSV into its named sections. A marker row
// whose first cell is "[Name]" starts section Name; the next row is that
// section's header. Fully empty rows are ignored.
func readSections(file io.Reader) (map[string][]row, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("workbook parser: failed to read CSV records: %w", err)
	}

	sections := make(map[string][]row)
	var currentSection string
	var currentHeader []string

	for _, record := range records {
		if isEmptyRecord(record) {
			continue
		}
		first := strings.TrimSpace(record[0])
		if strings.HasPrefix(first, "[") && strings.HasSuffix(first, "]") {
			currentSection = strings.TrimSpace(first[1 : len(first)-1])
			currentHeader = nil
			if _, ok := sections[currentSection]; !ok {
				sections[currentSection] = []row{}
			}
			continue
		}
		if currentSection == "" {
			return nil, fmt.Errorf("workbook parser: data before first section marker")
		}
		if currentHeader == nil {
			currentHeader = make([]string, len(record))
			for i, h := range record {
				currentHeader[i] = strings.TrimSpace(h)
			}
			continue
		}
		r := make(row, len(currentHeader))
		for i, h := range currentHeader {
			if h == "" {
				continue
			}
			if i < len(record) {
				r[h] = record[i]
			}
		}
		sections[currentSection] = append(sections[currentSection], r)
	}

	return sections, nil
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
