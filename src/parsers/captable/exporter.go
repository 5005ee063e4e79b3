// backend/src/parsers/captable/exporter.go
package captable

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/username/capsim/backend/src/models"
	"github.com/username/capsim/backend/src/security/validation"
)

var slugRegex = regexp.MustCompile(`[^a-zA-Z0-9]`)

var transactionColumns = []string{
	"transactionName", "type", "date", "status", "validFrom", "validTo",
	"companyName", "legalForm", "currency",
	"investorName", "amount", "interestRate", "conversionMechanism",
	"valuationCap", "discount", "fixedConversionPrice", "ratioShares", "ratioAmount",
	"seniority", "lenderName",
	"roundName", "preMoneyValuation", "convertsLoanTransactionNames",
}

var shareClassColumns = []string{
	"transactionName", "name", "liquidationPreferenceRank", "liquidationPreferenceFactor",
	"liquidationPreferenceType", "participationCapFactor", "antiDilutionProtection", "votesPerShare",
}

var shareholdingColumns = []string{
	"transactionName", "stakeholderId", "shareClassName", "shares", "investment",
}

// Export writes a project's stakeholders and transactions as a workbook CSV
// that Parse can read back. Internal uuids never appear in the file; rows
// are linked through readable stakeholder ids and transaction names.
func Export(w io.Writer, stakeholders []models.Stakeholder, transactions []models.Transaction) error {
	userIDByInternal := buildStakeholderIDMap(stakeholders)
	txNameByID := make(map[string]string, len(transactions))
	for i, tx := range transactions {
		txNameByID[tx.Base().ID] = transactionName(tx, i)
	}

	cw := csv.NewWriter(w)

	writeSection(cw, sectionStakeholders, []string{"stakeholderId", "name"})
	for _, sh := range stakeholders {
		writeRow(cw, []string{userIDByInternal[sh.ID], sh.Name})
	}

	writeSection(cw, sectionTransactions, transactionColumns)
	var classRecords, holdingRecords [][]string

	for i, tx := range transactions {
		txName := transactionName(tx, i)
		record := make(map[string]string, len(transactionColumns))
		base := tx.Base()
		record["transactionName"] = txName
		record["type"] = string(base.Type)
		record["date"] = base.Date
		record["status"] = string(base.Status)
		record["validFrom"] = base.ValidFrom
		record["validTo"] = base.ValidTo

		switch t := tx.(type) {
		case *models.FoundingTransaction:
			record["companyName"] = t.CompanyName
			record["legalForm"] = t.LegalForm
			record["currency"] = t.Currency
			for _, sc := range t.ShareClasses {
				classRecords = append(classRecords, shareClassRecord(txName, &sc))
			}
			classByID := make(map[string]string, len(t.ShareClasses))
			for _, sc := range t.ShareClasses {
				classByID[sc.ID] = sc.Name
			}
			for _, sh := range t.Shareholdings {
				holdingRecords = append(holdingRecords, []string{
					txName, userIDByInternal[sh.StakeholderID], classByID[sh.ShareClassID],
					strconv.FormatInt(sh.Shares, 10), formatNum(sh.Investment),
				})
			}
		case *models.ConvertibleLoanTransaction:
			record["investorName"] = t.InvestorName
			record["amount"] = formatNum(t.Amount)
			record["interestRate"] = formatNum(t.InterestRate)
			record["conversionMechanism"] = string(t.ConversionMechanism)
			if t.ValuationCap != nil {
				record["valuationCap"] = formatNum(*t.ValuationCap)
			}
			record["discount"] = formatNum(t.Discount)
			record["fixedConversionPrice"] = formatNum(t.FixedConversionPrice)
			record["ratioShares"] = formatNum(t.RatioShares)
			record["ratioAmount"] = formatNum(t.RatioAmount)
			record["seniority"] = string(t.Seniority)
			// The lender link travels through a Shareholdings row so the
			// Transactions section stays free of internal ids.
			if userID := userIDByInternal[t.StakeholderID]; userID != "" {
				holdingRecords = append(holdingRecords, []string{txName, userID, "", "", ""})
			}
		case *models.FinancingRoundTransaction:
			record["roundName"] = t.RoundName
			record["preMoneyValuation"] = formatNum(t.PreMoneyValuation)
			record["convertsLoanTransactionNames"] = joinLoanNames(t.ConvertsLoanIDs, txNameByID)
			classRecords = append(classRecords, shareClassRecord(txName, &t.NewShareClass))
			for _, sh := range t.NewShareholdings {
				holdingRecords = append(holdingRecords, []string{
					txName, userIDByInternal[sh.StakeholderID], t.NewShareClass.Name,
					strconv.FormatInt(sh.Shares, 10), formatNum(sh.Investment),
				})
			}
		case *models.DebtInstrumentTransaction:
			record["lenderName"] = t.LenderName
			record["amount"] = formatNum(t.Amount)
			record["interestRate"] = formatNum(t.InterestRate)
			record["seniority"] = string(t.Seniority)
		default:
			// Parse has no reader for transfers or class amendments. Refuse
			// to write a file that could not be imported back.
			return fmt.Errorf("workbook export: transaction type %s is not exportable", base.Type)
		}

		line := make([]string, len(transactionColumns))
		for c, col := range transactionColumns {
			line[c] = record[col]
		}
		writeRow(cw, line)
	}

	writeSection(cw, sectionShareClasses, shareClassColumns)
	for _, rec := range classRecords {
		writeRow(cw, rec)
	}

	writeSection(cw, sectionShareholdings, shareholdingColumns)
	for _, rec := range holdingRecords {
		writeRow(cw, rec)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("workbook export: writing CSV: %w", err)
	}
	return nil
}

// buildStakeholderIDMap derives a readable, unique workbook id per
// stakeholder from their name.
func buildStakeholderIDMap(stakeholders []models.Stakeholder) map[string]string {
	out := make(map[string]string, len(stakeholders))
	used := make(map[string]bool, len(stakeholders))
	for _, sh := range stakeholders {
		baseName := slugRegex.ReplaceAllString(sh.Name, "-")
		userID := baseName
		for count := 1; used[userID]; count++ {
			userID = fmt.Sprintf("%s-%d", baseName, count)
		}
		used[userID] = true
		out[sh.ID] = userID
	}
	return out
}

// transactionName derives the stable workbook key for a transaction from its
// type, date and position in the log.
func transactionName(tx models.Transaction, index int) string {
	base := tx.Base()
	return fmt.Sprintf("%s-%s-%d", strings.ReplaceAll(string(base.Type), "_", "-"), base.Date, index)
}

func joinLoanNames(loanIDs []string, txNameByID map[string]string) string {
	names := make([]string, 0, len(loanIDs))
	for _, id := range loanIDs {
		if name, ok := txNameByID[id]; ok {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func shareClassRecord(txName string, sc *models.ShareClass) []string {
	capFactor := ""
	if sc.ParticipationCapFactor != nil {
		capFactor = formatNum(*sc.ParticipationCapFactor)
	}
	return []string{
		txName, sc.Name,
		strconv.Itoa(sc.LiquidationPreferenceRank), formatNum(sc.LiquidationPreferenceFactor),
		string(sc.LiquidationPreferenceType), capFactor,
		string(sc.AntiDilutionProtection), formatNum(sc.VotesPerShare),
	}
}

func formatNum(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeSection(cw *csv.Writer, name string, header []string) {
	_ = cw.Write([]string{"[" + name + "]"})
	_ = cw.Write(header)
}

func writeRow(cw *csv.Writer, fields []string) {
	// Every exported text cell is neutralized against spreadsheet formula
	// injection before it reaches a file a user may open in Excel. Numeric
	// cells are left untouched so they stay machine readable.
	sanitized := make([]string, len(fields))
	for i, f := range fields {
		if _, err := strconv.ParseFloat(f, 64); err == nil {
			sanitized[i] = f
			continue
		}
		sanitized[i] = validation.SanitizeForFormulaInjection(f)
	}
	_ = cw.Write(sanitized)
}
