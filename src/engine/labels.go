// backend/src/engine/labels.go
package engine

import (
	"strconv"
	"strings"

	"github.com/username/capsim/backend/src/models"
)

// Labels is the injected formatting and naming strategy for human-readable
// output (waterfall calculation logs, instrument names in capitalization
// views). The numeric algorithms are language-independent; only the strings
// they emit go through a Labels instance.
type Labels struct {
	ConvertibleLoan string
	DebtInstrument  string

	Equity string
	Hybrid string
	Debt   string

	seniorities map[models.Seniority]string

	groupSep     string
	decimalSep   string
	symbolBefore bool
}

func EnglishLabels() *Labels {
	return &Labels{
		ConvertibleLoan: "Convertible Instrument",
		DebtInstrument:  "Debt Instrument",
		Equity:          "Equity",
		Hybrid:          "Hybrid",
		Debt:            "Debt",
		seniorities: map[models.Seniority]string{
			models.SenioritySeniorSecured:   "Senior Secured",
			models.SenioritySeniorUnsecured: "Senior Unsecured",
			models.SenioritySubordinated:    "Subordinated",
		},
		groupSep:     ",",
		decimalSep:   ".",
		symbolBefore: true,
	}
}

func GermanLabels() *Labels {
	return &Labels{
		ConvertibleLoan: "Wandelinstrument",
		DebtInstrument:  "Darlehen",
		Equity:          "Eigenkapital",
		Hybrid:          "Hybrid",
		Debt:            "Fremdkapital",
		seniorities: map[models.Seniority]string{
			models.SenioritySeniorSecured:   "Besichert (Senior)",
			models.SenioritySeniorUnsecured: "Unbesichert (Senior)",
			models.SenioritySubordinated:    "Nachrangig",
		},
		groupSep:     ".",
		decimalSep:   ",",
		symbolBefore: false,
	}
}

// LabelsFor maps a language code to a label set, defaulting to English.
func LabelsFor(language string) *Labels {
	if strings.EqualFold(language, "de") {
		return GermanLabels()
	}
	return EnglishLabels()
}

// Seniority returns the localized seniority name, falling back to the raw
// value for unknown seniorities.
func (l *Labels) Seniority(s models.Seniority) string {
	if name, ok := l.seniorities[s]; ok {
		return name
	}
	return string(s)
}

// Currency formats an EUR amount with two decimals and digit grouping,
// e.g. "€1,234,567.89" (en) or "1.234.567,89 €" (de).
func (l *Labels) Currency(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	s := strconv.FormatFloat(v, 'f', 2, 64)
	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if l.symbolBefore {
		b.WriteString("€")
	}
	b.WriteString(groupDigits(intPart, l.groupSep))
	b.WriteString(l.decimalSep)
	b.WriteString(fracPart)
	if !l.symbolBefore {
		b.WriteString(" €")
	}
	return b.String()
}

// Integer formats a share or vote count with digit grouping.
func (l *Labels) Integer(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := groupDigits(strconv.FormatInt(n, 10), l.groupSep)
	if neg {
		return "-" + s
	}
	return s
}

func groupDigits(digits, sep string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
