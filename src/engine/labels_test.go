package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/username/capsim/backend/src/models"
)

func TestLabelsFor(t *testing.T) {
	assert.Equal(t, "Convertible Instrument", LabelsFor("en").ConvertibleLoan)
	assert.Equal(t, "Wandelinstrument", LabelsFor("de").ConvertibleLoan)
	assert.Equal(t, "Wandelinstrument", LabelsFor("DE").ConvertibleLoan)
	assert.Equal(t, "Convertible Instrument", LabelsFor("").ConvertibleLoan)
	assert.Equal(t, "Convertible Instrument", LabelsFor("fr").ConvertibleLoan)
}

func TestLabelsCurrency(t *testing.T) {
	en := EnglishLabels()
	de := GermanLabels()

	assert.Equal(t, "€1,234,567.89", en.Currency(1234567.89))
	assert.Equal(t, "1.234.567,89 €", de.Currency(1234567.89))
	assert.Equal(t, "€0.00", en.Currency(0))
	assert.Equal(t, "-€500.50", en.Currency(-500.5))
	assert.Equal(t, "€12.00", en.Currency(12))
}

func TestLabelsInteger(t *testing.T) {
	en := EnglishLabels()
	de := GermanLabels()

	assert.Equal(t, "1,000,000", en.Integer(1000000))
	assert.Equal(t, "1.000.000", de.Integer(1000000))
	assert.Equal(t, "999", en.Integer(999))
	assert.Equal(t, "-42,000", en.Integer(-42000))
}

func TestLabelsSeniority(t *testing.T) {
	en := EnglishLabels()
	assert.Equal(t, "Senior Secured", en.Seniority(models.SenioritySeniorSecured))
	assert.Equal(t, "Subordinated", en.Seniority(models.SenioritySubordinated))
	assert.Equal(t, "EXOTIC", en.Seniority(models.Seniority("EXOTIC")))
}
