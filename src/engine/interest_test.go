package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccruedInterest(t *testing.T) {
	t.Run("one regular year", func(t *testing.T) {
		// 365 days against the 365.25-day average year.
		got := AccruedInterest(150000, 0.06, "2023-01-01", "2024-01-01")
		assert.InDelta(t, 150000*0.06*365/365.25, got, 0.01)
	})

	t.Run("one leap year", func(t *testing.T) {
		got := AccruedInterest(150000, 0.06, "2024-01-01", "2025-01-01")
		assert.InDelta(t, 150000*0.06*366/365.25, got, 0.01)
	})

	t.Run("same day accrues nothing", func(t *testing.T) {
		assert.Zero(t, AccruedInterest(100000, 0.08, "2023-05-01", "2023-05-01"))
	})

	t.Run("as-of before start accrues nothing", func(t *testing.T) {
		assert.Zero(t, AccruedInterest(100000, 0.08, "2023-05-01", "2022-05-01"))
	})

	t.Run("zero rate", func(t *testing.T) {
		assert.Zero(t, AccruedInterest(100000, 0, "2020-01-01", "2024-01-01"))
	})

	t.Run("unparseable dates degrade to zero", func(t *testing.T) {
		assert.Zero(t, AccruedInterest(100000, 0.08, "not-a-date", "2024-01-01"))
		assert.Zero(t, AccruedInterest(100000, 0.08, "2023-01-01", ""))
	})
}
