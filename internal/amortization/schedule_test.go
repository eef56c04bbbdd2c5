package amortization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func termsFixture() Terms {
	return Terms{
		Principal:       30000,
		AnnualRate:      6.0,
		TermMonths:      60,
		OriginationDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestMonthlyPayment(t *testing.T) {
	payment, err := MonthlyPayment(termsFixture())

	require.NoError(t, err)
	assert.InDelta(t, 579.98, payment, 0.01)
}

func TestMonthlyPaymentZeroRateIsLinear(t *testing.T) {
	payment, err := MonthlyPayment(Terms{
		Principal:       12000,
		AnnualRate:      0,
		TermMonths:      12,
		OriginationDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	assert.Equal(t, 1000.0, payment)
}

func TestScheduleBalanceDeclinesToZero(t *testing.T) {
	terms := termsFixture()
	schedule, err := Schedule(terms)

	require.NoError(t, err)
	require.Len(t, schedule, terms.TermMonths)

	prev := terms.Principal
	for _, inst := range schedule {
		assert.Less(t, inst.RemainingBalance, prev, "balance must strictly decline")
		assert.GreaterOrEqual(t, inst.PrincipalPayment, 0.0)
		assert.GreaterOrEqual(t, inst.InterestPayment, 0.0)
		prev = inst.RemainingBalance
	}
	assert.Equal(t, 0.0, schedule[len(schedule)-1].RemainingBalance)
}

func TestScheduleInterestShrinksPrincipalGrows(t *testing.T) {
	schedule, err := Schedule(termsFixture())
	require.NoError(t, err)

	first, last := schedule[0], schedule[len(schedule)-1]
	assert.Greater(t, first.InterestPayment, last.InterestPayment)
	assert.Less(t, first.PrincipalPayment, last.PrincipalPayment)
}

func TestProjectBalanceBeforeOrigination(t *testing.T) {
	terms := termsFixture()
	proj, err := ProjectBalance(terms, terms.OriginationDate.AddDate(0, -1, 0))

	require.NoError(t, err)
	assert.Equal(t, terms.Principal, proj.Balance)
	assert.Equal(t, 0, proj.ElapsedPeriods)
	assert.False(t, proj.Matured)
}

func TestProjectBalanceBeforeFirstInstallment(t *testing.T) {
	terms := termsFixture()
	proj, err := ProjectBalance(terms, terms.OriginationDate.AddDate(0, 0, 10))

	require.NoError(t, err)
	assert.Equal(t, terms.Principal, proj.Balance)
	assert.Equal(t, 0, proj.ElapsedPeriods)
}

func TestProjectBalanceMidTerm(t *testing.T) {
	terms := termsFixture()
	schedule, err := Schedule(terms)
	require.NoError(t, err)

	// A day after the 12th installment the balance matches the schedule row
	asOf := schedule[11].PaymentDate.AddDate(0, 0, 1)
	proj, err := ProjectBalance(terms, asOf)

	require.NoError(t, err)
	assert.Equal(t, schedule[11].RemainingBalance, proj.Balance)
	assert.Equal(t, 12, proj.ElapsedPeriods)
	assert.False(t, proj.Matured)
}

func TestProjectBalanceAtMaturity(t *testing.T) {
	terms := termsFixture()
	proj, err := ProjectBalance(terms, terms.OriginationDate.AddDate(0, terms.TermMonths, 1))

	require.NoError(t, err)
	assert.Equal(t, 0.0, proj.Balance)
	assert.True(t, proj.Matured)
}

func TestProjectBalanceZeroRate(t *testing.T) {
	terms := Terms{
		Principal:       24000,
		AnnualRate:      0,
		TermMonths:      24,
		OriginationDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	proj, err := ProjectBalance(terms, terms.OriginationDate.AddDate(0, 10, 3))

	require.NoError(t, err)
	assert.Equal(t, 14000.0, proj.Balance)
	assert.Equal(t, 10, proj.ElapsedPeriods)
}

func TestInvalidTerms(t *testing.T) {
	origination := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		terms Terms
	}{
		{"zero principal", Terms{AnnualRate: 5, TermMonths: 12, OriginationDate: origination}},
		{"negative rate", Terms{Principal: 1000, AnnualRate: -1, TermMonths: 12, OriginationDate: origination}},
		{"zero term", Terms{Principal: 1000, AnnualRate: 5, OriginationDate: origination}},
		{"missing origination date", Terms{Principal: 1000, AnnualRate: 5, TermMonths: 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MonthlyPayment(tt.terms)
			var termsErr *InvalidTermsError
			assert.ErrorAs(t, err, &termsErr)

			_, err = ProjectBalance(tt.terms, origination)
			assert.ErrorAs(t, err, &termsErr)
		})
	}
}

func TestTotalInterest(t *testing.T) {
	schedule, err := Schedule(Terms{
		Principal:       12000,
		AnnualRate:      0,
		TermMonths:      12,
		OriginationDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, TotalInterest(schedule))
}
