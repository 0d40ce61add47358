package formula

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/model"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		vars    map[string]decimal.Decimal
		name    string
		formula string
		want    string
		wantErr error
	}{
		{
			name:    "bare variable",
			formula: "amount",
			vars:    map[string]decimal.Decimal{"amount": decimal.NewFromInt(100)},
			want:    "100.00",
		},
		{
			name:    "bare variable rounded half up",
			formula: "x",
			vars:    map[string]decimal.Decimal{"x": decimal.RequireFromString("10.005")},
			want:    "10.01",
		},
		{
			name:    "addition rounds final result half up",
			formula: "a + b",
			vars: map[string]decimal.Decimal{
				"a": decimal.RequireFromString("10.005"),
				"b": decimal.RequireFromString("0.005"),
			},
			want: "10.01",
		},
		{
			name:    "percentage literal",
			formula: "100 * 25%",
			vars:    map[string]decimal.Decimal{},
			want:    "25.00",
		},
		{
			name:    "standalone percentage",
			formula: "25%",
			vars:    map[string]decimal.Decimal{},
			want:    "0.25",
		},
		{
			name:    "vat split",
			formula: "total - total * 20%",
			vars:    map[string]decimal.Decimal{"total": decimal.RequireFromString("399.00")},
			want:    "319.20",
		},
		{
			name:    "operator precedence",
			formula: "2 + 3 * 4",
			vars:    map[string]decimal.Decimal{},
			want:    "14.00",
		},
		{
			name:    "parentheses",
			formula: "(2 + 3) * 4",
			vars:    map[string]decimal.Decimal{},
			want:    "20.00",
		},
		{
			name:    "longest variable name substituted first",
			formula: "subtotal - total",
			vars: map[string]decimal.Decimal{
				"total":    decimal.NewFromInt(10),
				"subtotal": decimal.NewFromInt(50),
			},
			want: "40.00",
		},
		{
			name:    "comma decimal separator",
			formula: "10,5 + 1",
			vars:    map[string]decimal.Decimal{},
			want:    "11.50",
		},
		{
			name:    "unary minus",
			formula: "-5 + 10",
			vars:    map[string]decimal.Decimal{},
			want:    "5.00",
		},
		{
			name:    "injection rejected by whitelist",
			formula: "__import__('os')",
			vars:    map[string]decimal.Decimal{},
			wantErr: common.ErrInvalidCharacters,
		},
		{
			name:    "unresolved variable rejected by whitelist",
			formula: "amount * 2",
			vars:    map[string]decimal.Decimal{},
			wantErr: common.ErrInvalidCharacters,
		},
		{
			name:    "division by zero",
			formula: "10 / 0",
			vars:    map[string]decimal.Decimal{},
			wantErr: common.ErrEvaluationFailed,
		},
		{
			name:    "malformed syntax",
			formula: "10 + * 2",
			vars:    map[string]decimal.Decimal{},
			wantErr: common.ErrEvaluationFailed,
		},
		{
			name:    "dangling operator",
			formula: "10 +",
			vars:    map[string]decimal.Decimal{},
			wantErr: common.ErrEvaluationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(model.FormulaAmount(tt.formula), tt.vars)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			want := dec(t, tt.want)
			assert.True(t, got.Equal(want), "got %s, want %s", got, want)
		})
	}
}

func TestEvaluate_NumberPassthrough(t *testing.T) {
	got, err := Evaluate(model.NumberAmount(decimal.RequireFromString("319.204")), nil)
	require.NoError(t, err)
	assert.Equal(t, "319.2", got.String())
}

func TestEvaluate_UnsetAmount(t *testing.T) {
	_, err := Evaluate(model.Amount{}, nil)
	assert.ErrorIs(t, err, common.ErrEvaluationFailed)
}

func TestCalculateEntries(t *testing.T) {
	vars := map[string]decimal.Decimal{
		"amount": decimal.RequireFromString("1234.50"),
	}

	templates := []model.EntryTemplate{
		{Account: "6540", Debit: model.FormulaAmount("amount"), Credit: model.NumberAmount(decimal.Zero)},
		{Account: "1930", Debit: model.NumberAmount(decimal.Zero), Credit: model.FormulaAmount("amount")},
	}

	entries := CalculateEntries(templates, vars)
	require.Len(t, entries, 2)

	assert.Equal(t, "6540", entries[0].Account)
	assert.True(t, entries[0].Debit.Equal(decimal.RequireFromString("1234.50")))
	assert.True(t, entries[0].Credit.IsZero())

	assert.Equal(t, "1930", entries[1].Account)
	assert.True(t, entries[1].Debit.IsZero())
	assert.True(t, entries[1].Credit.Equal(decimal.RequireFromString("1234.50")))

	assert.True(t, IsBalanced(entries))
}

func TestCalculateEntries_FailuresDefaultToZero(t *testing.T) {
	templates := []model.EntryTemplate{
		{Account: "6540", Debit: model.FormulaAmount("missing_var"), Credit: model.Amount{}},
	}

	entries := CalculateEntries(templates, map[string]decimal.Decimal{})
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Debit.IsZero())
	assert.True(t, entries[0].Credit.IsZero())
}

func TestCalculateEntries_Idempotent(t *testing.T) {
	vars := map[string]decimal.Decimal{"amount": decimal.NewFromInt(100)}
	templates := []model.EntryTemplate{
		{Account: "6540", Debit: model.FormulaAmount("amount * 80%"), Credit: model.NumberAmount(decimal.Zero)},
		{Account: "2641", Debit: model.FormulaAmount("amount * 20%"), Credit: model.NumberAmount(decimal.Zero)},
		{Account: "2820", Debit: model.NumberAmount(decimal.Zero), Credit: model.FormulaAmount("amount")},
	}

	first := CalculateEntries(templates, vars)
	second := CalculateEntries(templates, vars)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Account, second[i].Account)
		assert.True(t, first[i].Debit.Equal(second[i].Debit))
		assert.True(t, first[i].Credit.Equal(second[i].Credit))
	}
}

func TestTotalsAndBalance(t *testing.T) {
	entries := []model.Entry{
		{Account: "1510", Debit: decimal.NewFromInt(100), Credit: decimal.Zero},
		{Account: "3000", Debit: decimal.Zero, Credit: decimal.NewFromInt(100)},
	}

	totalDebit, totalCredit := Totals(entries)
	assert.True(t, totalDebit.Equal(decimal.NewFromInt(100)))
	assert.True(t, totalCredit.Equal(decimal.NewFromInt(100)))
	assert.True(t, IsBalanced(entries))

	entries[1].Credit = decimal.RequireFromString("99.99")
	assert.False(t, IsBalanced(entries))
}
