package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvoucher/mailvoucher/internal/common"
)

func TestNormalizeDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "period separator",
			input: "1234.56",
			want:  "1234.56",
		},
		{
			name:  "comma separator",
			input: "1234,56",
			want:  "1234.56",
		},
		{
			name:  "thousands space with comma separator",
			input: "1 234,56",
			want:  "1234.56",
		},
		{
			name:  "currency suffix stripped",
			input: "319,20 kr",
			want:  "319.20",
		},
		{
			name:  "currency prefix stripped",
			input: "$42.00",
			want:  "42.00",
		},
		{
			name:  "integer",
			input: "399",
			want:  "399",
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "no digits",
			input:   "free",
			wantErr: true,
		},
		{
			name:  "comma thousands with period separator",
			input: "1,234.50",
			want:  "1234.50",
		},
		{
			name:  "period thousands with comma separator",
			input: "1.234,56",
			want:  "1234.56",
		},
		{
			name:  "repeated comma thousands",
			input: "1,234,567",
			want:  "1234567",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDecimal(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrInvalidNumber)
				return
			}
			require.NoError(t, err)
			want, err := decimal.NewFromString(tt.want)
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "got %s, want %s", got, want)
		})
	}
}

func TestNormalizeDecimal_SeparatorEquivalence(t *testing.T) {
	comma, err := NormalizeDecimal("1 234,56")
	require.NoError(t, err)

	period, err := NormalizeDecimal("1234.56")
	require.NoError(t, err)

	assert.True(t, comma.Equal(period))
}
