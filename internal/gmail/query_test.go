package gmail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mailvoucher/mailvoucher/internal/model"
)

func TestBuildQuery(t *testing.T) {
	since := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rule model.Rule
		want string
	}{
		{
			name: "sender and date",
			rule: model.Rule{Sender: "billing@example.com"},
			want: "after:2024/03/15 from:(billing@example.com)",
		},
		{
			name: "date only",
			rule: model.Rule{Subject: "Receipt"},
			want: "after:2024/03/15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.rule, since))
		})
	}
}

func TestSinceMonthsBack(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), SinceMonthsBack(now, 3))
	// Non-positive values fall back to one month.
	assert.Equal(t, time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC), SinceMonthsBack(now, 0))
}
