package formatter

import (
	"testing"

	"github.com/alexanderramin/crq/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestTallyBar(t *testing.T) {
	tests := []struct {
		name  string
		tally domain.CABTally
		width int
		want  string
	}{
		{"nothing approved", domain.CABTally{Pending: 3}, 6, "[░░░░░░] 0/3"},
		{"one of three", domain.CABTally{Pending: 2, Approved: 1}, 6, "[██░░░░] 1/3"},
		{"cleared", domain.CABTally{Approved: 2}, 4, "[████] 2/2"},
		{"empty board", domain.CABTally{}, 4, "[░░░░] 0/0"},
		{"tiny width clamps to 2", domain.CABTally{Pending: 1, Approved: 1}, 1, "[█░] 1/2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripANSI(TallyBar(tt.tally, tt.width))
			assert.Equal(t, tt.want, got)
		})
	}
}
