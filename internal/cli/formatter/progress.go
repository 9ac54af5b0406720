package formatter

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/crq/internal/domain"
)

const (
	filledBlock = "█"
	emptyBlock  = "░"
)

// TallyBar renders CAB progress like [██░░] 1/2. The bar turns green once
// no approvals are pending.
func TallyBar(t domain.CABTally, width int) string {
	if width < 2 {
		width = 2
	}
	total := t.Approved + t.Pending
	filled := 0
	if total > 0 {
		filled = t.Approved * width / total
	}
	filled = min(max(filled, 0), width)

	bar := strings.Repeat(filledBlock, filled) + strings.Repeat(emptyBlock, width-filled)
	style := StyleYellow
	if t.Cleared() {
		style = StyleGreen
	}
	return fmt.Sprintf("[%s] %d/%d", style.Render(bar), t.Approved, total)
}
