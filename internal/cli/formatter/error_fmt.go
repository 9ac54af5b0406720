package formatter

import (
	"github.com/alexanderramin/crq/internal/domain"
)

var kindLabels = map[domain.ErrorKind]string{
	domain.KindNotFound:          "Not found",
	domain.KindInvalidTransition: "Not allowed in current status",
	domain.KindUnauthorized:      "Not authorized",
	domain.KindValidation:        "Invalid input",
	domain.KindConflict:          "Conflict",
	domain.KindInternal:          "Error",
}

// FormatError renders err with a label for its kind. Conflicts get a retry hint.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	kind := domain.KindOf(err)
	out := StyleRed.Render("✖ "+kindLabels[kind]) + " " + err.Error()
	if domain.Retryable(err) {
		out += "\n" + Dim("  The request changed while you were working on it. Run the command again.")
	}
	return out + "\n"
}
