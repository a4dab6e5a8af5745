package viewer

import (
	"fmt"

	"live-caption-service/internal/models"
)

// FormatLine renders a settled line for the terminal using its best branch.
func FormatLine(sessionID string, line models.LineDocument) string {
	text := ""
	if len(line.Branches) > 0 {
		b := line.Branches[0]
		text = b.Text
		if b.Error != "" {
			text = fmt.Sprintf("[%s] %s", b.Error, b.Text)
		}
		if line.Translated && b.Lang != "" {
			text = fmt.Sprintf("(%s) %s", b.Lang, text)
		}
	}
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s %s #%d %-9s %s", short, line.When, line.Index, line.Class, text)
}
