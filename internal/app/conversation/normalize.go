package conversation

import (
	"strings"

	"github.com/PabloGalante/gemini-chat/internal/domain"
)

// NormalizeTurns maps the chat context onto History Records.
// Only the first part of each turn is kept; a turn without parts becomes an
// empty text. dropped counts the parts that were discarded.
func NormalizeTurns(turns []domain.Turn) (records []domain.HistoryRecord, dropped int) {
	records = make([]domain.HistoryRecord, 0, len(turns))
	for _, t := range turns {
		text := ""
		if len(t.Parts) > 0 {
			text = t.Parts[0]
			dropped += len(t.Parts) - 1
		}
		records = append(records, domain.NewHistoryRecord(domain.Role(t.Role), text))
	}
	return records, dropped
}

// stripBackslashes removes every '\' from a reply before it is sent to the client.
func stripBackslashes(s string) string {
	return strings.ReplaceAll(s, `\`, "")
}
