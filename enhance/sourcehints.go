package enhance

import "strings"

// sourceHintKeywords maps a keyword found in a query to the app_source
// it suggests narrowing the search to. A query may surface more than
// one hint (e.g. "email about the meeting" hints both mail and
// calendar); callers treat source_hints as advisory, not exclusive.
var sourceHintKeywords = map[string]string{
	"email":    "mail",
	"mail":     "mail",
	"inbox":    "mail",
	"calendar": "calendar",
	"meeting":  "calendar",
	"event":    "calendar",
	"schedule": "calendar",
	"reminder": "reminders",
	"todo":     "reminders",
	"to-do":    "reminders",
	"task":     "reminders",
	"note":     "notes",
	"notes":    "notes",
	"file":     "files",
	"document": "files",
	"pdf":      "files",
	"message":  "messages",
	"text":     "messages",
	"whatsapp": "whatsapp",
	"contact":  "contacts",
	"person":   "contacts",
}

// detectSourceHints scans query, word by word, for keywords that hint
// which ingested source(s) it concerns, preserving first-seen order and
// never repeating a hint.
func detectSourceHints(query string) []string {
	seen := make(map[string]bool)
	var hints []string
	for _, w := range strings.Fields(query) {
		clean := strings.ToLower(strings.Trim(w, ".,!?;:\"'()"))
		source, ok := sourceHintKeywords[clean]
		if !ok || seen[source] {
			continue
		}
		seen[source] = true
		hints = append(hints, source)
	}
	return hints
}
