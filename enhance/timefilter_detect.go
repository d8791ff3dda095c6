package enhance

import (
	"regexp"
	"strconv"
	"strings"
)

// timeKeywords maps a literal phrase in the query to a keyword-shaped
// TimeFilter. Entries are checked in the order listed and the first
// phrase found in the query wins.
var timeKeywords = []struct {
	phrase  string
	keyword string
}{
	{"yesterday", "yesterday"},
	{"today", "today"},
	{"this week", "this_week"},
	{"last week", "last_week"},
	{"this month", "this_month"},
	{"last month", "last_month"},
}

// relativePattern matches "last N day(s)/week(s)/month(s)".
var relativePattern = regexp.MustCompile(`(?i)last (\d+) (day|week|month)s?`)

// detectTimeFilter finds a time constraint in query using literal
// keyword phrases and a "last N units" pattern. It recognizes Relative
// and Keyword shapes; AbsoluteRange (an explicit start/end date pair)
// has no reliable plain-text heuristic and is left to the LLM path,
// which can parse calendar dates directly from the prompt.
func detectTimeFilter(query string) *TimeFilter {
	lower := strings.ToLower(query)

	if m := relativePattern.FindStringSubmatch(lower); m != nil {
		amount, err := strconv.Atoi(m[1])
		if err == nil && amount > 0 {
			return &TimeFilter{Kind: TimeFilterRelative, Unit: m[2], Amount: amount}
		}
	}

	for _, tk := range timeKeywords {
		if strings.Contains(lower, tk.phrase) {
			return &TimeFilter{Kind: TimeFilterKeyword, Keyword: tk.keyword}
		}
	}

	return nil
}
