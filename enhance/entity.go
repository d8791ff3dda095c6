package enhance

import "strings"

// EntityType classifies a named entity extracted from a query.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityTopic        EntityType = "topic"
	EntityLocation     EntityType = "location"
	EntityOrganization EntityType = "organization"
)

// Entity is one named thing a query references, typed so a caller can
// route it (e.g. a person entity narrows a contacts lookup, a location
// entity narrows an events/messages lookup) instead of treating every
// entity as an opaque string.
type Entity struct {
	Type  EntityType `json:"type"`
	Value string     `json:"value"`
}

// orgSuffixes flags a capitalized phrase as an organization by its
// trailing legal-entity marker.
var orgSuffixes = []string{"Inc", "Inc.", "Corp", "Corp.", "LLC", "Ltd", "Company", "Co."}

// locationPrepositions are the words that, immediately preceding a
// capitalized phrase, suggest it names a place rather than a person.
var locationPrepositions = map[string]bool{
	"in": true, "at": true, "near": true, "from": true, "to": true,
}

// classifyEntity assigns a coarse type to phrase, using its surrounding
// context in query. This is a heuristic, not real NER: legal-entity
// suffixes win first, then a preceding location preposition, then
// phrase shape (a two-or-more capitalized-word run reads as a person's
// name), falling back to "topic" for everything else (single
// capitalized words, quoted phrases) — a deliberately coarse default
// since the NLP fallback path has no real classifier to fall back on.
func classifyEntity(phrase, query string) EntityType {
	if words := strings.Fields(phrase); len(words) > 0 {
		last := words[len(words)-1]
		for _, suf := range orgSuffixes {
			if last == suf {
				return EntityOrganization
			}
		}
	}

	if idx := strings.Index(query, phrase); idx > 0 {
		before := strings.Fields(query[:idx])
		if len(before) > 0 {
			last := strings.ToLower(strings.Trim(before[len(before)-1], ".,!?;:\"'()"))
			if locationPrepositions[last] {
				return EntityLocation
			}
		}
	}

	if len(strings.Fields(phrase)) >= 2 {
		return EntityPerson
	}
	return EntityTopic
}
