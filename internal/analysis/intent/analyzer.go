// Package intent classifies tourism questions with keyword buckets.
package intent

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ceylontrails/tourchat/internal/model/chat"
)

// Label is a coarse intent of a traveller's message.
type Label string

const (
	General       Label = "general"
	Greeting      Label = "greeting"
	Attractions   Label = "attractions"
	Accommodation Label = "accommodation"
	Transport     Label = "transport"
	Food          Label = "food"
	Weather       Label = "weather"
	Culture       Label = "culture"
	Wildlife      Label = "wildlife"
	Practical     Label = "practical"
)

// Result is the outcome of Analyze.
type Result struct {
	Intent      Label
	Confidence  float64
	Score       int
	Entities    []chat.Entity
	Suggestions []string
}

var keywordBuckets = map[Label][]string{
	Greeting: {
		"hello", " hi ", " hey ", "ayubowan", "good morning", "good evening", "vanakkam", "greetings",
	},
	Attractions: {
		"visit", " see ", "attraction", "sight", "things to do", "fort", "rock", "temple", "beach",
		"viewpoint", "waterfall", "hike", "trek", "climb", "where is", "itinerary",
	},
	Accommodation: {
		"hotel", "hostel", "guesthouse", "guest house", "stay", "homestay", "villa", "resort", "room", "book a",
	},
	Transport: {
		"train", " bus ", "tuk", "taxi", "driver", "flight", "airport", "get to", "how far", "route",
		"ticket", "transfer", "uber", "pickme",
	},
	Food: {
		" eat", "food", "restaurant", "curry", "hoppers", "kottu", "vegetarian", "vegan", "dinner",
		"lunch", "breakfast", "street food", " tea ",
	},
	Weather: {
		"weather", " rain", "monsoon", "season", "best time", "temperature", " hot ", " dry ", "when to",
	},
	Culture: {
		"history", "culture", "festival", "perahera", "buddha", "dress code", "etiquette", "ancient",
		"kingdom", "heritage", "ruins", "ritual",
	},
	Wildlife: {
		"safari", "leopard", "elephant", "whale", "dolphin", "bird", "national park", "turtle", "wildlife",
	},
	Practical: {
		"visa", " eta ", "currency", "rupee", "atm", " sim ", "budget", "cost", "price", "safe", "insurance",
		"vaccin", "plug", " tip",
	},
}

// places recognised as entities, keyed by lowercase match text.
var places = map[string]string{
	"sigiriya":      "Sigiriya",
	"kandy":         "Kandy",
	"ella":          "Ella",
	"galle":         "Galle",
	"colombo":       "Colombo",
	"negombo":       "Negombo",
	"nuwara eliya":  "Nuwara Eliya",
	"adam's peak":   "Adam's Peak",
	"sri pada":      "Adam's Peak",
	"anuradhapura":  "Anuradhapura",
	"polonnaruwa":   "Polonnaruwa",
	"dambulla":      "Dambulla",
	"mirissa":       "Mirissa",
	"unawatuna":     "Unawatuna",
	"arugam bay":    "Arugam Bay",
	"trincomalee":   "Trincomalee",
	"jaffna":        "Jaffna",
	"yala":          "Yala",
	"udawalawe":     "Udawalawe",
	"horton plains": "Horton Plains",
	"minneriya":     "Minneriya",
}

var suggestionsByIntent = map[Label][]string{
	Greeting:      {"Plan a 7-day itinerary", "Best time to visit Sri Lanka", "Top places for first-timers"},
	Attractions:   {"Opening hours and tickets", "How to get there", "Nearby places to stay"},
	Accommodation: {"Budget guesthouses", "Boutique villas", "Best area to stay"},
	Transport:     {"Train timetable Kandy to Ella", "Hiring a driver", "Tuk-tuk fares"},
	Food:          {"Must-try Sri Lankan dishes", "Vegetarian options", "Cooking classes"},
	Weather:       {"Monsoon seasons by coast", "What to pack", "Best month for the hill country"},
	Culture:       {"Temple etiquette", "Festival calendar", "Cultural Triangle tour"},
	Wildlife:      {"Yala safari tips", "Whale watching in Mirissa", "Elephant gathering at Minneriya"},
	Practical:     {"ETA visa steps", "Local SIM cards", "Daily budget estimate"},
	General:       {"Plan a trip", "Popular destinations", "Travel tips"},
}

// Analyze classifies text. Confidence is in [0, 1]; messages with no
// matching keyword are General with low confidence.
func Analyze(text string) Result {
	normalized := " " + normalize(text) + " "
	entities := extractEntities(normalized)

	if strings.TrimSpace(normalized) == "" {
		return Result{Intent: General, Confidence: 0, Suggestions: SuggestionsFor(General)}
	}

	scores := make(map[Label]int)
	total := 0
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
				total += 3
			}
		}
	}

	// a named place without other cues is most likely a sightseeing question
	if len(entities) > 0 {
		scores[Attractions]++
		total++
	}
	if strings.Count(text, "?") > 0 && total > 0 {
		total++
	}

	best, bestScore := General, 0
	for _, label := range sortedLabels(scores) {
		if s := scores[label]; s > bestScore {
			best, bestScore = label, s
		}
	}

	if bestScore == 0 {
		return Result{Intent: General, Confidence: 0.3, Entities: entities, Suggestions: SuggestionsFor(General)}
	}

	confidence := 0.5 + 0.5*float64(bestScore)/float64(total)
	if confidence > 0.99 {
		confidence = 0.99
	}

	return Result{
		Intent:      best,
		Confidence:  confidence,
		Score:       bestScore,
		Entities:    entities,
		Suggestions: SuggestionsFor(best),
	}
}

func extractEntities(normalized string) []chat.Entity {
	seen := make(map[string]bool)
	var out []chat.Entity
	for _, key := range sortedKeys(places) {
		if strings.Contains(normalized, key) {
			name := places[key]
			if !seen[name] {
				seen[name] = true
				out = append(out, chat.Entity{Type: "place", Value: name})
			}
		}
	}
	return out
}

// normalize lowercases text and turns punctuation into spaces so padded
// keywords match at word boundaries.
func normalize(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' {
			return unicode.ToLower(r)
		}
		return ' '
	}, strings.TrimSpace(text))
}

// SuggestionsFor returns follow-up prompts for label.
func SuggestionsFor(label Label) []string {
	return append([]string(nil), suggestionsByIntent[label]...)
}

// ParseLabel maps a label name to a Label.
func ParseLabel(raw string) (Label, bool) {
	label := Label(strings.ToLower(strings.TrimSpace(raw)))
	if label == General {
		return General, true
	}
	if _, ok := keywordBuckets[label]; ok {
		return label, true
	}
	return "", false
}

// sortedLabels keeps ties deterministic.
func sortedLabels(scores map[Label]int) []Label {
	labels := make([]Label, 0, len(scores))
	for l := range scores {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
