// Package terms holds the curated vocabulary of domain-significant terms
// whose appearance or disappearance in a text diff is independently
// meaningful to scoring. This is configuration data: edit the list, not the
// scanning code.
package terms

import "strings"

var KeyTerms = []string{
	"adaptation",
	"agency mission",
	"air quality",
	"anthropogenic",
	"benefits",
	"brownfield",
	"clean energy",
	"climate",
	"compliance",
	"cost-effective",
	"costs",
	"deregulatory",
	"droughts",
	"economic certainty",
	"economic impacts",
	"economics",
	"efficiency",
	"emissions",
	"endangered species",
	"energy independence",
	"enforcement",
	"environmental justice",
	"federal customer",
	"fossil fuels",
	"fracking",
	"global warming",
	"glyphosate",
	"greenhouse gases",
	"horizontal drilling",
	"hydraulic fracturing",
	"impacts",
	"innovation",
	"jobs",
	"mercury",
	"methane",
	"pesticides",
	"pollution",
	"precautionary",
	"regulatory certainty",
	"resilience",
	"risk",
	"safe",
	"safety",
	"sensible regulations",
	"storms",
	"sustainability",
	"toxic",
	"transparency",
	"unconventional gas",
	"unconventional oil",
	"water quality",
	"wildfires",
	"state",
	"certainty",
	"proceeding",
	"opinion",
	"federal register",
	"guidance",
}

// MaxGrams is the word count of the longest configured term; the n-gram
// scanner never needs to look at longer windows.
var MaxGrams = func() int {
	max := 1
	for _, term := range KeyTerms {
		if n := len(strings.Split(term, " ")); n > max {
			max = n
		}
	}
	return max
}()

var keyTermSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(KeyTerms))
	for _, term := range KeyTerms {
		set[term] = struct{}{}
	}
	return set
}()

// IsKeyTerm reports whether the (already normalized, lower-case) n-gram is a
// configured key term.
func IsKeyTerm(gram string) bool {
	_, ok := keyTermSet[gram]
	return ok
}
