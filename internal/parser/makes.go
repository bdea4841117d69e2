package parser

import (
	"regexp"
	"strings"
)

// knownMakes is the closed list used for make detection and link
// heuristics. Entries are in canonical casing.
var knownMakes = []string{
	"Acura", "Alfa Romeo", "Aston Martin", "Audi", "Bentley", "BMW", "Buick",
	"Cadillac", "Chevrolet", "Chrysler", "Dodge", "Ferrari", "Fiat", "Ford",
	"Genesis", "GMC", "Honda", "Hummer", "Hyundai", "Infiniti", "Jaguar",
	"Jeep", "Kia", "Lamborghini", "Land Rover", "Lexus", "Lincoln", "Lucid",
	"Maserati", "Mazda", "McLaren", "Mercedes-Benz", "Mini", "Mitsubishi",
	"Nissan", "Polestar", "Pontiac", "Porsche", "Ram", "Rivian", "Rolls-Royce",
	"Saturn", "Scion", "Smart", "Subaru", "Suzuki", "Tesla", "Toyota",
	"Volkswagen", "Volvo",
}

// makeAliases maps shorthand spellings to canonical makes.
var makeAliases = map[string]string{
	"Chevy":     "Chevrolet",
	"VW":        "Volkswagen",
	"Mercedes":  "Mercedes-Benz",
	"Benz":      "Mercedes-Benz",
	"Landrover": "Land Rover",
}

type makePattern struct {
	re        *regexp.Regexp
	canonical string
}

var makePatterns = buildMakePatterns()

func buildMakePatterns() []makePattern {
	var out []makePattern
	add := func(name, canonical string) {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		out = append(out, makePattern{re: re, canonical: canonical})
	}
	for _, m := range knownMakes {
		add(m, m)
	}
	for alias, canonical := range makeAliases {
		add(alias, canonical)
	}
	return out
}

// findMake returns the canonical make whose mention appears earliest in
// text, and the index right after that mention (for model capture).
func findMake(text string) (string, int) {
	best := ""
	bestStart := -1
	bestEnd := -1
	for _, p := range makePatterns {
		loc := p.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestStart == -1 || loc[0] < bestStart {
			best = p.canonical
			bestStart = loc[0]
			bestEnd = loc[1]
		}
	}
	return best, bestEnd
}

// containsMake reports whether any known make or alias appears in text.
func containsMake(text string) bool {
	m, _ := findMake(text)
	return m != ""
}

var knownColors = []string{
	"black", "white", "silver", "gray", "grey", "red", "blue", "green",
	"brown", "beige", "tan", "gold", "orange", "yellow", "purple", "maroon",
	"burgundy", "charcoal", "pearl", "champagne",
}

var modelStopwords = map[string]bool{
	"for": true, "sale": true, "certified": true, "pre": true,
	"owned": true, "used": true, "new": true,
	// Label words that follow the title on detail pages.
	"vin": true, "stock": true, "price": true, "miles": true,
	"mileage": true, "color": true, "exterior": true, "interior": true,
}

// titleCase normalizes shouting or lowercase text word by word.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = capitalizeHyphenated(w)
	}
	return strings.Join(words, " ")
}

func capitalizeHyphenated(w string) string {
	parts := strings.Split(w, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}
