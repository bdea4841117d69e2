package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	minPrice   = 1_000
	maxPrice   = 500_000
	maxMileage = 999_998
	minYear    = 1980
)

var (
	labeledVINRe = regexp.MustCompile(`(?i)\bVIN\b[:#\s]*([A-HJ-NPR-Z0-9\s\-]{17,25})`)
	attrVINRe    = regexp.MustCompile(`(?i)(?:data-)?vin["']?\s*[:=]\s*["']?([A-HJ-NPR-Z0-9]{17})\b`)
	bareVINRe    = regexp.MustCompile(`\b([A-HJ-NPR-Z0-9]{17})\b`)
	vinShapeRe   = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

	labeledStockRe = regexp.MustCompile(`(?i:\bstock\b)[#:\s]+([A-Z0-9\-]{3,})`)
	hashStockRe    = regexp.MustCompile(`#([A-Z0-9\-]{3,})\b`)

	yearRe = regexp.MustCompile(`\b(19\d{2}|20[0-3]\d)\b`)

	priceRe   = regexp.MustCompile(`(?i)(?:price[:\s]*)?\$\s?(\d[\d,]*)`)
	mileageRe = regexp.MustCompile(`(?i)\b(\d[\d,\.]*)\s*(?:mi|miles|km)\b`)
	odoRe     = regexp.MustCompile(`(?i)\bmileage[:\s]+(\d[\d,\.]*)`)

	labeledColorRe = regexp.MustCompile(`(?i)(?:exterior\s+)?colou?r[:\s]+([A-Za-z ]{3,24})`)

	modelCaptureRe = regexp.MustCompile(`^[\s:\-–]*([A-Za-z0-9][A-Za-z0-9 \-\.]{0,30})`)
)

// IsValidVIN reports a 17-character VIN over the alphabet that excludes
// I, O, and Q.
func IsValidVIN(vin string) bool {
	return vinShapeRe.MatchString(vin)
}

// extractVIN prefers labeled mentions, then attribute values in the raw
// HTML, then a bare 17-character token in the text.
func extractVIN(text, html string) string {
	if m := labeledVINRe.FindStringSubmatch(text); m != nil {
		candidate := strings.ToUpper(strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(m[1]))
		if len(candidate) >= 17 {
			candidate = candidate[:17]
		}
		if IsValidVIN(candidate) {
			return candidate
		}
	}
	if m := attrVINRe.FindStringSubmatch(html); m != nil {
		vin := strings.ToUpper(m[1])
		if IsValidVIN(vin) {
			return vin
		}
	}
	if m := bareVINRe.FindStringSubmatch(text); m != nil {
		vin := strings.ToUpper(m[1])
		if IsValidVIN(vin) {
			return vin
		}
	}
	return ""
}

func extractStock(text string) string {
	if m := labeledStockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimRight(m[1], "-")
	}
	if m := hashStockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimRight(m[1], "-")
	}
	return ""
}

func extractYear(text string) int {
	m := yearRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	if year < minYear || year > time.Now().Year()+1 {
		return 0
	}
	return year
}

// extractModel captures the words after the make mention, stopping at
// stopwords and delimiters.
func extractModel(text string, afterMake int) string {
	if afterMake < 0 || afterMake >= len(text) {
		return ""
	}
	m := modelCaptureRe.FindStringSubmatch(text[afterMake:])
	if m == nil {
		return ""
	}
	var kept []string
	for _, word := range strings.Fields(m[1]) {
		if modelStopwords[strings.ToLower(word)] {
			break
		}
		// A purely numeric word means we ran into mileage or price.
		if isNumericWord(word) {
			break
		}
		kept = append(kept, word)
		if len(kept) == 3 {
			break
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return titleCase(strings.Join(kept, " "))
}

func extractPrice(text string) int {
	for _, m := range priceRe.FindAllStringSubmatch(text, 5) {
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		if n >= minPrice && n <= maxPrice {
			return n
		}
	}
	return 0
}

func extractMileage(text string) int {
	for _, re := range []*regexp.Regexp{mileageRe, odoRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			raw := strings.NewReplacer(",", "", ".", "").Replace(m[1])
			n, err := strconv.Atoi(raw)
			if err != nil {
				continue
			}
			if n >= 0 && n <= maxMileage {
				return n
			}
		}
	}
	return 0
}

func extractColor(text string) string {
	if m := labeledColorRe.FindStringSubmatch(text); m != nil {
		candidate := strings.ToLower(strings.TrimSpace(m[1]))
		for _, c := range knownColors {
			if strings.HasPrefix(candidate, c) {
				return titleCase(c)
			}
		}
	}
	// Unlabeled: earliest vocabulary mention in the text wins.
	lower := strings.ToLower(text)
	best := ""
	bestPos := -1
	for _, c := range knownColors {
		pos := strings.Index(lower, c)
		if pos < 0 || !isWordBoundary(lower, pos, len(c)) {
			continue
		}
		if bestPos == -1 || pos < bestPos {
			best, bestPos = c, pos
		}
	}
	if best == "" {
		return ""
	}
	return titleCase(best)
}

func isNumericWord(word string) bool {
	hasDigit := false
	for i := 0; i < len(word); i++ {
		switch {
		case word[i] >= '0' && word[i] <= '9':
			hasDigit = true
		case word[i] == ',' || word[i] == '.' || word[i] == '$':
		default:
			return false
		}
	}
	return hasDigit
}

func isWordBoundary(s string, pos, length int) bool {
	before := pos == 0 || !isAlnum(s[pos-1])
	after := pos+length >= len(s) || !isAlnum(s[pos+length])
	return before && after
}

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
