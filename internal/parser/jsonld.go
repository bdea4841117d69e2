package parser

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dealerscan/internal/fetch"
	"dealerscan/internal/models"
)

var jsonLDDateKeys = []string{"datePosted", "datePublished", "dateCreated", "uploadDate"}

// vehiclesFromJSONLD implements the structured-data strategy: every
// ld+json block is decoded and walked, arrays and objects uniformly,
// collecting Car/Vehicle nodes.
func vehiclesFromJSONLD(doc *goquery.Document, baseURL string) []models.ParsedVehicle {
	var out []models.ParsedVehicle
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var value interface{}
		if err := json.Unmarshal([]byte(s.Text()), &value); err != nil {
			return // malformed block, try the next one
		}
		walkLD(value, func(obj map[string]interface{}) {
			if !isVehicleType(obj["@type"]) {
				return
			}
			if v, ok := vehicleFromLDNode(obj, baseURL); ok {
				out = append(out, v)
			}
		})
	})
	return out
}

func walkLD(value interface{}, visit func(map[string]interface{})) {
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			walkLD(item, visit)
		}
	case map[string]interface{}:
		visit(v)
		for _, item := range v {
			walkLD(item, visit)
		}
	}
}

func isVehicleType(t interface{}) bool {
	switch typ := t.(type) {
	case string:
		return strings.EqualFold(typ, "Car") || strings.EqualFold(typ, "Vehicle")
	case []interface{}:
		for _, item := range typ {
			if s, ok := item.(string); ok && isVehicleType(s) {
				return true
			}
		}
	}
	return false
}

func vehicleFromLDNode(obj map[string]interface{}, baseURL string) (models.ParsedVehicle, bool) {
	var v models.ParsedVehicle

	if vin := strings.ToUpper(ldString(obj, "vehicleIdentificationNumber", "vin")); IsValidVIN(vin) {
		v.VIN = vin
	}
	v.StockNumber = ldString(obj, "sku", "stockNumber")

	v.Year = ldYear(obj)
	v.Make = titleCase(ldName(obj["brand"]))
	if v.Make == "" {
		v.Make = titleCase(ldName(obj["manufacturer"]))
	}
	if canonical, _ := findMake(v.Make); canonical != "" {
		v.Make = canonical
	}
	v.Model = titleCase(ldName(obj["model"]))
	v.Trim = ldString(obj, "vehicleConfiguration")
	v.Color = titleCase(ldString(obj, "color"))

	v.Price = ldPrice(obj["offers"])
	v.Mileage = ldMileage(obj["mileageFromOdometer"])

	if u := ldString(obj, "url"); u != "" {
		v.URL = resolveOrKeep(u, baseURL)
	}
	if img := ldFirstString(obj["image"]); img != "" {
		v.ImageURL = resolveOrKeep(img, baseURL)
		v.ImageURLs = []string{v.ImageURL}
	}
	for _, key := range jsonLDDateKeys {
		if d, ok := obj[key].(string); ok && d != "" {
			v.ListingDate = d
			break
		}
	}

	// Fall back to the name field for year/make/model, e.g.
	// "2020 Honda Accord EX-L".
	if name := ldString(obj, "name"); name != "" {
		if v.Year == 0 {
			v.Year = extractYear(name)
		}
		if v.Make == "" {
			if mk, end := findMake(name); mk != "" {
				v.Make = mk
				if v.Model == "" {
					v.Model = extractModel(name, end)
				}
			}
		}
	}

	return v, isUsableVehicle(v)
}

func ldString(obj map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// ldName handles both "Honda" and {"@type":"Brand","name":"Honda"}.
func ldName(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		return ldString(v, "name")
	}
	return ""
}

func ldYear(obj map[string]interface{}) int {
	for _, key := range []string{"vehicleModelDate", "modelDate", "productionDate"} {
		raw := ""
		switch t := obj[key].(type) {
		case string:
			raw = t
		case float64:
			raw = strconv.Itoa(int(t))
		}
		if len(raw) >= 4 {
			if y, err := strconv.Atoi(raw[:4]); err == nil && y >= minYear {
				return y
			}
		}
	}
	return 0
}

// ldPrice reads offers.price from an offer object or the first element
// of an offer array.
func ldPrice(offers interface{}) int {
	switch o := offers.(type) {
	case map[string]interface{}:
		return parseLDPrice(o["price"])
	case []interface{}:
		for _, item := range o {
			if m, ok := item.(map[string]interface{}); ok {
				if p := parseLDPrice(m["price"]); p != 0 {
					return p
				}
			}
		}
	}
	return 0
}

func parseLDPrice(value interface{}) int {
	var n float64
	switch p := value.(type) {
	case float64:
		n = p
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(p)
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		n = f
	default:
		return 0
	}
	price := int(n)
	if price < minPrice || price > maxPrice {
		return 0
	}
	return price
}

func ldMileage(value interface{}) int {
	var raw interface{} = value
	if m, ok := value.(map[string]interface{}); ok {
		raw = m["value"]
	}
	var n int
	switch mv := raw.(type) {
	case float64:
		n = int(mv)
	case string:
		cleaned := strings.NewReplacer(",", "", " ", "").Replace(mv)
		i, err := strconv.Atoi(cleaned)
		if err != nil {
			return 0
		}
		n = i
	default:
		return 0
	}
	if n < 0 || n > maxMileage {
		return 0
	}
	return n
}

func ldFirstString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	case map[string]interface{}:
		return ldString(v, "url", "contentUrl")
	}
	return ""
}

func resolveOrKeep(rawurl, baseURL string) string {
	if baseURL == "" {
		return rawurl
	}
	if abs, err := fetch.ResolveURL(rawurl, baseURL); err == nil {
		return abs
	}
	return rawurl
}
