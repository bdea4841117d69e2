package listingdate

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var jsonLDDateKeys = []string{"datePosted", "datePublished", "dateCreated", "uploadDate"}

// dateFromJSONLD scans ld+json blocks for a Car/Vehicle node carrying a
// posted/published date.
func dateFromJSONLD(doc *goquery.Document) (time.Time, bool) {
	var found time.Time
	ok := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var value interface{}
		if err := json.Unmarshal([]byte(s.Text()), &value); err != nil {
			return true // skip malformed block
		}
		walkJSONLD(value, func(obj map[string]interface{}) bool {
			if !isVehicleNode(obj) {
				return true
			}
			for _, key := range jsonLDDateKeys {
				if raw, exists := obj[key].(string); exists {
					if t, parsed := parseFlexibleDate(raw); parsed {
						found, ok = t, true
						return false
					}
				}
			}
			return true
		})
		return !ok
	})
	return found, ok
}

// walkJSONLD visits every object in a decoded JSON value, descending
// into arrays and nested objects uniformly. visit returns false to stop.
func walkJSONLD(value interface{}, visit func(map[string]interface{}) bool) bool {
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if !walkJSONLD(item, visit) {
				return false
			}
		}
	case map[string]interface{}:
		if !visit(v) {
			return false
		}
		for _, item := range v {
			if !walkJSONLD(item, visit) {
				return false
			}
		}
	}
	return true
}

func isVehicleNode(obj map[string]interface{}) bool {
	switch t := obj["@type"].(type) {
	case string:
		return isVehicleType(t)
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && isVehicleType(s) {
				return true
			}
		}
	}
	return false
}

func isVehicleType(t string) bool {
	t = strings.TrimSpace(t)
	return strings.EqualFold(t, "Car") || strings.EqualFold(t, "Vehicle")
}
