package listingdate

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	labeledImageDateRe = regexp.MustCompile(`(?i)(?:img|photo)[-_]((?:19|20)\d{6})`)
	bareImageDateRe    = regexp.MustCompile(`((?:19|20)\d{6})`)
	bareStemMarkers    = []string{"img", "photo", "vehicle", "car", "dsc", "pic"}
)

// ExtractImageDate pulls a YYYYMMDD date out of image filenames.
// A date is only trusted when at least two images carry dates within a
// seven-day window; the earliest date of that cluster wins. Dealer CDNs
// stamp upload dates into filenames, so a cluster is a strong signal
// that the photos were shot for this listing.
func ExtractImageDate(imageURLs []string) *time.Time {
	var dates []time.Time
	for _, raw := range imageURLs {
		if d, ok := dateFromFilename(raw); ok {
			dates = append(dates, d)
		}
	}
	if len(dates) < 2 {
		return nil
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for i := 0; i+1 < len(dates); i++ {
		if dates[i+1].Sub(dates[i]) <= 7*24*time.Hour {
			d := dates[i]
			return &d
		}
	}
	return nil
}

func dateFromFilename(rawurl string) (time.Time, bool) {
	name := filenameOf(rawurl)
	if name == "" {
		return time.Time{}, false
	}

	if m := labeledImageDateRe.FindStringSubmatch(name); m != nil {
		return parseYYYYMMDD(m[1])
	}

	stem := strings.ToLower(strings.TrimSuffix(name, path.Ext(name)))
	for _, marker := range bareStemMarkers {
		if strings.Contains(stem, marker) {
			if m := bareImageDateRe.FindStringSubmatch(name); m != nil {
				return parseYYYYMMDD(m[1])
			}
			break
		}
	}
	return time.Time{}, false
}

func filenameOf(rawurl string) string {
	u, err := url.Parse(strings.TrimSpace(rawurl))
	if err != nil {
		return path.Base(rawurl)
	}
	return path.Base(u.Path)
}

func parseYYYYMMDD(s string) (time.Time, bool) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
