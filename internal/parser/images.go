package parser

import (
	"regexp"
	"strconv"
	"strings"

	"dealerscan/internal/fetch"
)

var (
	imgTagRe     = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	srcAttrRe    = regexp.MustCompile(`(?i)\bsrc\s*=\s*["']([^"']+)["']`)
	widthAttrRe  = regexp.MustCompile(`(?i)\bwidth\s*=\s*["']?(\d+)`)
	heightAttrRe = regexp.MustCompile(`(?i)\bheight\s*=\s*["']?(\d+)`)

	decorativeImageRe = regexp.MustCompile(
		`(?i)logo|icon|badge|social|nav|header|footer|banner|button|avatar|placeholder`)
)

const maxImagesPerVehicle = 12

// extractImages returns listing photo URLs from a container's HTML,
// resolved against baseURL. Decorative assets are filtered out: by URL
// keyword, by SVG/GIF extension, and by a declared width or height
// under 100 pixels. An image with no declared dimensions is kept.
func extractImages(html, baseURL string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tag := range imgTagRe.FindAllString(html, -1) {
		src := firstSubmatch(srcAttrRe, tag)
		if src == "" || strings.HasPrefix(src, "data:") {
			continue
		}
		if decorativeImageRe.MatchString(src) {
			continue
		}
		if hasExtension(src, ".svg") || hasExtension(src, ".gif") {
			continue
		}
		if tooSmall(tag) {
			continue
		}
		resolved := src
		if baseURL != "" {
			if abs, err := fetch.ResolveURL(src, baseURL); err == nil {
				resolved = abs
			}
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		out = append(out, resolved)
		if len(out) == maxImagesPerVehicle {
			break
		}
	}
	return out
}

func tooSmall(tag string) bool {
	for _, re := range []*regexp.Regexp{widthAttrRe, heightAttrRe} {
		if m := re.FindStringSubmatch(tag); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n < 100 {
				return true
			}
		}
	}
	return false
}

func hasExtension(rawurl, ext string) bool {
	p := rawurl
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.HasSuffix(strings.ToLower(p), ext)
}

func firstSubmatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
