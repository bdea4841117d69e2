package listingdate

import (
	"testing"
	"time"

	"dealerscan/internal/models"
)

func fixedResolver() *Resolver {
	r := NewResolver()
	r.now = func() time.Time { return time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

const jsonLDPage = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Car","name":"2020 Honda Accord","datePosted":"2025-05-01"}
</script>
</head><body>filler</body></html>`

func TestResolveImageFilenameWins(t *testing.T) {
	r := fixedResolver()
	v := models.ParsedVehicle{
		ImageURLs: []string{
			"https://cdn.dealer.com/IMG_20250610_front.jpg",
			"https://cdn.dealer.com/IMG_20250612_rear.jpg",
		},
	}
	// JSON-LD is present but image filenames outrank it.
	res := r.Resolve(v, jsonLDPage, nil)
	if res.Source != SourceImageFilename || res.Confidence != ConfidenceHigh {
		t.Fatalf("got %+v, want image_filename/high", res)
	}
	want := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	if !res.Date.Equal(want) {
		t.Errorf("date = %v, want %v (earliest of cluster)", res.Date, want)
	}
}

func TestResolveJSONLD(t *testing.T) {
	res := fixedResolver().Resolve(models.ParsedVehicle{}, jsonLDPage, nil)
	if res.Source != SourceJSONLD || res.Confidence != ConfidenceHigh {
		t.Fatalf("got %+v, want json_ld/high", res)
	}
	if !res.Date.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v, want 2025-05-01", res.Date)
	}
}

func TestResolveJSONLDNestedGraph(t *testing.T) {
	page := `<script type="application/ld+json">
{"@graph":[{"@type":"WebPage"},{"@type":["Product","Vehicle"],"datePublished":"2025-04-20"}]}
</script>`
	res := fixedResolver().Resolve(models.ParsedVehicle{}, page, nil)
	if res.Source != SourceJSONLD {
		t.Fatalf("got %+v, want json_ld", res)
	}
	if !res.Date.Equal(time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v, want 2025-04-20", res.Date)
	}
}

func TestResolveMetaTags(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"property ordering", `<meta property="article:published_time" content="2025-04-15T08:00:00Z">`},
		{"name ordering", `<meta name="pubdate" content="2025-04-15">`},
		{"content before name", `<meta content="2025-04-15" name="DC.date">`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := fixedResolver().Resolve(models.ParsedVehicle{}, "<html><head>"+tt.html+"</head></html>", nil)
			if res.Source != SourceMetaTag || res.Confidence != ConfidenceHigh {
				t.Fatalf("got %+v, want meta_tag/high", res)
			}
			if res.Date.Year() != 2025 || res.Date.Month() != 4 || res.Date.Day() != 15 {
				t.Errorf("date = %v, want 2025-04-15", res.Date)
			}
		})
	}
}

func TestResolveRendererDate(t *testing.T) {
	v := models.ParsedVehicle{ListingDate: "2025-03-10"}
	res := fixedResolver().Resolve(v, "", nil)
	if res.Source != SourceVisibleText || res.Confidence != ConfidenceMedium {
		t.Fatalf("got %+v, want visible_text/medium", res)
	}
	if !res.Date.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v, want 2025-03-10", res.Date)
	}
}

func TestResolveSitemap(t *testing.T) {
	paths := map[string]string{"/inventory/2021-ford-f150": "2025-07-01"}

	v := models.ParsedVehicle{URL: "https://dealer.com/inventory/2021-ford-f150"}
	res := fixedResolver().Resolve(v, "", paths)
	if res.Source != SourceSitemap || res.Confidence != ConfidenceMedium {
		t.Fatalf("exact match got %+v, want sitemap/medium", res)
	}

	// Partial match: the live URL carries an extra suffix.
	v.URL = "https://dealer.com/inventory/2021-ford-f150-4wd"
	res = fixedResolver().Resolve(v, "", map[string]string{"/inventory/2021-ford-f150-4wd-supercrew": "2025-07-02"})
	if res.Source != SourceSitemap {
		t.Fatalf("partial match got %+v, want sitemap", res)
	}
}

func TestResolveVisibleText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want time.Time
	}{
		{"month name", `<div>Listed: Nov 1, 2024</div><p>filler</p>`, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)},
		{"us date", `<span>Posted on: 06/05/2025</span>`, time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)},
		{"iso after added", `Added 2025-02-14 to our lot`, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := fixedResolver().Resolve(models.ParsedVehicle{}, tt.html, nil)
			if res.Source != SourceVisibleText || res.Confidence != ConfidenceMedium {
				t.Fatalf("got %+v, want visible_text/medium", res)
			}
			if !res.Date.Equal(tt.want) {
				t.Errorf("date = %v, want %v", res.Date, tt.want)
			}
		})
	}
}

func TestResolveFirstScanFallback(t *testing.T) {
	r := fixedResolver()
	res := r.Resolve(models.ParsedVehicle{}, "<html><body>no dates here</body></html>", nil)
	if res.Source != SourceFirstScan || res.Confidence != ConfidenceEstimated {
		t.Fatalf("got %+v, want first_scan/estimated", res)
	}
	if !res.Date.Equal(r.now()) {
		t.Errorf("date = %v, want resolver clock", res.Date)
	}
}

func TestResolveReasonablenessWindow(t *testing.T) {
	r := fixedResolver()

	// Too old (beyond three years) falls through to first_scan.
	old := `<script type="application/ld+json">{"@type":"Car","datePosted":"2019-01-01"}</script>`
	if res := r.Resolve(models.ParsedVehicle{}, old, nil); res.Source != SourceFirstScan {
		t.Errorf("stale date accepted: %+v", res)
	}

	// Too far in the future falls through as well.
	future := `<script type="application/ld+json">{"@type":"Car","datePosted":"2025-08-05"}</script>`
	if res := r.Resolve(models.ParsedVehicle{}, future, nil); res.Source != SourceFirstScan {
		t.Errorf("future date accepted: %+v", res)
	}

	// One day ahead is still inside the window.
	tomorrow := `<script type="application/ld+json">{"@type":"Car","datePosted":"2025-08-02"}</script>`
	if res := r.Resolve(models.ParsedVehicle{}, tomorrow, nil); res.Source != SourceJSONLD {
		t.Errorf("tomorrow rejected: %+v", res)
	}
}

func TestExtractImageDate(t *testing.T) {
	tests := []struct {
		name string
		urls []string
		want *time.Time
	}{
		{
			"single image rejected",
			[]string{"https://cdn.x.com/IMG_20250610.jpg"},
			nil,
		},
		{
			"cluster within window",
			[]string{"https://cdn.x.com/IMG_20250610.jpg", "https://cdn.x.com/photo_20250613.jpg"},
			timePtr(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)),
		},
		{
			"spread beyond window rejected",
			[]string{"https://cdn.x.com/IMG_20250601.jpg", "https://cdn.x.com/IMG_20250620.jpg"},
			nil,
		},
		{
			"bare date needs a marker stem",
			[]string{"https://cdn.x.com/dsc_20250610.jpg", "https://cdn.x.com/car-20250611.jpg"},
			timePtr(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)),
		},
		{
			"bare date in anonymous stem ignored",
			[]string{"https://cdn.x.com/banner_20250610.jpg", "https://cdn.x.com/header_20250611.jpg"},
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractImageDate(tt.urls)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ExtractImageDate = %v, want %v", got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("ExtractImageDate = %v, want %v", got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestParseFlexibleDate(t *testing.T) {
	good := map[string]time.Time{
		"2025-05-01":           time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		"2025-05-01T10:30:00Z": time.Date(2025, 5, 1, 10, 30, 0, 0, time.UTC),
		"05/01/2025":           time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		"May 1, 2025":          time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range good {
		got, ok := parseFlexibleDate(in)
		if !ok || !got.Equal(want) {
			t.Errorf("parseFlexibleDate(%q) = %v/%v, want %v", in, got, ok, want)
		}
	}
	for _, in := range []string{"", "soon", "13/45/2025"} {
		if _, ok := parseFlexibleDate(in); ok {
			t.Errorf("parseFlexibleDate(%q) unexpectedly parsed", in)
		}
	}
}
