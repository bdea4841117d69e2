package reconcile

import (
	"strings"
	"testing"

	"dealerscan/internal/models"
)

func TestIdentifierVIN(t *testing.T) {
	v := models.ParsedVehicle{
		VIN:         "1hgcv1f30la012345",
		StockNumber: "ABC123",
		Year:        2020, Make: "Honda", Model: "Accord",
	}
	id, ok := Identifier(v, nil)
	if !ok || id != "1HGCV1F30LA012345" {
		t.Fatalf("id = %q/%v, want uppercased VIN", id, ok)
	}
}

func TestIdentifierInvalidVINFallsThrough(t *testing.T) {
	for _, vin := range []string{"SHORT", "1HGCV1F30LA01234I", "1HGCV1F30LA0123456"} {
		v := models.ParsedVehicle{VIN: vin, StockNumber: "ABC123"}
		id, ok := Identifier(v, nil)
		if !ok || id != "STOCK_ABC123" {
			t.Errorf("VIN %q: id = %q/%v, want STOCK_ABC123", vin, id, ok)
		}
	}
}

func TestIdentifierStock(t *testing.T) {
	tests := []struct{ stock, want string }{
		{"ABC123", "STOCK_ABC123"},
		{"ha 2020", "STOCK_HA_2020"},
		{"  t-99  ", "STOCK_T-99"},
	}
	for _, tt := range tests {
		id, ok := Identifier(models.ParsedVehicle{StockNumber: tt.stock}, nil)
		if !ok || id != tt.want {
			t.Errorf("stock %q: id = %q/%v, want %q", tt.stock, id, ok, tt.want)
		}
	}
}

func TestIdentifierAttrKey(t *testing.T) {
	tests := []struct {
		name string
		v    models.ParsedVehicle
		want string
	}{
		{
			"empty trim and color keep their slots",
			models.ParsedVehicle{Year: 2021, Make: "Ford", Model: "F-150", Mileage: 28000, Price: 37000},
			"2021_FORD_F-150__28000__37000",
		},
		{
			"all attributes present",
			models.ParsedVehicle{Year: 2020, Make: "Honda", Model: "Accord", Trim: "EX-L", Mileage: 42000, Color: "Silver", Price: 23495},
			"2020_HONDA_ACCORD_EX-L_42000_SILVER_23495",
		},
		{
			"spaces become underscores",
			models.ParsedVehicle{Year: 2019, Make: "Land Rover", Model: "Range Rover", Price: 45000},
			"2019_LAND_ROVER_RANGE_ROVER____45000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := Identifier(tt.v, nil)
			if !ok || id != tt.want {
				t.Fatalf("id = %q/%v, want %q", id, ok, tt.want)
			}
		})
	}
}

func TestIdentifierCollisionSalt(t *testing.T) {
	v := models.ParsedVehicle{
		Year: 2021, Make: "Ford", Model: "F-150", Mileage: 28000, Price: 37000,
		URL: "https://example-dealer.test/inventory/f150-4wd",
	}
	base := "2021_FORD_F-150__28000__37000"

	id, ok := Identifier(v, map[string]bool{base: true})
	if !ok || id != base+"_F1504WD" {
		t.Fatalf("salted id = %q/%v", id, ok)
	}

	// Same collision without a URL gets a random 8-char salt.
	v.URL = ""
	id, ok = Identifier(v, map[string]bool{base: true})
	if !ok || !strings.HasPrefix(id, base+"_") || len(id) != len(base)+9 {
		t.Fatalf("random salt id = %q/%v", id, ok)
	}
}

func TestIdentifierSkipsThinListings(t *testing.T) {
	for _, v := range []models.ParsedVehicle{
		{},
		{Year: 2020, Price: 15000},
		{Year: 2020, Make: "Honda"},
		{Make: "Honda", Model: "Accord"},
		{URL: "https://dealer.com/inventory/1"},
	} {
		if id, ok := Identifier(v, nil); ok {
			t.Errorf("vehicle %+v: got id %q, want skip", v, id)
		}
	}
}

func TestSyntheticIdentifier(t *testing.T) {
	withStock := models.ParsedVehicle{VIN: "1FTFW1E50MKE12345", StockNumber: "F150A"}
	if got := syntheticIdentifier(withStock); got != "STOCK_F150A" {
		t.Errorf("syntheticIdentifier = %q", got)
	}

	withAttrs := models.ParsedVehicle{VIN: "1FTFW1E50MKE12345", Year: 2021, Make: "Ford", Model: "F-150", Mileage: 28000, Price: 37000}
	if got := syntheticIdentifier(withAttrs); got != "2021_FORD_F-150__28000__37000" {
		t.Errorf("syntheticIdentifier = %q", got)
	}

	vinOnly := models.ParsedVehicle{VIN: "1FTFW1E50MKE12345"}
	if got := syntheticIdentifier(vinOnly); got != "" {
		t.Errorf("syntheticIdentifier = %q, want empty", got)
	}
}

func TestURLSalt(t *testing.T) {
	tests := []struct{ url, want string }{
		{"https://example-dealer.test/inventory/f150-4wd", "F1504WD"},
		{"https://example-dealer.test/inventory/f150-4wd/", "F1504WD"},
		{"/inventory/2020-honda-accord", "2020HONDAACCORD"},
	}
	for _, tt := range tests {
		if got := urlSalt(tt.url); got != tt.want {
			t.Errorf("urlSalt(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}

	// No usable characters: random 8-char alphanumeric salt.
	got := urlSalt("")
	if len(got) != 8 {
		t.Fatalf("urlSalt(\"\") = %q, want 8 chars", got)
	}
	if other := urlSalt(""); other == got {
		t.Errorf("two random salts identical: %q", got)
	}
}
