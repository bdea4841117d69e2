// Decodes a VIN against the configured decode service and prints the
// result. Handy for checking what the enrichment step would add for a
// specific car.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"dealerscan/internal/parser"
	"dealerscan/internal/vindecode"
)

func main() {
	flag.Parse()
	vin := strings.ToUpper(strings.TrimSpace(flag.Arg(0)))
	if vin == "" {
		log.Fatal("usage: decode_vin <vin>")
	}
	if !parser.IsValidVIN(vin) {
		log.Fatalf("%q is not a valid 17-character VIN", vin)
	}

	_ = godotenv.Load()
	baseURL := os.Getenv("VIN_DECODE_URL")
	if baseURL == "" {
		baseURL = "https://vpic.nhtsa.dot.gov/api/vehicles"
	}

	dec, err := vindecode.NewClient(baseURL).Decode(context.Background(), vin)
	if err != nil {
		log.Fatalf("decode failed: %v", err)
	}
	fmt.Printf("VIN:   %s\n", vin)
	fmt.Printf("Year:  %d\n", dec.Year)
	fmt.Printf("Make:  %s\n", dec.Make)
	fmt.Printf("Model: %s\n", dec.Model)
	fmt.Printf("Trim:  %s\n", dec.Trim)
}
