package repository

import (
	"encoding/json"
	"testing"
)

func TestSanitizeJSONB(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want interface{}
	}{
		{name: "clean", in: `{"make":"Honda"}`, want: `{"make":"Honda"}`},
		{name: "escaped null", in: `{"model":"Civ\u0000ic"}`, want: `{"model":"Civic"}`},
		{name: "raw null byte", in: "{\"trim\":\"EX\x00\"}", want: `{"trim":"EX"}`},
		{name: "empty", in: "", want: nil},
		{name: "broken json", in: `{"make":`, want: nil},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := sanitizeJSONB(json.RawMessage(tc.in))
			if tc.want == nil {
				if got != nil {
					t.Fatalf("sanitizeJSONB(%q) = %q, want nil", tc.in, got)
				}
				return
			}
			b, ok := got.([]byte)
			if !ok || string(b) != tc.want {
				t.Fatalf("sanitizeJSONB(%q) = %v, want %q", tc.in, got, tc.want)
			}
		})
	}
}
