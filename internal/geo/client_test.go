package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleBody = `callback({"country_code":"DE","country_name":"Germany","city":"frankfurt am main","postal":"60313","latitude":50.1109,"longitude":8.6821,"IPv4":"185.220.101.4","state":"Hesse"})`

func TestStripJSONP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"callback wrapper", `callback({"a":1})`, `{"a":1}`, false},
		{"trailing semicolon and newline", "callback({\"a\":1});\n", `{"a":1}`, false},
		{"no prefix", `({"a":1})`, `{"a":1}`, false},
		{"no parenthesis", `{"a":1}`, "", true},
		{"empty payload", `callback()`, "", true},
		{"empty body", ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := StripJSONP([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("expected ErrMalformedResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("StripJSONP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("full record", func(t *testing.T) {
		t.Parallel()

		loc, err := Parse([]byte(sampleBody))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loc.CountryCode != "DE" || loc.IPv4 != "185.220.101.4" || loc.Postal != "60313" {
			t.Errorf("unexpected location: %+v", loc)
		}
		if !loc.HasPosition() || loc.Latitude.Value != 50.1109 || loc.Longitude.Value != 8.6821 {
			t.Errorf("unexpected position: %+v / %+v", loc.Latitude, loc.Longitude)
		}
	})

	t.Run("not found coordinates", func(t *testing.T) {
		t.Parallel()

		loc, err := Parse([]byte(`callback({"country_code":"Not found","country_name":"Not found","city":"Not found","postal":"Not found","latitude":"Not found","longitude":"Not found","IPv4":"10.0.0.1","state":"Not found"})`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loc.HasPosition() {
			t.Error("expected no position")
		}
		if loc.Geohash(5) != "" {
			t.Errorf("Geohash() = %q, expected empty", loc.Geohash(5))
		}
		if loc.String() != "unknown location" {
			t.Errorf("String() = %q", loc.String())
		}
	})

	t.Run("numeric string coordinates", func(t *testing.T) {
		t.Parallel()

		loc, err := Parse([]byte(`cb({"latitude":"37.7749","longitude":"-122.4194"})`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := loc.Geohash(5); got != "9q8yy" {
			t.Errorf("Geohash(5) = %q, want %q", got, "9q8yy")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		t.Parallel()

		if _, err := Parse([]byte(`callback({"country_code":)`)); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})
}

func TestLocationString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		loc  Location
		want string
	}{
		{
			name: "city is title cased",
			loc:  Location{City: "frankfurt am main", State: "Hesse", CountryName: "Germany", CountryCode: "DE"},
			want: "Frankfurt Am Main, Hesse, Germany (DE)",
		},
		{
			name: "country only",
			loc:  Location{CountryName: "Netherlands", CountryCode: "NL"},
			want: "Netherlands (NL)",
		},
		{
			name: "country code only",
			loc:  Location{CountryCode: "SE"},
			want: "SE",
		},
		{
			name: "nothing known",
			loc:  Location{},
			want: "unknown location",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.loc.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientLookup(t *testing.T) {
	t.Parallel()

	t.Run("requests the jsonp path", func(t *testing.T) {
		t.Parallel()

		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			_, _ = w.Write([]byte(sampleBody))
		}))
		defer server.Close()

		client := NewClient(server.Client(), WithBaseURL(server.URL+"/"))
		loc, err := client.Lookup(context.Background(), "185.220.101.4")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotPath != "/jsonp/185.220.101.4" {
			t.Errorf("path = %q, want %q", gotPath, "/jsonp/185.220.101.4")
		}
		if !strings.HasPrefix(loc.String(), "Frankfurt Am Main") {
			t.Errorf("String() = %q", loc.String())
		}
	})

	t.Run("non-200 status", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		client := NewClient(server.Client(), WithBaseURL(server.URL))
		if _, err := client.Lookup(context.Background(), "1.2.3.4"); !errors.Is(err, ErrUnexpectedStatus) {
			t.Errorf("expected ErrUnexpectedStatus, got %v", err)
		}
	})

	t.Run("body without wrapper", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"country_code":"DE"}`))
		}))
		defer server.Close()

		client := NewClient(server.Client(), WithBaseURL(server.URL))
		if _, err := client.Lookup(context.Background(), "1.2.3.4"); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("service unreachable", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		base := server.URL
		server.Close()

		client := NewClient(nil, WithBaseURL(base))
		if _, err := client.Lookup(context.Background(), "1.2.3.4"); !errors.Is(err, ErrLookupFailed) {
			t.Errorf("expected ErrLookupFailed, got %v", err)
		}
	})

	t.Run("empty address", func(t *testing.T) {
		t.Parallel()

		client := NewClient(nil)
		if _, err := client.Lookup(context.Background(), "  "); !errors.Is(err, ErrEmptyAddress) {
			t.Errorf("expected ErrEmptyAddress, got %v", err)
		}
	})
}
