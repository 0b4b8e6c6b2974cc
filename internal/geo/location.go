package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Coordinate is a latitude or longitude. The lookup service sends a number,
// or the string "Not found" when it has no position.
type Coordinate struct {
	Value float64
	Valid bool
}

// UnmarshalJSON accepts a JSON number, a numeric string or any other string
// (which leaves the coordinate invalid).
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = Coordinate{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*c = Coordinate{}
			return nil
		}
		*c = Coordinate{Value: v, Valid: true}
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Coordinate{Value: v, Valid: true}
	return nil
}

// MarshalJSON writes the number, or null when invalid.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

// Location is the metadata returned for one address.
type Location struct {
	CountryCode string     `json:"country_code"`
	CountryName string     `json:"country_name"`
	City        string     `json:"city"`
	Postal      string     `json:"postal"`
	Latitude    Coordinate `json:"latitude"`
	Longitude   Coordinate `json:"longitude"`
	IPv4        string     `json:"IPv4"`
	State       string     `json:"state"`
}

// HasPosition reports whether both coordinates are known.
func (l *Location) HasPosition() bool {
	return l.Latitude.Valid && l.Longitude.Valid
}

// Geohash encodes the position at the given precision, or returns "" when
// the position is unknown. A precision below 1 uses DefaultPrecision.
func (l *Location) Geohash(precision int) string {
	if !l.HasPosition() {
		return ""
	}
	return Encode(l.Latitude.Value, l.Longitude.Value, precision)
}

// notFound is what the lookup service puts in fields it cannot resolve.
const notFound = "Not found"

func known(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.EqualFold(s, notFound)
}

// String returns "City, State, Country (CC)", skipping unknown parts.
func (l *Location) String() string {
	title := cases.Title(language.English)

	var parts []string
	if known(l.City) {
		parts = append(parts, title.String(strings.ToLower(l.City)))
	}
	if known(l.State) {
		parts = append(parts, l.State)
	}
	if known(l.CountryName) {
		parts = append(parts, l.CountryName)
	}

	s := strings.Join(parts, ", ")
	if known(l.CountryCode) {
		if s == "" {
			return l.CountryCode
		}
		s = fmt.Sprintf("%s (%s)", s, l.CountryCode)
	}
	if s == "" {
		return "unknown location"
	}
	return s
}
