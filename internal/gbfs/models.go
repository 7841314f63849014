// Package gbfs provides a client for General Bikeshare Feed Specification feeds.
package gbfs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Feed names looked up in the discovery document.
const (
	FeedStationInformation = "station_information"
	FeedStationStatus      = "station_status"
)

// Feed is one entry of a discovery document feed list.
type Feed struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Discovery is the parsed gbfs.json document for a single language region.
type Discovery struct {
	LastUpdated int64
	TTL         int
	Region      string
	Feeds       []Feed
}

// Find returns the URL of the feed with exactly the given name.
func (d *Discovery) Find(name string) (string, bool) {
	for _, f := range d.Feeds {
		if f.Name == name {
			return f.URL, true
		}
	}
	return "", false
}

// StationInformation is one entry of the station_information feed.
type StationInformation struct {
	StationID ID      `json:"station_id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Capacity  int     `json:"capacity"`
	Address   *string `json:"address"`
}

// StationStatus is one entry of the station_status feed.
type StationStatus struct {
	StationID              ID           `json:"station_id"`
	NumBikesAvailable      int          `json:"num_bikes_available"`
	NumBikesAvailableTypes BikeTypeList `json:"num_bikes_available_types"`
	NumDocksAvailable      int          `json:"num_docks_available"`
	IsInstalled            Flag         `json:"is_installed"`
	IsRenting              Flag         `json:"is_renting"`
	IsReturning            Flag         `json:"is_returning"`
	LastReported           int64        `json:"last_reported"`
	Status                 string       `json:"status"`
}

// BikeTypeCounts is the per-type breakdown some operators publish
// alongside num_bikes_available.
type BikeTypeCounts struct {
	Mechanical *int `json:"mechanical"`
	Ebike      *int `json:"ebike"`
}

// BikeTypeList is the num_bikes_available_types array. Values that are not
// an array of objects decode to an empty list.
type BikeTypeList []BikeTypeCounts

// UnmarshalJSON implements json.Unmarshaler.
func (l *BikeTypeList) UnmarshalJSON(b []byte) error {
	var items []BikeTypeCounts
	if err := json.Unmarshal(b, &items); err != nil {
		*l = nil
		return nil
	}
	*l = items
	return nil
}

// Breakdown returns the mechanical and ebike counts of the first breakdown
// entry. Missing entries or fields count as zero.
func (s *StationStatus) Breakdown() (mechanical, ebike int) {
	if len(s.NumBikesAvailableTypes) == 0 {
		return 0, 0
	}
	first := s.NumBikesAvailableTypes[0]
	if first.Mechanical != nil {
		mechanical = *first.Mechanical
	}
	if first.Ebike != nil {
		ebike = *first.Ebike
	}
	return mechanical, ebike
}

// Flag is a GBFS integer flag. It is true only when the feed value is the
// number 1; 0, 2, null, booleans and strings all decode to false.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseFloat(string(bytes.TrimSpace(b)), 64)
	*f = Flag(err == nil && v == 1)
	return nil
}

// ID is an opaque station identifier. Operators publish it either as a
// string or as a number; numbers keep their literal decimal form.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("station_id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier text.
func (id ID) String() string {
	return string(id)
}
