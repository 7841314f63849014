package models

// Banner is the body of GET /.
type Banner struct {
	Message string `json:"message"`
}

// Station is a docking station as served by the API. Field names follow the
// stored column names.
type Station struct {
	StationID string  `json:"station_id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Capacity  int     `json:"capacity"`
	Address   *string `json:"address"`
}

// StationStatus is one status log row.
type StationStatus struct {
	StationID          string `json:"station_id"`
	NumBikesAvailable  int    `json:"num_bikes_available"`
	NumBikesMechanical int    `json:"num_bikes_mechanical"`
	NumBikesEbike      int    `json:"num_bikes_ebike"`
	NumDocksAvailable  int    `json:"num_docks_available"`
	IsInstalled        bool   `json:"is_installed"`
	IsRenting          bool   `json:"is_renting"`
	IsReturning        bool   `json:"is_returning"`
	LastReported       string `json:"last_reported"`
	Status             string `json:"status"`
}
