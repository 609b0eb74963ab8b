package models

// Place is one nearby point of interest from the places lookup.
type Place struct {
	Name           string  `json:"name"`
	PlaceType      string  `json:"place_type"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DistanceMeters float64 `json:"distance_meters"`
	Address        string  `json:"address,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	OpeningHours   string  `json:"opening_hours,omitempty"`
}

// PlaceResult is the cacheable outcome of one nearby search.
type PlaceResult struct {
	Places    []Place `json:"places"`
	FetchedAt int64   `json:"fetched_at"` // unix seconds, drives stale-serve age
	Stale     bool    `json:"stale,omitempty"`
}

// NearbyPlacesResponse is the wire response of GET /places/nearby.
type NearbyPlacesResponse struct {
	Success      bool    `json:"success"`
	Places       []Place `json:"places"`
	TotalCount   int     `json:"total_count"`
	SearchRadius int     `json:"search_radius"`
	ErrorMessage string  `json:"error_message,omitempty"`
}
