package location

import (
	"math"
	"strings"
	"unicode"
)

// Source records how a request's coordinates were resolved.
type Source string

const (
	SourceProvided  Source = "provided"
	SourceExtracted Source = "extracted"
	SourceDefault   Source = "default"
)

// city pairs a name with its coordinates.
type city struct {
	name     string
	lat, lon float64
}

// indianCities is the gazetteer used for both city extraction from query text
// and reverse lookup of the nearest city name. Hindi spellings share
// coordinates with their English entries.
var indianCities = []city{
	{"delhi", 28.6139, 77.2090},
	{"mumbai", 19.0760, 72.8777},
	{"bangalore", 12.9716, 77.5946},
	{"bengaluru", 12.9716, 77.5946},
	{"chennai", 13.0827, 80.2707},
	{"kolkata", 22.5726, 88.3639},
	{"hyderabad", 17.3850, 78.4867},
	{"pune", 18.5204, 73.8567},
	{"ahmedabad", 23.0225, 72.5714},
	{"jaipur", 26.9124, 75.7873},
	{"lucknow", 26.8467, 80.9462},
	{"kanpur", 26.4499, 80.3319},
	{"nagpur", 21.1458, 79.0882},
	{"patna", 25.5941, 85.1376},
	{"indore", 22.7196, 75.8577},
	{"bhopal", 23.2599, 77.4126},
	{"noida", 28.5355, 77.3910},
	{"gurgaon", 28.4595, 77.0266},
	{"gurugram", 28.4595, 77.0266},
	{"दिल्ली", 28.6139, 77.2090},
	{"मुंबई", 19.0760, 72.8777},
	{"कोलकाता", 22.5726, 88.3639},
}

// Resolver resolves a usable coordinate for each request: explicit
// coordinates win, then a city name found in the query text, then the
// configured default.
type Resolver struct {
	defaultLat float64
	defaultLon float64
}

// NewResolver creates a Resolver with the given default coordinates.
func NewResolver(defaultLat, defaultLon float64) *Resolver {
	return &Resolver{defaultLat: defaultLat, defaultLon: defaultLon}
}

// Resolve returns coordinates for the request and how they were obtained.
func (r *Resolver) Resolve(lat, lon *float64, text string) (float64, float64, Source) {
	if lat != nil && lon != nil {
		return *lat, *lon, SourceProvided
	}
	if text != "" {
		if clat, clon, ok := ExtractCity(text); ok {
			return clat, clon, SourceExtracted
		}
	}
	return r.defaultLat, r.defaultLon, SourceDefault
}

// ExtractCity scans text for a known city name and returns its coordinates.
func ExtractCity(text string) (float64, float64, bool) {
	t := strings.ToLower(text)
	for _, c := range indianCities {
		if strings.Contains(t, c.name) {
			return c.lat, c.lon, true
		}
	}
	return 0, 0, false
}

// NearestCity returns the name of the closest gazetteer city to the
// coordinate, title-cased for display. Hindi spellings are skipped so the
// result is stable regardless of which alias matched.
func NearestCity(lat, lon float64) string {
	minDist := math.Inf(1)
	closest := "Unknown"
	for _, c := range indianCities {
		if isDevanagari(c.name) {
			continue
		}
		d := math.Hypot(lat-c.lat, lon-c.lon)
		if d < minDist {
			minDist = d
			closest = titleCase(c.name)
		}
	}
	return closest
}

func isDevanagari(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Devanagari, r) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
