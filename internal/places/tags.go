package places

import (
	"fmt"
	"strings"
)

// osmTagFilters maps canonical place types (and the common Hindi labels) to
// Overpass tag filters.
var osmTagFilters = map[string]string{
	// Medical
	"hospital":      `[amenity=hospital]`,
	"clinic":        `[amenity=clinic]`,
	"pharmacy":      `[amenity=pharmacy]`,
	"medical_store": `[amenity=pharmacy]`,

	// Financial
	"bank": `[amenity=bank]`,
	"atm":  `[amenity=atm]`,

	// Government/Public
	"post_office":    `[amenity=post_office]`,
	"police":         `[amenity=police]`,
	"police_station": `[amenity=police]`,

	// Education
	"school":     `[amenity=school]`,
	"college":    `[amenity=college]`,
	"university": `[amenity=university]`,

	// Citizen service centres
	"csc":                `[amenity~"public_service|social_facility|government"]`,
	"e-seva":             `[amenity~"public_service|social_facility|government"]`,
	"maha_e-seva_kendra": `[amenity~"public_service|social_facility|government"]`,
	"महा_ई-सेवा_केंद्र":  `[amenity~"public_service|social_facility|government"]`,
	"cyber_cafe":         `[amenity=internet_cafe]`,

	// Transport
	"petrol":      `[amenity=fuel]`,
	"petrol_pump": `[amenity=fuel]`,
	"railway":     `[railway=station]`,
	"bus_station": `[amenity=bus_station]`,

	// Food & retail
	"restaurant":    `[amenity=restaurant]`,
	"dhaba":         `[amenity=restaurant]`,
	"grocery":       `[shop=supermarket]`,
	"kirana":        `[shop=convenience]`,
	"general_store": `[shop=convenience]`,

	// Religious
	"temple": `[amenity=place_of_worship][religion=hindu]`,
	"mosque": `[amenity=place_of_worship][religion=muslim]`,

	// Hindi labels
	"अस्पताल": `[amenity=hospital]`,
	"बैंक":    `[amenity=bank]`,
	"पुलिस":   `[amenity=police]`,
	"मंदिर":   `[amenity=place_of_worship][religion=hindu]`,
	"किराना":  `[shop=convenience]`,
}

// tagFilterFor resolves a place type to its Overpass tag filter. Unknown
// types fall back to a case-insensitive name match so queries like
// "sharma medical" still return something.
func tagFilterFor(placeType string) string {
	pt := strings.ToLower(strings.TrimSpace(placeType))
	if f, ok := osmTagFilters[pt]; ok {
		return f
	}
	if f, ok := osmTagFilters[strings.ReplaceAll(pt, " ", "_")]; ok {
		return f
	}
	return fmt.Sprintf(`[name~"%s",i]`, pt)
}
