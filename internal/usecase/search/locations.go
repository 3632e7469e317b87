package search

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/trialfinder/internal/domain/geo"
	"github.com/kailas-cloud/trialfinder/internal/domain/trial"
)

const maxSummaryCities = 3

// locationSummary lists up to three distinct cities in first-appearance
// order, followed by " +N more" when there are more. Empty when no site
// names a city.
func locationSummary(s *trial.Study) string {
	var cities []string
	seen := make(map[string]struct{})
	for _, loc := range s.Locations {
		if loc.City == "" {
			continue
		}
		if _, dup := seen[loc.City]; dup {
			continue
		}
		seen[loc.City] = struct{}{}
		cities = append(cities, loc.City)
	}

	if len(cities) == 0 {
		return ""
	}
	if len(cities) <= maxSummaryCities {
		return strings.Join(cities, ", ")
	}
	return strings.Join(cities[:maxSummaryCities], ", ") +
		" +" + strconv.Itoa(len(cities)-maxSummaryCities) + " more"
}

// nearestSiteKm is the distance from origin to the closest site of s with
// coordinates, nil when no site has them.
func nearestSiteKm(s *trial.Study, origin geo.Point) *float64 {
	points := make([]geo.Point, 0, len(s.Locations))
	for _, loc := range s.Locations {
		if loc.HasCoordinates() {
			points = append(points, geo.Point{Lat: *loc.Lat, Lon: *loc.Lon})
		}
	}
	km, ok := geo.Nearest(origin, points)
	if !ok {
		return nil
	}
	return &km
}
