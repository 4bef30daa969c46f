package geo

import "fleettrack/internal/types"

// ContainsPoint runs an even-odd ray cast over the polygon vertices, treating
// lat/lng as planar. Fine for destination-sized polygons away from the antimeridian.
func ContainsPoint(vertices []types.Point, p types.Point) bool {
	if len(vertices) < 3 {
		return false
	}
	inside := false
	j := len(vertices) - 1
	for i := 0; i < len(vertices); i++ {
		vi, vj := vertices[i], vertices[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			crossLng := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
			if p.Lng < crossLng {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Centroid returns the vertex average.
func Centroid(vertices []types.Point) types.Point {
	if len(vertices) == 0 {
		return types.Point{}
	}
	var c types.Point
	for _, v := range vertices {
		c.Lat += v.Lat
		c.Lng += v.Lng
	}
	n := float64(len(vertices))
	return types.Point{Lat: c.Lat / n, Lng: c.Lng / n}
}
