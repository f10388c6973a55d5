// Package geo places the car on the map. Positions are stored as EPSG:3857
// so sqlite rows and PostGIS rows hold the same WKB; origins are configured
// as WGS84 lon/lat.
package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/stickshift/trainer/pkg/core"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParseLonLat parses "lon,lat" in degrees.
func ParseLonLat(coords string) (core.Position2D, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	if lon < -180 || lon > 180 || lat < -85.06 || lat > 85.06 {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	return core.Position2D{X: lon, Y: lat}, nil
}

// To3857 converts WGS84 degrees to web mercator metres.
func To3857(lon, lat float64) (x, y float64) {
	x, y, _ = wgs84.EPSG().Transform(4326, 3857)(lon, lat, 0)
	return x, y
}

// To4326 converts web mercator metres back to WGS84 degrees.
func To4326(x, y float64) (lon, lat float64) {
	lon, lat, _ = wgs84.EPSG().Transform(3857, 4326)(x, y, 0)
	return lon, lat
}

// Course maps the car's lateral offset and travelled distance, in metres,
// onto the map.
// The car starts at the origin heading north.
type Course struct {
	origin core.Position2D // EPSG:3857
	scale  float64         // 3857 metres per ground metre at the origin latitude
}

// NewCourse creates a course anchored at lon/lat.
func NewCourse(lon, lat float64) *Course {
	x, y := To3857(lon, lat)
	return &Course{
		origin: core.Position2D{X: x, Y: y},
		scale:  1 / math.Cos(lat*math.Pi/180),
	}
}

// Origin returns the anchor in EPSG:3857.
func (c *Course) Origin() core.Position2D {
	return c.origin
}

// Project returns the EPSG:3857 position of the car.
func (c *Course) Project(lateral, distance float64) core.Position2D {
	return core.Position2D{
		X: c.origin.X + lateral*c.scale,
		Y: c.origin.Y + distance*c.scale,
	}
}

// LineString builds a track geometry; fewer than two points give the empty line.
func LineString(track []core.Position2D) geom.LineString {
	if len(track) < 2 {
		return geom.LineString{}
	}
	coords := make([]float64, 0, len(track)*2)
	for _, p := range track {
		coords = append(coords, p.X, p.Y)
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
}

// TrackLength is the ground length of a track projected by a course at lat.
func TrackLength(track []core.Position2D, lat float64) float64 {
	return LineString(track).Length() * math.Cos(lat*math.Pi/180)
}
