package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stickshift/trainer/pkg/core"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestParseLonLat(t *testing.T) {
	p, err := ParseLonLat("2.2945, 48.8584")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.X != 2.2945 || p.Y != 48.8584 {
		t.Errorf("got %+v", p)
	}
}

func TestParseLonLat_Invalid(t *testing.T) {
	for _, in := range []string{"", "1", "a,b", "1,2,3", "200,0", "0,89"} {
		if _, err := ParseLonLat(in); !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("%q: expected ErrInvalidCoordinates, got %v", in, err)
		}
	}
}

func TestTo3857_RoundTrip(t *testing.T) {
	x, y := To3857(2.2945, 48.8584)
	if !near(x, 255422.6, 1) || !near(y, 6250868.9, 1) {
		t.Errorf("unexpected projection %f,%f", x, y)
	}
	lon, lat := To4326(x, y)
	if !near(lon, 2.2945, 1e-7) || !near(lat, 48.8584, 1e-7) {
		t.Errorf("round trip drifted: %f,%f", lon, lat)
	}
}

func TestCourse_Project(t *testing.T) {
	c := NewCourse(0, 0)
	if o := c.Origin(); !near(o.X, 0, 1e-6) || !near(o.Y, 0, 1e-6) {
		t.Fatalf("origin %+v", o)
	}
	p := c.Project(-3, 100)
	if !near(p.X, -3, 1e-6) || !near(p.Y, 100, 1e-6) {
		t.Errorf("equator projection %+v", p)
	}
}

func TestCourse_ScalesWithLatitude(t *testing.T) {
	c := NewCourse(0, 60)
	p := c.Project(0, 100)
	dy := p.Y - c.Origin().Y
	if !near(dy, 200, 1e-6) {
		t.Errorf("expected 200 mercator metres at 60N, got %f", dy)
	}
}

func TestLineString(t *testing.T) {
	if !LineString(nil).IsEmpty() {
		t.Error("expected empty line for no points")
	}
	if !LineString([]core.Position2D{{X: 1, Y: 1}}).IsEmpty() {
		t.Error("expected empty line for one point")
	}
	ls := LineString([]core.Position2D{{X: 0, Y: 0}, {X: 3, Y: 4}, {X: 3, Y: 10}})
	if n := ls.Coordinates().Length(); n != 3 {
		t.Errorf("expected 3 points, got %d", n)
	}
}

func TestTrackLength(t *testing.T) {
	c := NewCourse(2.2945, 48.8584)
	track := []core.Position2D{c.Project(0, 0), c.Project(0, 30), c.Project(4, 33)}
	if got := TrackLength(track, 48.8584); !near(got, 35, 1e-6) {
		t.Errorf("expected 35 ground metres, got %f", got)
	}
}
