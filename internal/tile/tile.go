// Package tile converts geographic areas into slippy-map tile addresses and tile URLs.
package tile

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	// MaxDownloadZoom caps the zoom window used for area downloads.
	MaxDownloadZoom = 15

	// MaxLatitude is the northern edge of the Web Mercator square.
	MaxLatitude = 85.0511287798066

	zoomBelow = 1
	zoomAbove = 2
)

var subdomains = [...]string{"a", "b", "c"}

// Bounds is a geographic rectangle in degrees.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// FromOrb builds Bounds from an orb bound (Min is south-west, Max is north-east).
func FromOrb(b orb.Bound) Bounds {
	return Bounds{
		North: b.Top(),
		South: b.Bottom(),
		East:  b.Right(),
		West:  b.Left(),
	}
}

func (b Bounds) Orb() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Center returns the midpoint as (lng, lat).
func (b Bounds) Center() orb.Point {
	return b.Orb().Center()
}

// Coordinate addresses one tile in the web mercator grid.
type Coordinate struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coordinate) MapTile() maptile.Tile {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Z))
}

// CountAtZoom is the side length of the tile grid at zoom z.
func CountAtZoom(z int) int {
	return 1 << uint(z)
}

// CoordinatesFor returns the tile column and row containing the point at the given zoom.
// Longitude is not normalized. Latitude is clamped to the Web Mercator limit, so a pole
// lands on the top or bottom edge of the grid.
func CoordinatesFor(lat, lng float64, zoom int) (x, y int) {
	n := float64(CountAtZoom(zoom))
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	latRad := lat * math.Pi / 180

	x = int(math.Floor((lng + 180) / 360 * n))
	y = int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))
	return x, y
}

type tileRange struct {
	xMin, xMax int
	yMin, yMax int
}

func (r tileRange) size() int {
	if r.xMax < r.xMin || r.yMax < r.yMin {
		return 0
	}
	return (r.xMax - r.xMin + 1) * (r.yMax - r.yMin + 1)
}

func rangeAt(b Bounds, z int) tileRange {
	last := CountAtZoom(z) - 1

	xMin, yMin := CoordinatesFor(b.North, b.West, z)
	xMax, yMax := CoordinatesFor(b.South, b.East, z)

	return tileRange{
		xMin: clamp(xMin, 0, last),
		xMax: clamp(xMax, 0, last),
		yMin: clamp(yMin, 0, last),
		yMax: clamp(yMax, 0, last),
	}
}

// Count returns how many tiles Enumerate would produce.
func Count(b Bounds, minZoom, maxZoom int) int {
	total := 0
	for z := minZoom; z <= maxZoom; z++ {
		total += rangeAt(b, z).size()
	}
	return total
}

// Enumerate lists every tile covering b for each zoom in [minZoom, maxZoom],
// ordered by zoom, then x, then y.
func Enumerate(b Bounds, minZoom, maxZoom int) []Coordinate {
	coords := make([]Coordinate, 0, Count(b, minZoom, maxZoom))
	for z := minZoom; z <= maxZoom; z++ {
		r := rangeAt(b, z)
		for x := r.xMin; x <= r.xMax; x++ {
			for y := r.yMin; y <= r.yMax; y++ {
				coords = append(coords, Coordinate{Z: z, X: x, Y: y})
			}
		}
	}
	return coords
}

// EnumerateURLs is Enumerate with every coordinate expanded into template.
func EnumerateURLs(b Bounds, minZoom, maxZoom int, template string) []string {
	coords := Enumerate(b, minZoom, maxZoom)
	urls := make([]string, len(coords))
	for i, c := range coords {
		urls[i] = ExpandTemplate(template, c)
	}
	return urls
}

// ExpandTemplate substitutes {z}, {x}, {y} and {s} placeholders.
func ExpandTemplate(template string, c Coordinate) string {
	s := (c.X + c.Y) % len(subdomains)
	if s < 0 {
		s += len(subdomains)
	}

	r := strings.NewReplacer(
		"{z}", strconv.Itoa(c.Z),
		"{x}", strconv.Itoa(c.X),
		"{y}", strconv.Itoa(c.Y),
		"{s}", subdomains[s],
	)
	return r.Replace(template)
}

// ZoomWindow returns the zoom range downloaded around the current view zoom.
func ZoomWindow(currentZoom float64) (minZoom, maxZoom int) {
	z := int(math.Floor(currentZoom))
	return max(0, z-zoomBelow), min(MaxDownloadZoom, z+zoomAbove)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
