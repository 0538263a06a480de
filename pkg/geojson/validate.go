package geojson

import "fmt"

// Validate checks a geometry against simple-feature rules: coordinates within
// [-180,180] longitude and [-90,90] latitude, polygon rings closed with at
// least four positions, and no self-intersecting rings.
func Validate(g *Geometry) error {
	if g == nil {
		return fmt.Errorf("geometry is nil")
	}

	// Structural decode catches malformed coordinate arrays up front.
	if _, err := Decode(g); err != nil {
		return err
	}

	switch g.Type {
	case "Point":
		coords, err := g.Point()
		if err != nil {
			return err
		}
		return checkPosition(coords)

	case "MultiPoint":
		coords, err := g.MultiPoint()
		if err != nil {
			return err
		}
		for _, point := range coords {
			if err := checkPosition(point); err != nil {
				return err
			}
		}

	case "LineString":
		coords, err := g.LineString()
		if err != nil {
			return err
		}
		if len(coords) < 2 {
			return fmt.Errorf("line string must have at least 2 positions, got %d", len(coords))
		}
		for _, point := range coords {
			if err := checkPosition(point); err != nil {
				return err
			}
		}

	case "MultiLineString":
		coords, err := g.MultiLineString()
		if err != nil {
			return err
		}
		for _, line := range coords {
			if len(line) < 2 {
				return fmt.Errorf("line string must have at least 2 positions, got %d", len(line))
			}
			for _, point := range line {
				if err := checkPosition(point); err != nil {
					return err
				}
			}
		}

	case "Polygon":
		coords, err := g.Polygon()
		if err != nil {
			return err
		}
		return checkPolygon(coords)

	case "MultiPolygon":
		coords, err := g.MultiPolygon()
		if err != nil {
			return err
		}
		if len(coords) == 0 {
			return fmt.Errorf("multipolygon must have at least one polygon")
		}
		for _, polygon := range coords {
			if err := checkPolygon(polygon); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("unsupported geometry type: %s", g.Type)
	}

	return nil
}

// ValidateBBox checks a [west, south, east, north] box (optionally with
// min/max elevation as a 6-element form). West may exceed east: that is the
// antimeridian-crossing form, handled by the caller.
func ValidateBBox(bbox []float64) error {
	if len(bbox) != 4 && len(bbox) != 6 {
		return fmt.Errorf("bbox must have 4 or 6 values, got %d", len(bbox))
	}

	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	if len(bbox) == 6 {
		west, south, east, north = bbox[0], bbox[1], bbox[3], bbox[4]
	}

	if west < -180 || west > 180 || east < -180 || east > 180 {
		return fmt.Errorf("bbox longitude out of range [-180, 180]")
	}
	if south < -90 || south > 90 || north < -90 || north > 90 {
		return fmt.Errorf("bbox latitude out of range [-90, 90]")
	}
	if south > north {
		return fmt.Errorf("bbox south (%v) must not exceed north (%v)", south, north)
	}
	return nil
}

func checkPosition(point []float64) error {
	if len(point) < 2 {
		return fmt.Errorf("position must have at least 2 coordinates, got %d", len(point))
	}
	lon, lat := point[0], point[1]
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	return nil
}

func checkPolygon(rings [][][]float64) error {
	if len(rings) == 0 {
		return fmt.Errorf("polygon must have at least one ring")
	}
	for _, ring := range rings {
		if err := checkRing(ring); err != nil {
			return err
		}
	}
	return nil
}

func checkRing(ring [][]float64) error {
	if len(ring) < 4 {
		return fmt.Errorf("polygon ring must have at least 4 positions, got %d", len(ring))
	}
	for _, point := range ring {
		if err := checkPosition(point); err != nil {
			return err
		}
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] != last[0] || first[1] != last[1] {
		return fmt.Errorf("polygon ring is not closed")
	}
	if err := checkRingSimple(ring); err != nil {
		return err
	}
	return nil
}

// checkRingSimple rejects self-intersecting rings. Segments are compared
// pairwise; adjacent segments may only touch at their shared endpoint.
func checkRingSimple(ring [][]float64) error {
	n := len(ring) - 1 // closing position repeats the first
	for i := 0; i < n; i++ {
		a1, a2 := ring[i], ring[i+1]
		for j := i + 1; j < n; j++ {
			b1, b2 := ring[j], ring[j+1]
			if j == i+1 || (i == 0 && j == n-1) {
				// Adjacent segments share one endpoint; anything beyond that
				// point is a spike folding back along the previous edge.
				var s, u, v []float64
				if j == i+1 {
					s, u, v = a2, a1, b2
				} else {
					s, u, v = a1, a2, b1
				}
				if foldsBack(s, u, v) {
					return fmt.Errorf("polygon ring is self-intersecting")
				}
				continue
			}
			if segmentsIntersect(a1, a2, b1, b2) {
				return fmt.Errorf("polygon ring is self-intersecting")
			}
		}
	}
	return nil
}

// foldsBack reports whether the edges s->u and s->v run along the same ray,
// which makes adjacent segments overlap beyond their shared endpoint s.
func foldsBack(s, u, v []float64) bool {
	if orientation(s, u, v) != 0 {
		return false
	}
	dot := (u[0]-s[0])*(v[0]-s[0]) + (u[1]-s[1])*(v[1]-s[1])
	return dot > 0
}
