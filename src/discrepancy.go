package segment

import (
	"math"
	"time"

	"github.com/golang/geo/s1"
)

// HoursBetween returns t2-t1 expressed in hours, as a float.
func HoursBetween(t1, t2 time.Time) float64 {
	return t2.Sub(t1).Hours()
}

func radians(deg float64) float64 {
	return (s1.Angle(deg) * s1.Degree).Radians()
}

// wrapDegrees wraps a longitude delta (or any angle in degrees) into
// the half-open interval (-180, 180], using s1.Angle's own normalization
// instead of a hand-rolled modulo.
func wrapDegrees(x float64) float64 {
	return (s1.Angle(x) * s1.Degree).Normalized().Degrees()
}

// expectedPosition dead-reckons from msg forward (or backward, for
// negative h) by h hours using msg's reported speed and course.
// Course is measured clockwise from north; we convert to the
// mathematical convention (counter-clockwise from east) before
// projecting. When course is unavailable (NaN) and speed is at or
// below verySlow, both are treated as zero, matching the AIS
// convention that slow vessels often cannot resolve heading from GPS.
func expectedPosition(msg Message, h float64) (lon, lat float64) {
	const epsilon = 1e-3

	speed := msg.Speed
	course := msg.Course
	if math.IsNaN(course) {
		// The caller (classification) guarantees this only happens
		// at very low speed; defend anyway rather than propagate NaN.
		speed = 0
		course = 0
	}

	dist := speed * h // nautical miles
	mathAngle := radians(90.0 - course)
	degLatPerNM := 1.0 / 60
	degLonPerNM := degLatPerNM / (math.Cos(radians(msg.Lat)) + epsilon)

	dx := math.Cos(mathAngle) * dist * degLonPerNM
	dy := math.Sin(mathAngle) * dist * degLatPerNM
	return msg.Lon + dx, msg.Lat + dy
}

// safeCourse returns 0 for a NaN course instead of propagating NaN
// into trigonometric functions; used only where the original formula
// tolerates an unknown course by assuming due-north travel.
func safeCourse(course float64) float64 {
	if math.IsNaN(course) {
		return 0
	}
	return course
}

// Discrepancy computes the non-negative kinematic discrepancy, in
// nautical miles, between older message m1 and newer message m2
// separated by h hours. It is the minimum of three sub-metrics: mean
// endpoint error, stationarity, and perpendicular offset. See
// SPEC_FULL.md §4.1 for the derivation. Exported so stitcher can reuse
// the same kinematic math the Matcher uses, just without the Matcher's
// penalized-hours adjustment.
func Discrepancy(m1, m2 Message, h float64, shapeFactor float64) float64 {
	lon2p, lat2p := expectedPosition(m1, h)
	lon1p, lat1p := expectedPosition(m2, -h)

	nmPerDegLat := 60.0
	meanLat := 0.5 * (m1.Lat + m2.Lat)
	nmPerDegLon := nmPerDegLat * math.Cos(radians(meanLat))

	// Sub-metric 1: mean endpoint error.
	d1 := 0.5 * (math.Hypot(nmPerDegLon*wrapDegrees(lon1p-m1.Lon), nmPerDegLat*(lat1p-m1.Lat)) +
		math.Hypot(nmPerDegLon*wrapDegrees(lon2p-m2.Lon), nmPerDegLat*(lat2p-m2.Lat)))

	// Sub-metric 2: stationarity (vessel didn't move).
	dist := math.Hypot(nmPerDegLat*(m2.Lat-m1.Lat), nmPerDegLon*wrapDegrees(m2.Lon-m1.Lon))
	d2 := dist * shapeFactor

	// Sub-metric 3: perpendicular offset from the straight-line path.
	rads := math.Atan2(nmPerDegLat*(m2.Lat-m1.Lat), nmPerDegLon*wrapDegrees(m2.Lon-m1.Lon))

	delta1 := radians(90-safeCourse(m1.Course)) - rads
	tangential1 := math.Cos(delta1) * dist
	var normal1 float64
	if tangential1 > 0 && tangential1 <= m1.Speed*h {
		normal1 = math.Abs(math.Sin(delta1)) * dist
	} else {
		normal1 = math.Inf(1)
	}

	delta2 := radians(90-safeCourse(m2.Course)) - rads
	tangential2 := math.Cos(delta2) * dist
	var normal2 float64
	if tangential2 > 0 && tangential2 <= m2.Speed*h {
		normal2 = math.Abs(math.Sin(delta2)) * dist
	} else {
		normal2 = math.Inf(1)
	}

	d3 := 0.5 * (normal1 + normal2) * shapeFactor

	return math.Min(d1, math.Min(d2, d3))
}
