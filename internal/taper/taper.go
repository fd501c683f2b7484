// Package taper computes stem base radii and the radius profile along a stem.
package taper

import "math"

// MinChildRadius is the floor applied to child stem radii before the parent
// limit is enforced.
const MinChildRadius = 0.005

// TrunkRadius is length * ratio * modifier.
func TrunkRadius(length, ratio, modifier float64) float64 {
	return length * ratio * modifier
}

// ChildRadius scales the parent radius by (length/parentLength)^power, floors
// it at MinChildRadius and caps it at limit. A negative limit disables the cap.
func ChildRadius(modifier, parentRadius, length, parentLength, power, limit float64) float64 {
	r := 0.0
	if parentLength > 0 {
		r = modifier * parentRadius * math.Pow(length/parentLength, power)
	}
	r = math.Max(MinChildRadius, r)
	if limit >= 0 {
		r = math.Min(limit, r)
	}
	return r
}

// RadiusAt returns the radius at fraction z in [0, 1] along a stem with the
// given base radius and length.
//
//	taper < 1      linear taper to (1-taper) of the base radius
//	taper == 1     cone, exactly zero at the tip
//	1 < taper < 2  cone blended toward a hemispherical tip by taper-1
//	taper >= 2     periodic bulges of amplitude taper-2
//
// Each branch agrees with its neighbour at taper 1 and 2.
func RadiusAt(taper, radius, length, z float64) float64 {
	z = clamp(z, 0, 1)

	var unit float64
	switch {
	case taper < 1:
		unit = taper
	case taper < 2:
		unit = 2 - taper
	default:
		unit = 0
	}
	cone := radius * (1 - unit*z)
	if taper < 1 {
		return cone
	}

	fromTip := (1 - z) * length
	depth := 1.0
	switch {
	case taper < 2:
		depth = taper - 1
	case fromTip >= cone:
		depth = taper - 2
	}

	z3 := fromTip
	if taper >= 2 && cone > 0 {
		z3 = math.Abs(fromTip - 2*cone*math.Floor(fromTip/(2*cone)+0.5))
	}
	if taper < 2 && z3 >= cone {
		return cone
	}
	sphere := math.Sqrt(math.Max(0, cone*cone-(z3-cone)*(z3-cone)))
	return (1-depth)*cone + depth*sphere
}

// Flare is the trunk widening multiplier at fraction z: 1 + flare*(100^y-1)/100
// with y = max(0, 1-8z).
func Flare(flare, z float64) float64 {
	y := math.Max(0, 1-8*z)
	return 1 + flare*(math.Pow(100, y)-1)/100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
