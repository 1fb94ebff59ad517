// Test-point geometry for delta calibration scans.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import "math"

// Quadrant constants for the tower positions (sin/cos of 30 degrees).
const (
	quadX = 0.866025
	quadY = 0.5
)

// Indices into the 12-point test table.
const (
	pointTowerX = iota
	pointTowerY
	pointTowerZ
	pointOppositeX
	pointOppositeY
	pointOppositeZ
	pointMidXY
	pointMidYZ
	pointMidZX
	pointMidOppXY
	pointMidOppYZ
	pointMidOppZX
	numTestPoints
)

// towerCoordinates returns the three tower-base points at the given radius:
// X tower at 210 degrees, Y at 330, Z at 90.
func towerCoordinates(radius float64) [3][2]float64 {
	return [3][2]float64{
		{-quadX * radius, -quadY * radius},
		{quadX * radius, -quadY * radius},
		{0, radius},
	}
}

// testPoints builds the full 12-point scan table: the three tower bases,
// the three points opposite the towers, the three inter-tower midpoints,
// and the three points opposite those midpoints. All lie on the circle of
// the given radius.
func testPoints(radius float64) [numTestPoints][2]float64 {
	towers := towerCoordinates(radius)

	var pts [numTestPoints][2]float64
	for i := 0; i < 3; i++ {
		pts[pointTowerX+i] = towers[i]
		pts[pointOppositeX+i] = [2]float64{-towers[i][0], -towers[i][1]}
	}

	// Midpoints projected back out to the scan radius.
	mids := [3][2]float64{
		midpoint(towers[0], towers[1]),
		midpoint(towers[1], towers[2]),
		midpoint(towers[2], towers[0]),
	}
	for i, m := range mids {
		d := distance(m, [2]float64{0, 0})
		if d > 0 {
			m[0] *= radius / d
			m[1] *= radius / d
		}
		pts[pointMidXY+i] = m
		pts[pointMidOppXY+i] = [2]float64{-m[0], -m[1]}
	}
	return pts
}

func midpoint(a, b [2]float64) [2]float64 {
	return [2]float64{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}

func distance(a, b [2]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return math.Sqrt(dx*dx + dy*dy)
}

// rotate2D rotates a point around the origin by the given angle in degrees.
func rotate2D(p [2]float64, degrees float64) [2]float64 {
	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	return [2]float64{p[0]*cos - p[1]*sin, p[0]*sin + p[1]*cos}
}
