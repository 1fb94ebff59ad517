// Linear delta solution: tower placement and forward kinematics.
package kinematics

import (
	"fmt"
	"math"
)

// DeltaSolution maps actuator (carriage) positions to cartesian tool
// positions for a linear delta. Towers A, B, C sit at 120-degree intervals
// on a circle of the delta radius.
type DeltaSolution struct {
	radius     float64
	armLengths [3]float64
	arm2       [3]float64
	angles     [3]float64
	towers     [3][2]float64
}

// DeltaConfig contains configuration for a delta solution.
type DeltaConfig struct {
	Radius     float64
	ArmLengths [3]float64
	Angles     [3]float64 // tower angles in degrees, default [210, 330, 90]
}

// NewDeltaSolution creates a delta solution from configuration.
func NewDeltaSolution(cfg DeltaConfig) (*DeltaSolution, error) {
	if cfg.Radius <= 0 {
		return nil, fmt.Errorf("kinematics: delta radius must be positive")
	}
	angles := cfg.Angles
	if angles == [3]float64{} {
		angles = [3]float64{210.0, 330.0, 90.0}
	}

	d := &DeltaSolution{
		radius:     cfg.Radius,
		armLengths: cfg.ArmLengths,
		angles:     angles,
	}
	for i, arm := range cfg.ArmLengths {
		if arm <= cfg.Radius {
			return nil, fmt.Errorf("kinematics: arm_length[%d] must be greater than radius", i)
		}
		d.arm2[i] = arm * arm
	}
	d.placeTowers()
	return d, nil
}

func (d *DeltaSolution) placeTowers() {
	for i, angle := range d.angles {
		rad := angle * math.Pi / 180.0
		d.towers[i] = [2]float64{
			math.Cos(rad) * d.radius,
			math.Sin(rad) * d.radius,
		}
	}
}

// Radius returns the current delta radius.
func (d *DeltaSolution) Radius() float64 {
	return d.radius
}

// SetRadius updates the delta radius and re-derives tower positions.
func (d *DeltaSolution) SetRadius(r float64) {
	d.radius = r
	d.placeTowers()
}

// Forward converts carriage Z positions to the cartesian tool position by
// trilateration of the three arm spheres.
func (d *DeltaSolution) Forward(carriage [3]float64) [3]float64 {
	// Sphere centers (tower x, tower y, carriage z)
	s1 := [3]float64{d.towers[0][0], d.towers[0][1], carriage[0]}
	s2 := [3]float64{d.towers[1][0], d.towers[1][1], carriage[1]}
	s3 := [3]float64{d.towers[2][0], d.towers[2][1], carriage[2]}

	s21 := sub(s2, s1)
	s31 := sub(s3, s1)

	dist := norm(s21)
	ex := scale(s21, 1/dist)

	i := dot(ex, s31)
	vecEy := sub(s31, scale(ex, i))
	ey := scale(vecEy, 1/norm(vecEy))
	ez := cross(ex, ey)

	j := dot(ey, s31)

	x := (d.arm2[0] - d.arm2[1] + dist*dist) / (2.0 * dist)
	y := (d.arm2[0] - d.arm2[2] - x*x + (x-i)*(x-i) + j*j) / (2.0 * j)
	z := -math.Sqrt(d.arm2[0] - x*x - y*y)

	return [3]float64{
		s1[0] + ex[0]*x + ey[0]*y + ez[0]*z,
		s1[1] + ex[1]*x + ey[1]*y + ez[1]*z,
		s1[2] + ex[2]*x + ey[2]*y + ez[2]*z,
	}
}

// Reverse converts a cartesian tool position to the three carriage Z
// positions.
func (d *DeltaSolution) Reverse(pos [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		dx := d.towers[i][0] - pos[0]
		dy := d.towers[i][1] - pos[1]
		out[i] = pos[2] + math.Sqrt(d.arm2[i]-dx*dx-dy*dy)
	}
	return out
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func scale(a [3]float64, f float64) [3]float64 {
	return [3]float64{a[0] * f, a[1] * f, a[2] * f}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func norm(a [3]float64) float64 {
	return math.Sqrt(dot(a, a))
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
