// SimDelta: a simulated delta machine for tests and the probecal tool.
//
// The simulation models the bed the way the calibration loops see it: the
// measured depth at a point is a plane term from per-tower endstop error and
// trim, plus a radial bowl term proportional to the delta radius error. Both
// respond linearly, which is what the real machine does for small
// deviations.
package motion

import (
	"errors"
	"math"
	"sync"

	"zprobe-go-migration/pkg/kinematics"
)

// Unit direction of each tower (X at 210 degrees, Y at 330, Z at 90).
var towerDir = [3][2]float64{
	{-0.866025, -0.5},
	{0.866025, -0.5},
	{0, 1},
}

var errEndstopsDisabled = errors.New("sim: endstops disabled")

// SimConfig configures a simulated machine.
type SimConfig struct {
	ArmLength   float64    // delta arm length (default 250)
	Radius      float64    // configured delta radius (default 105)
	TrueRadius  float64    // radius at which the bed reads flat (default = Radius)
	ProbeRadius float64    // radius of the tower-base test points (default 100)
	HomeZ       float64    // effector height after homing (default 250)
	StepsPerMM  float64    // actuator resolution (default 80)
	TowerErrors [3]float64 // per-tower endstop error in mm
	BowlGain    float64    // mm of center/edge divergence per mm of radius error (default 0.2)
	Accel       float64    // planner X/Y acceleration (default 1500)
	ZAccel      float64    // planner Z acceleration (default 500)
}

type tickHandler struct {
	hz int
	fn func()
}

// SimDelta is a simulated delta machine. It implements Axis (three of
// them), Mover, TickAttacher, kinematics.GeometryStore and
// kinematics.TrimStore.
type SimDelta struct {
	mu sync.Mutex

	cfg  SimConfig
	axes [3]*simAxis
	sol  *kinematics.DeltaSolution

	pos   [3]float64 // believed cartesian position
	homed bool

	trim     kinematics.Trim
	radOff   kinematics.TowerOffsets
	angOff   kinematics.TowerOffsets
	armOff   kinematics.TowerOffsets
	geometry kinematics.BasicGeometry

	// Capability toggles for fault-path tests
	GeometrySupported bool
	TrimEnabled       bool

	accel     float64
	bedHeight float64
	noTrans   bool
	motorsOn  bool

	noise    func() float64
	noiseNow float64

	handlers  []tickHandler
	abortMove bool

	// Move/probe counters for test assertions
	ProbeMoves int
	HomeCount  int
}

// NewSimDelta creates a simulated machine.
func NewSimDelta(cfg SimConfig) *SimDelta {
	if cfg.ArmLength == 0 {
		cfg.ArmLength = 250
	}
	if cfg.Radius == 0 {
		cfg.Radius = 105
	}
	if cfg.TrueRadius == 0 {
		cfg.TrueRadius = cfg.Radius
	}
	if cfg.ProbeRadius == 0 {
		cfg.ProbeRadius = 100
	}
	if cfg.HomeZ == 0 {
		cfg.HomeZ = 250
	}
	if cfg.StepsPerMM == 0 {
		cfg.StepsPerMM = 80
	}
	if cfg.BowlGain == 0 {
		cfg.BowlGain = 0.2
	}
	if cfg.Accel == 0 {
		cfg.Accel = 1500
	}
	if cfg.ZAccel == 0 {
		cfg.ZAccel = 500
	}

	sol, err := kinematics.NewDeltaSolution(kinematics.DeltaConfig{
		Radius:     cfg.Radius,
		ArmLengths: [3]float64{cfg.ArmLength, cfg.ArmLength, cfg.ArmLength},
	})
	if err != nil {
		panic(err)
	}

	s := &SimDelta{
		cfg:               cfg,
		sol:               sol,
		accel:             cfg.Accel,
		geometry:          kinematics.BasicGeometry{ArmLength: cfg.ArmLength, Radius: cfg.Radius},
		GeometrySupported: true,
		TrimEnabled:       true,
		pos:               [3]float64{0, 0, cfg.HomeZ},
	}
	for i := range s.axes {
		s.axes[i] = &simAxis{m: s, index: i, spmm: cfg.StepsPerMM}
	}
	return s
}

// Axis returns the simulated axis driver for the given index.
func (s *SimDelta) Axis(i int) Axis {
	return s.axes[i]
}

// Solution returns the delta solution, for forward-kinematics readback.
func (s *SimDelta) Solution() *kinematics.DeltaSolution {
	return s.sol
}

// SetNoise installs a per-probe depth noise source (mm).
func (s *SimDelta) SetNoise(fn func() float64) {
	s.mu.Lock()
	s.noise = fn
	s.mu.Unlock()
}

// PinRead reads the simulated probe switch: triggered while the effector is
// at or below the surface.
func (s *SimDelta) PinRead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos[2] <= s.surfaceZ(s.pos[0], s.pos[1])
}

// surfaceZ computes the trigger surface height at (x, y). Caller holds mu.
func (s *SimDelta) surfaceZ(x, y float64) float64 {
	trims := [3]float64{s.trim.X, s.trim.Y, s.trim.Z}
	z := 0.0
	for i := 0; i < 3; i++ {
		w := 1.0/3.0 + (2.0/(3.0*s.cfg.ProbeRadius))*(x*towerDir[i][0]+y*towerDir[i][1])
		z -= (s.cfg.TowerErrors[i] + trims[i]) * w
	}
	rho2 := x*x + y*y
	z -= s.cfg.BowlGain * (s.geometry.Radius - s.cfg.TrueRadius) * rho2 / (s.cfg.ProbeRadius * s.cfg.ProbeRadius)
	z -= s.noiseNow
	return z
}

// Attach registers a periodic tick handler. SimDelta fires every handler
// once per Advance call and once per segment of a sampled coordinated move.
func (s *SimDelta) Attach(hz int, fn func()) {
	s.mu.Lock()
	s.handlers = append(s.handlers, tickHandler{hz: hz, fn: fn})
	s.mu.Unlock()
}

func (s *SimDelta) fireHandlers() {
	s.mu.Lock()
	handlers := s.handlers
	s.mu.Unlock()
	for _, h := range handlers {
		h.fn()
	}
}

// stepEpsilon absorbs the accumulation error of repeated speed*dt sums, so
// a move whose increments sum to a hair under the target still completes.
const stepEpsilon = 1e-9

// Advance runs one timer period: fires the tick handlers, then moves every
// active axis by speed*dt and updates the effector position for a dedicated
// probe move. The effector only moves in whole steps, so probes of equal
// depths capture identical step counts.
func (s *SimDelta) Advance(dt float64) {
	s.fireHandlers()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.axes {
		if !a.moving {
			continue
		}
		a.stepped += a.speed * dt
		if a.stepped >= a.target-stepEpsilon {
			a.stepped = a.target
			a.moving = false
		}
		if a.index == ZAxis {
			travel := math.Floor(a.stepped) / a.spmm
			if a.dir {
				s.pos[2] = a.startZ - travel
			} else {
				s.pos[2] = a.startZ + travel
			}
		}
	}
}

// Mover implementation

// CoordinatedMove moves to the target, walking it in small segments so any
// attached samplers can observe (and abort) the move.
func (s *SimDelta) CoordinatedMove(x, y, z, feedrate float64, relative bool) error {
	s.mu.Lock()
	start := s.pos
	target := start
	coords := [3]float64{x, y, z}
	for i, c := range coords {
		if math.IsNaN(c) {
			continue
		}
		if relative {
			target[i] += c
		} else {
			target[i] = c
		}
	}
	s.abortMove = false
	sampled := len(s.handlers) > 0
	s.mu.Unlock()

	if !sampled {
		s.mu.Lock()
		s.pos = target
		s.mu.Unlock()
		return nil
	}

	const segment = 0.25 // mm
	dist := math.Sqrt(sq(target[0]-start[0]) + sq(target[1]-start[1]) + sq(target[2]-start[2]))
	n := int(math.Ceil(dist / segment))
	if n < 1 {
		n = 1
	}
	for i := 1; i <= n; i++ {
		f := float64(i) / float64(n)
		s.mu.Lock()
		for j := 0; j < 3; j++ {
			s.pos[j] = start[j] + (target[j]-start[j])*f
		}
		s.mu.Unlock()

		s.fireHandlers()

		s.mu.Lock()
		aborted := s.abortMove
		s.mu.Unlock()
		if aborted {
			return nil
		}
	}
	return nil
}

// Home raises the effector to the home height above bed center.
func (s *SimDelta) Home() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = [3]float64{0, 0, s.cfg.HomeZ}
	s.homed = true
	s.HomeCount++
	for _, a := range s.axes {
		a.moving = false
		a.stepped = 0
		a.speed = 0
	}
	return nil
}

// EnableMotors turns the (simulated) stepper enable pins on.
func (s *SimDelta) EnableMotors() {
	s.mu.Lock()
	s.motorsOn = true
	s.mu.Unlock()
}

// Acceleration returns the planner X/Y acceleration.
func (s *SimDelta) Acceleration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accel
}

// ZAcceleration returns the planner Z acceleration.
func (s *SimDelta) ZAcceleration() float64 {
	return s.cfg.ZAccel
}

// SetAcceleration overrides the planner acceleration.
func (s *SimDelta) SetAcceleration(accel float64) {
	s.mu.Lock()
	s.accel = accel
	s.mu.Unlock()
}

// AxisPosition returns the believed cartesian position.
func (s *SimDelta) AxisPosition() [3]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// ResetAxisPosition rewrites position tracking without moving.
func (s *SimDelta) ResetAxisPosition(pos [3]float64) {
	s.mu.Lock()
	s.pos = pos
	s.mu.Unlock()
}

// ResetFromActuators resynchronizes tracking from actuator positions. The
// simulation tracks actual position already, so this is bookkeeping only.
func (s *SimDelta) ResetFromActuators() {}

// SuspendTransforms disables segmentation/compensation for straight probes.
func (s *SimDelta) SuspendTransforms(suspend bool) {
	s.mu.Lock()
	s.noTrans = suspend
	s.mu.Unlock()
}

// SetBedHeight records the measured bed height.
func (s *SimDelta) SetBedHeight(height float64) {
	s.mu.Lock()
	s.bedHeight = height
	s.mu.Unlock()
}

// BedHeight returns the last pushed bed height.
func (s *SimDelta) BedHeight() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bedHeight
}

// kinematics.GeometryStore implementation

// BasicGeometry returns arm length and delta radius.
func (s *SimDelta) BasicGeometry() (kinematics.BasicGeometry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.GeometrySupported {
		return kinematics.BasicGeometry{}, kinematics.ErrUnsupported
	}
	return s.geometry, nil
}

// SetBasicGeometry updates arm length and delta radius. The bowl term of
// the simulated surface follows the radius.
func (s *SimDelta) SetBasicGeometry(g kinematics.BasicGeometry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.GeometrySupported {
		return kinematics.ErrUnsupported
	}
	s.geometry = g
	s.sol.SetRadius(g.Radius)
	return nil
}

// TowerRadiusOffsets returns the per-tower radius offsets.
func (s *SimDelta) TowerRadiusOffsets() (kinematics.TowerOffsets, error) {
	return s.getOffsets(&s.radOff)
}

// SetTowerRadiusOffsets stores the per-tower radius offsets.
func (s *SimDelta) SetTowerRadiusOffsets(o kinematics.TowerOffsets) error {
	return s.setOffsets(&s.radOff, o)
}

// TowerAngleOffsets returns the per-tower angle offsets.
func (s *SimDelta) TowerAngleOffsets() (kinematics.TowerOffsets, error) {
	return s.getOffsets(&s.angOff)
}

// SetTowerAngleOffsets stores the per-tower angle offsets.
func (s *SimDelta) SetTowerAngleOffsets(o kinematics.TowerOffsets) error {
	return s.setOffsets(&s.angOff, o)
}

// TowerArmOffsets returns the per-tower arm length offsets.
func (s *SimDelta) TowerArmOffsets() (kinematics.TowerOffsets, error) {
	return s.getOffsets(&s.armOff)
}

// SetTowerArmOffsets stores the per-tower arm length offsets.
func (s *SimDelta) SetTowerArmOffsets(o kinematics.TowerOffsets) error {
	return s.setOffsets(&s.armOff, o)
}

func (s *SimDelta) getOffsets(field *kinematics.TowerOffsets) (kinematics.TowerOffsets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.GeometrySupported {
		return kinematics.TowerOffsets{}, kinematics.ErrUnsupported
	}
	return *field, nil
}

func (s *SimDelta) setOffsets(field *kinematics.TowerOffsets, o kinematics.TowerOffsets) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.GeometrySupported {
		return kinematics.ErrUnsupported
	}
	*field = o
	return nil
}

// kinematics.TrimStore implementation

// Trim returns the current trim vector.
func (s *SimDelta) Trim() (kinematics.Trim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.TrimEnabled {
		return kinematics.Trim{}, errEndstopsDisabled
	}
	return s.trim, nil
}

// SetTrim replaces the trim vector.
func (s *SimDelta) SetTrim(t kinematics.Trim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.TrimEnabled {
		return errEndstopsDisabled
	}
	s.trim = t
	return nil
}

func sq(v float64) float64 { return v * v }

// simAxis is one simulated actuator.
type simAxis struct {
	m     *SimDelta
	index int
	spmm  float64

	moving  bool
	dir     bool
	stepped float64
	target  float64
	speed   float64
	startZ  float64
	lastBlk bool
}

func (a *simAxis) IsMoving() bool {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	return a.moving
}

func (a *simAxis) GetStepped() int {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	return int(a.stepped)
}

func (a *simAxis) Speed() float64 {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	return a.speed
}

func (a *simAxis) SetSpeed(stepsPerSec float64) {
	a.m.mu.Lock()
	a.speed = stepsPerSec
	a.m.mu.Unlock()
}

func (a *simAxis) Move(dir bool, steps int) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	if steps == 0 {
		a.moving = false
		return
	}
	a.moving = true
	a.dir = dir
	a.stepped = 0
	a.target = float64(steps)
	a.speed = 0
	a.startZ = a.m.pos[2]
	if a.index == ZAxis {
		a.m.ProbeMoves++
		if a.m.noise != nil {
			a.m.noiseNow = a.m.noise()
		}
	}
}

func (a *simAxis) ForceFinishMove() {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	a.moving = false
	a.m.abortMove = true
}

func (a *simAxis) StepsPerMM() float64 {
	return a.spmm
}

func (a *simAxis) CurrentPosition() float64 {
	a.m.mu.Lock()
	pos := a.m.pos
	a.m.mu.Unlock()
	return a.m.sol.Reverse(pos)[a.index]
}

func (a *simAxis) SetMovedLastBlock(moved bool) {
	a.m.mu.Lock()
	a.lastBlk = moved
	a.m.mu.Unlock()
}
