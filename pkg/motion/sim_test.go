package motion

import (
	"math"
	"testing"

	"zprobe-go-migration/pkg/kinematics"
)

func towerBase(cfg SimConfig, i int) (float64, float64) {
	return cfg.ProbeRadius * towerDir[i][0], cfg.ProbeRadius * towerDir[i][1]
}

func TestSurfacePlaneWeights(t *testing.T) {
	cfg := SimConfig{TowerErrors: [3]float64{0.5, 0, 0}}
	s := NewSimDelta(cfg)

	// An error on one tower moves the surface under that tower's base
	// point by the full amount and leaves the other two untouched. The
	// tower directions are 6-digit constants, so allow for the rounding.
	x, y := towerBase(s.cfg, 0)
	if got := s.surfaceZ(x, y); math.Abs(got-(-0.5)) > 1e-6 {
		t.Errorf("surface under tower 0 = %v, want -0.5", got)
	}
	for i := 1; i < 3; i++ {
		x, y := towerBase(s.cfg, i)
		if got := s.surfaceZ(x, y); math.Abs(got) > 1e-6 {
			t.Errorf("surface under tower %d = %v, want 0", i, got)
		}
	}

	// At center every tower contributes a third.
	if got := s.surfaceZ(0, 0); math.Abs(got-(-0.5/3)) > 1e-9 {
		t.Errorf("surface at center = %v, want %v", got, -0.5/3)
	}
}

func TestSurfaceBowlFollowsRadius(t *testing.T) {
	cfg := SimConfig{Radius: 107, TrueRadius: 105, BowlGain: 0.2}
	s := NewSimDelta(cfg)

	// Radius set 2mm too large: center flat, edge lower by gain*error.
	if got := s.surfaceZ(0, 0); got != 0 {
		t.Errorf("center = %v, want 0", got)
	}
	edge := s.surfaceZ(s.cfg.ProbeRadius, 0)
	if math.Abs(edge-(-0.4)) > 1e-9 {
		t.Errorf("edge = %v, want -0.4", edge)
	}

	// Correcting the radius flattens the bed.
	if err := s.SetBasicGeometry(kinematics.BasicGeometry{ArmLength: 250, Radius: 105}); err != nil {
		t.Fatal(err)
	}
	if got := s.surfaceZ(s.cfg.ProbeRadius, 0); got != 0 {
		t.Errorf("edge after correction = %v, want 0", got)
	}
}

func TestTrimCancelsTowerError(t *testing.T) {
	s := NewSimDelta(SimConfig{TowerErrors: [3]float64{0.3, -0.2, 0.1}})

	if err := s.SetTrim(kinematics.Trim{X: -0.3, Y: 0.2, Z: -0.1}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		x, y := towerBase(s.cfg, i)
		if got := s.surfaceZ(x, y); math.Abs(got) > 1e-9 {
			t.Errorf("surface under tower %d = %v, want 0 after trim", i, got)
		}
	}
}

func TestAdvanceDrivesDedicatedMove(t *testing.T) {
	s := NewSimDelta(SimConfig{HomeZ: 20})
	if err := s.Home(); err != nil {
		t.Fatal(err)
	}

	az := s.Axis(ZAxis)
	az.Move(true, 400) // 5mm toward the bed at 80 steps/mm
	az.SetSpeed(400)

	for i := 0; i < 1000 && az.IsMoving(); i++ {
		s.Advance(0.001)
	}
	if az.IsMoving() {
		t.Fatal("move never completed")
	}
	if got := az.GetStepped(); got != 400 {
		t.Errorf("stepped = %d, want 400", got)
	}
	if got := s.AxisPosition()[2]; math.Abs(got-15) > 1e-9 {
		t.Errorf("z = %v, want 15", got)
	}
}

func TestMoveZeroStops(t *testing.T) {
	s := NewSimDelta(SimConfig{})
	az := s.Axis(ZAxis)
	az.Move(true, 1000)
	az.SetSpeed(100)
	s.Advance(0.001)
	az.Move(false, 0)
	if az.IsMoving() {
		t.Error("Move(dir, 0) should stop the axis")
	}
}

func TestCoordinatedMoveSamplerAbort(t *testing.T) {
	s := NewSimDelta(SimConfig{HomeZ: 20})

	// A sampler that aborts once z drops below 10.
	s.Attach(1000, func() {
		if s.AxisPosition()[2] < 10 {
			s.Axis(ZAxis).ForceFinishMove()
		}
	})

	if err := s.CoordinatedMove(math.NaN(), math.NaN(), 0, 30, false); err != nil {
		t.Fatal(err)
	}
	z := s.AxisPosition()[2]
	if z < 9.4 || z >= 10 {
		t.Errorf("aborted at z = %v, want just below 10", z)
	}
}

func TestGeometryToggles(t *testing.T) {
	s := NewSimDelta(SimConfig{})
	s.GeometrySupported = false
	if _, err := s.BasicGeometry(); err != kinematics.ErrUnsupported {
		t.Errorf("BasicGeometry err = %v, want ErrUnsupported", err)
	}
	s.TrimEnabled = false
	if _, err := s.Trim(); err == nil {
		t.Error("Trim should fail when endstops are disabled")
	}
}

func TestForwardReadbackMatchesPosition(t *testing.T) {
	s := NewSimDelta(SimConfig{})
	s.ResetAxisPosition([3]float64{12, -7, 30})

	var carriage [3]float64
	for i := 0; i < 3; i++ {
		carriage[i] = s.Axis(i).CurrentPosition()
	}
	got := s.Solution().Forward(carriage)
	want := [3]float64{12, -7, 30}
	for i := 0; i < 3; i++ {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("axis %d: forward = %v, want %v", i, got[i], want[i])
		}
	}
}
