package turtle

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const tolerance = 1e-9

func near(a, b mgl64.Vec3) bool {
	return a.Sub(b).Len() < tolerance
}

func TestNearToleratesRoundingNoiseAtZero(t *testing.T) {
	got := mgl64.Vec3{math.Cos(math.Pi / 2), 1, 0}
	if !near(got, mgl64.Vec3{0, 1, 0}) {
		t.Fatalf("near(%v, +Y) = false", got)
	}
	if near(mgl64.Vec3{1e-6, 1, 0}, mgl64.Vec3{0, 1, 0}) {
		t.Fatalf("near accepted a 1e-6 offset")
	}
}

func TestPitchDownTipsHeadingAboutRight(t *testing.T) {
	tr := New()
	tr.PitchDown(90)
	// rotating +Z by -90 degrees about +X lands on +Y
	if !near(tr.Dir, mgl64.Vec3{0, 1, 0}) {
		t.Fatalf("unexpected heading %v", tr.Dir)
	}
	if !near(tr.Right, XAxis) {
		t.Fatalf("right vector should not move, got %v", tr.Right)
	}
}

func TestTurnKeepsFrameOrthonormal(t *testing.T) {
	tr := New()
	tr.RollRight(33)
	tr.PitchDown(47)
	tr.TurnRight(21)
	tr.TurnLeft(5)
	tr.ApplyTropism(mgl64.Vec3{0.3, 0, -1}, 1)

	if math.Abs(tr.Dir.Len()-1) > tolerance || math.Abs(tr.Right.Len()-1) > tolerance {
		t.Fatalf("frame lost unit length: |dir|=%v |right|=%v", tr.Dir.Len(), tr.Right.Len())
	}
	if math.Abs(tr.Dir.Dot(tr.Right)) > 1e-9 {
		t.Fatalf("frame lost orthogonality: dot=%v", tr.Dir.Dot(tr.Right))
	}
}

func TestTurnLeftUndoesTurnRight(t *testing.T) {
	tr := New()
	tr.RollRight(70)
	tr.PitchDown(20)
	before := tr
	tr.TurnRight(35)
	tr.TurnLeft(35)
	if !near(tr.Dir, before.Dir) || !near(tr.Right, before.Right) {
		t.Fatalf("turn left did not undo turn right: %v vs %v", tr, before)
	}
}

func TestTropismPullsTowardVector(t *testing.T) {
	tr := New()
	tr.PitchDown(90)
	down := mgl64.Vec3{0, 0, -1}
	before := tr.Dir.Dot(down)
	tr.ApplyTropism(down, 1)
	if tr.Dir.Dot(down) <= before {
		t.Fatalf("tropism should bend toward %v, got %v", down, tr.Dir)
	}
}

func TestTropismParallelIsNoop(t *testing.T) {
	tr := New()
	tr.ApplyTropism(mgl64.Vec3{0, 0, 2}, 1)
	if !near(tr.Dir, Up) {
		t.Fatalf("parallel tropism should not rotate, got %v", tr.Dir)
	}
}

func TestMove(t *testing.T) {
	tr := New()
	tr.Move(2.5)
	if !near(tr.Pos, mgl64.Vec3{0, 0, 2.5}) {
		t.Fatalf("unexpected position %v", tr.Pos)
	}
}

func TestDeclination(t *testing.T) {
	if d := Declination(Up); math.Abs(d) > tolerance {
		t.Fatalf("up should have zero declination, got %v", d)
	}
	if d := Declination(XAxis); math.Abs(d-90) > tolerance {
		t.Fatalf("horizontal should have 90 degree declination, got %v", d)
	}
}

func TestNormalizeFallback(t *testing.T) {
	fb := mgl64.Vec3{0, 1, 0}
	if got := Normalize(mgl64.Vec3{}, fb); got != fb {
		t.Fatalf("expected fallback, got %v", got)
	}
	p := Perpendicular(XAxis)
	if math.Abs(p.Dot(XAxis)) > tolerance || math.Abs(p.Len()-1) > tolerance {
		t.Fatalf("perpendicular is wrong: %v", p)
	}
}
