package layout

import (
	"image"
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestPlaceExactFit(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		slot Slot
	}{
		{"square", 100, 100, Slot{X: 10, Y: 20, Width: 50, Height: 50}},
		{"landscape", 1280, 720, Slot{X: 80, Y: 80, Width: 840, Height: 472.5}},
		{"portrait", 300, 600, Slot{Width: 150, Height: 300}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Place(tt.w, tt.h, tt.slot)
			if !near(p.Width, tt.slot.Width) || !near(p.Height, tt.slot.Height) {
				t.Fatalf("size = %vx%v, want %vx%v", p.Width, p.Height, tt.slot.Width, tt.slot.Height)
			}
			if !near(p.X, tt.slot.X) || !near(p.Y, tt.slot.Y) {
				t.Fatalf("origin = %v,%v, want %v,%v", p.X, p.Y, tt.slot.X, tt.slot.Y)
			}
		})
	}
}

func TestPlaceWiderImageOverflowsHorizontally(t *testing.T) {
	slot := Slot{X: 0, Y: 0, Width: 100, Height: 100}
	p := Place(200, 100, slot)

	if !near(p.Height, 100) || !near(p.Width, 200) {
		t.Fatalf("size = %vx%v, want 200x100", p.Width, p.Height)
	}
	if !near(p.X, -50) || !near(p.Y, 0) {
		t.Fatalf("origin = %v,%v, want -50,0", p.X, p.Y)
	}
}

func TestPlaceTallerImageOverflowsVertically(t *testing.T) {
	slot := Slot{X: 10, Y: 10, Width: 100, Height: 50}
	p := Place(100, 100, slot)

	if !near(p.Width, 100) || !near(p.Height, 100) {
		t.Fatalf("size = %vx%v, want 100x100", p.Width, p.Height)
	}
	if !near(p.X, 10) || !near(p.Y, -15) {
		t.Fatalf("origin = %v,%v, want 10,-15", p.X, p.Y)
	}
}

func TestPlaceCoversSlot(t *testing.T) {
	slot := Slot{X: 80, Y: 80, Width: 840, Height: 600}
	for _, size := range [][2]int{{640, 480}, {480, 640}, {1920, 1080}, {1, 1000}} {
		p := Place(size[0], size[1], slot)
		if p.X > slot.X+eps || p.Y > slot.Y+eps {
			t.Errorf("%v: placement starts inside slot: %+v", size, p)
		}
		if p.X+p.Width < slot.X+slot.Width-eps || p.Y+p.Height < slot.Y+slot.Height-eps {
			t.Errorf("%v: placement does not cover slot: %+v", size, p)
		}
		aspect := float64(size[0]) / float64(size[1])
		if math.Abs(p.Width/p.Height-aspect) > 1e-6 {
			t.Errorf("%v: aspect distorted: %v vs %v", size, p.Width/p.Height, aspect)
		}
	}
}

func TestPlaceIdempotent(t *testing.T) {
	slot := Slot{X: 3, Y: 7, Width: 333, Height: 222}
	first := Place(1234, 567, slot)
	second := Place(1234, 567, slot)
	if first != second {
		t.Fatalf("Place not idempotent: %+v vs %+v", first, second)
	}
}

func TestPlaceDegenerateInput(t *testing.T) {
	p := Place(0, 10, Slot{X: 5, Y: 6, Width: 10, Height: 10})
	if p.Width != 0 || p.Height != 0 {
		t.Fatalf("expected empty placement, got %+v", p)
	}
}

func TestShrink(t *testing.T) {
	s := Slot{X: 10, Y: 100, Width: 200, Height: 100}.Shrink(0.9)
	if !near(s.Height, 90) || !near(s.Y, 105) {
		t.Fatalf("shrunk = %+v, want Y=105 H=90", s)
	}
	if s.X != 10 || s.Width != 200 {
		t.Fatalf("shrink must not touch horizontal extent: %+v", s)
	}

	orig := Slot{Width: 10, Height: 10}
	for _, f := range []float64{0, -1, 1, 1.5} {
		if got := orig.Shrink(f); got != orig {
			t.Errorf("Shrink(%v) = %+v, want unchanged", f, got)
		}
	}
}

func TestShrinkKeepsPlacementCentered(t *testing.T) {
	slot := Slot{X: 0, Y: 0, Width: 400, Height: 300}.Shrink(0.95)
	p := Place(400, 400, slot)
	top := slot.Y - p.Y
	bottom := (p.Y + p.Height) - (slot.Y + slot.Height)
	if !near(top, bottom) {
		t.Fatalf("asymmetric overflow: top %v bottom %v", top, bottom)
	}
}

func TestStrip4Geometry(t *testing.T) {
	slots := Strip4(1000, 3000)
	if len(slots) != 4 {
		t.Fatalf("len = %d, want 4", len(slots))
	}

	available := float64(3000-40-40-220) - 80
	wantH := (available - 3*30) / 4
	for i, s := range slots {
		if !near(s.X, 80) || !near(s.Width, 840) {
			t.Errorf("slot %d horizontal = %v/%v, want 80/840", i, s.X, s.Width)
		}
		if !near(s.Height, wantH) {
			t.Errorf("slot %d height = %v, want %v", i, s.Height, wantH)
		}
		wantY := 80 + float64(i)*(wantH+30)
		if !near(s.Y, wantY) {
			t.Errorf("slot %d y = %v, want %v", i, s.Y, wantY)
		}
	}
}

func TestGrid8(t *testing.T) {
	slots := Grid8(1000, 3000)
	if len(slots) != 8 {
		t.Fatalf("len = %d, want 8", len(slots))
	}
	if !near(slots[0].Y, slots[1].Y) || slots[1].X <= slots[0].X {
		t.Fatalf("first row not side by side: %+v %+v", slots[0], slots[1])
	}
	if !near(slots[1].X+slots[1].Width, 920) {
		t.Fatalf("right column ends at %v, want 920", slots[1].X+slots[1].Width)
	}
}

func TestByName(t *testing.T) {
	l, err := ByName("strip4", 1000, 3000)
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if l.Name != "strip4" || len(l.Slots) != 4 {
		t.Fatalf("layout = %+v", l)
	}
	if _, err := ByName("hexagon", 10, 10); err == nil {
		t.Fatal("expected error for unknown layout")
	}
	if names := Names(); len(names) != 2 || names[0] != "grid8" {
		t.Fatalf("Names = %v", names)
	}
}

func TestRects(t *testing.T) {
	r := Slot{X: 10.2, Y: 5.5, Width: 10, Height: 10}.Rect()
	if r != image.Rect(10, 5, 21, 16) {
		t.Fatalf("Slot.Rect = %v", r)
	}
	pr := Placement{X: -49.6, Y: 0.4, Width: 200, Height: 100}.Rect()
	if pr != image.Rect(-50, 0, 150, 100) {
		t.Fatalf("Placement.Rect = %v", pr)
	}
}
