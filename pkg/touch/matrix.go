package touch

import (
	"errors"
	"fmt"
)

// ErrDegenerate indicates the calibration samples are collinear.
var ErrDegenerate = errors.New("calibration points are collinear")

// Point is a position either in raw ADC units or on the display.
type Point struct {
	X, Y int
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Matrix maps raw samples to display coordinates with the 3-point
// affine method:
//
//	X = (An*x + Bn*y + Cn) / Divider
//	Y = (Dn*x + En*y + Fn) / Divider
type Matrix struct {
	An, Bn, Cn int64
	Dn, En, Fn int64
	Divider    int64
}

// NewMatrix solves the matrix from three display targets and the raw
// samples taken while touching them.
func NewMatrix(display, raw [3]Point) (*Matrix, error) {
	xd0, yd0 := int64(display[0].X), int64(display[0].Y)
	xd1, yd1 := int64(display[1].X), int64(display[1].Y)
	xd2, yd2 := int64(display[2].X), int64(display[2].Y)
	xs0, ys0 := int64(raw[0].X), int64(raw[0].Y)
	xs1, ys1 := int64(raw[1].X), int64(raw[1].Y)
	xs2, ys2 := int64(raw[2].X), int64(raw[2].Y)

	m := &Matrix{
		Divider: (xs0-xs2)*(ys1-ys2) - (xs1-xs2)*(ys0-ys2),
	}
	if m.Divider == 0 {
		return nil, ErrDegenerate
	}
	m.An = (xd0-xd2)*(ys1-ys2) - (xd1-xd2)*(ys0-ys2)
	m.Bn = (xs0-xs2)*(xd1-xd2) - (xd0-xd2)*(xs1-xs2)
	m.Cn = ys0*(xs2*xd1-xs1*xd2) + ys1*(xs0*xd2-xs2*xd0) + ys2*(xs1*xd0-xs0*xd1)
	m.Dn = (yd0-yd2)*(ys1-ys2) - (yd1-yd2)*(ys0-ys2)
	m.En = (xs0-xs2)*(yd1-yd2) - (yd0-yd2)*(xs1-xs2)
	m.Fn = ys0*(xs2*yd1-xs1*yd2) + ys1*(xs0*yd2-xs2*yd0) + ys2*(xs1*yd0-xs0*yd1)
	return m, nil
}

// Map converts a raw sample to display coordinates.
func (m *Matrix) Map(raw Point) Point {
	x, y := int64(raw.X), int64(raw.Y)
	return Point{
		X: int((m.An*x + m.Bn*y + m.Cn) / m.Divider),
		Y: int((m.Dn*x + m.En*y + m.Fn) / m.Divider),
	}
}
