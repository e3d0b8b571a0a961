package lcd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/rtdev.go/pkg/device"
)

func TestOpNames(t *testing.T) {
	for op := DrawChar; op < numOps; op++ {
		parsed, err := ParseOp(op.String())
		require.NoError(t, err)
		require.Equal(t, op, parsed)
	}
	_, err := ParseOp("draw-spiral")
	require.Error(t, err)
	require.Equal(t, "op(10)", Op(10).String())
	require.False(t, Op(10).Valid())
}

func TestOpenDrawClose(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()
	d := New(device.NewGate("lcd", nil), rec)

	_, err := d.Open(ctx, 1, Black, 4)
	require.ErrorIs(t, err, ErrInvalidRotation)
	require.False(t, d.Gate().Reserved())

	cmd, err := d.Open(ctx, 1, Blue, 1)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	require.Equal(t, 1, rec.Inits())
	require.Equal(t, Blue, rec.Background())
	require.Equal(t, uint8(1), rec.Rotation())

	_, err = d.Open(ctx, 2, Black, 0)
	require.ErrorIs(t, err, device.ErrBusy)

	cmd.Op, cmd.X, cmd.Y, cmd.Text, cmd.Color = DrawString, 10, 20, "hello", White
	require.NoError(t, d.Write(ctx, 1, cmd))
	cmd.Op, cmd.Radius = FillCircle, 5
	require.NoError(t, d.Write(ctx, 1, cmd))
	drawn := rec.Commands()
	require.Len(t, drawn, 2)
	require.Equal(t, "hello", drawn[0].Text)
	require.Equal(t, FillCircle, drawn[1].Op)

	require.ErrorIs(t, d.Write(ctx, 2, cmd), device.ErrNotOwner)
	cmd.Op = Op(42)
	require.ErrorIs(t, d.Write(ctx, 1, cmd), ErrInvalidOp)
	require.ErrorIs(t, d.Write(ctx, 1, nil), ErrInvalidOp)

	cmd.Op, cmd.Color = FillScreen, Red
	require.NoError(t, d.Write(ctx, 1, cmd))
	require.Equal(t, Red, rec.Background())
	require.Empty(t, rec.Commands())

	require.ErrorIs(t, d.Close(ctx, 2), device.ErrNotOwner)
	require.NoError(t, d.Close(ctx, 1))
	require.False(t, d.Gate().Reserved())
	require.Equal(t, Op(0), cmd.Op)
	require.Zero(t, cmd.Color)

	_, err = d.Open(ctx, 2, Black, DefaultRotation)
	require.NoError(t, err)
	require.Equal(t, device.ClientID(2), d.Gate().Owner())
}

func TestReopenByOwner(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()
	d := New(device.NewGate("lcd", nil), rec)
	c1, err := d.Open(ctx, 3, Black, 3)
	require.NoError(t, err)
	c2, err := d.Open(ctx, 3, Green, 2)
	require.NoError(t, err)
	require.Same(t, c1, c2)
	require.Equal(t, 2, rec.Inits())
	require.Equal(t, Green, rec.Background())
}

func TestCommandString(t *testing.T) {
	c := &Command{Op: DrawLine, X: 1, Y: 2, X1: 3, Y1: 4}
	require.Equal(t, "draw-line (1,2)-(3,4)", c.String())
	c = &Command{Op: FillScreen, Color: Red}
	require.Equal(t, "fill-screen 0xf800", c.String())
}
