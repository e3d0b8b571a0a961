package diag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventEncodeDecode(t *testing.T) {
	ev := &Event{
		Board:    "b1",
		Device:   "eth",
		Client:   3,
		Op:       "open",
		Result:   "negotiation-failed",
		Message:  "link down",
		Severity: SeverityError,
		UnixNano: 1000,
	}
	data, err := ev.Encode()
	require.NoError(t, err)
	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	require.Equal(t, ev, decoded)
	require.Contains(t, decoded.String(), `device:"eth"`)

	_, err = DecodeEvent([]byte{0xff, 0xff})
	require.Error(t, err)
}

func TestStampAndMux(t *testing.T) {
	var got []*Event
	collect := ReportFunc(func(ev *Event) { got = append(got, ev) })
	r := Stamp("board", (&Mux{}).Add(collect, Discard, LogReporter{}))
	r.Report(&Event{Device: "uart"})
	r.Report(&Event{Device: "lcd", Board: "other", UnixNano: 5})
	require.Len(t, got, 2)
	require.Equal(t, "board", got[0].Board)
	require.NotZero(t, got[0].UnixNano)
	require.Equal(t, "other", got[1].Board)
	require.Equal(t, int64(5), got[1].UnixNano)
}
