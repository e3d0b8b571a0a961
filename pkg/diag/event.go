// Package diag provides the diagnostic channel devices report to.
package diag

import (
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"
)

// Severity of an event.
type Severity int32

// Severities
const (
	SeverityInfo    Severity = 0
	SeverityWarning Severity = 1
	SeverityError   Severity = 2
)

// Event is a single diagnostic record, encoded with protobuf on the wire.
type Event struct {
	Board    string   `protobuf:"bytes,1,opt,name=board,proto3" json:"board,omitempty"`
	Device   string   `protobuf:"bytes,2,opt,name=device,proto3" json:"device,omitempty"`
	Client   uint32   `protobuf:"varint,3,opt,name=client,proto3" json:"client,omitempty"`
	Op       string   `protobuf:"bytes,4,opt,name=op,proto3" json:"op,omitempty"`
	Result   string   `protobuf:"bytes,5,opt,name=result,proto3" json:"result,omitempty"`
	Message  string   `protobuf:"bytes,6,opt,name=message,proto3" json:"message,omitempty"`
	Severity Severity `protobuf:"varint,7,opt,name=severity,proto3" json:"severity,omitempty"`
	UnixNano int64    `protobuf:"varint,8,opt,name=unix_nano,proto3" json:"unix_nano,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Event) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Event) Reset() { *m = Event{} }

// String implements proto.Message.
func (m *Event) String() string { return proto.CompactTextString(m) }

// Time returns the event timestamp.
func (m *Event) Time() time.Time {
	return time.Unix(0, m.UnixNano)
}

// Encode encodes the event to bytes.
func (m *Event) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// DecodeEvent decodes bytes into an Event.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := proto.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Reporter receives diagnostic events.
type Reporter interface {
	Report(*Event)
}

// ReportFunc is the func form of Reporter.
type ReportFunc func(*Event)

// Report implements Reporter.
func (f ReportFunc) Report(ev *Event) {
	f(ev)
}

// Discard drops all events.
var Discard Reporter = ReportFunc(func(*Event) {})

// LogReporter writes events to glog.
type LogReporter struct{}

// Report implements Reporter.
func (LogReporter) Report(ev *Event) {
	switch ev.Severity {
	case SeverityError:
		glog.Errorf("[%s] %s client=%d %s: %s", ev.Device, ev.Op, ev.Client, ev.Result, ev.Message)
	case SeverityWarning:
		glog.Warningf("[%s] %s client=%d %s: %s", ev.Device, ev.Op, ev.Client, ev.Result, ev.Message)
	default:
		if glog.V(2) {
			glog.Infof("[%s] %s client=%d %s", ev.Device, ev.Op, ev.Client, ev.Result)
		}
	}
}

// Mux fans events out to multiple reporters.
type Mux struct {
	Reporters []Reporter
}

// Add adds more reporters.
func (m *Mux) Add(reporters ...Reporter) *Mux {
	m.Reporters = append(m.Reporters, reporters...)
	return m
}

// Report implements Reporter.
func (m *Mux) Report(ev *Event) {
	for _, r := range m.Reporters {
		r.Report(ev)
	}
}

// Stamp fills in the board name and time when missing.
func Stamp(board string, r Reporter) Reporter {
	return ReportFunc(func(ev *Event) {
		if ev.Board == "" {
			ev.Board = board
		}
		if ev.UnixNano == 0 {
			ev.UnixNano = time.Now().UnixNano()
		}
		r.Report(ev)
	})
}
