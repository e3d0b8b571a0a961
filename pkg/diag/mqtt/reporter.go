package mqtt

import (
	"context"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/diag"
)

// EventsTopic is the topic suffix events are published to.
const EventsTopic = "events"

// Publisher is the part of Queue a Reporter needs.
type Publisher interface {
	Pub(topic string, payload []byte) paho.Token
}

// Reporter publishes diagnostic events to <board>/events.
// Events are queued and published from Run, so Report never blocks a
// device operation.
type Reporter struct {
	Board string

	pub     Publisher
	eventCh chan *diag.Event
}

// DefaultBacklog is the number of events buffered before dropping.
const DefaultBacklog = 64

// NewReporter creates a Reporter.
func NewReporter(pub Publisher, board string) *Reporter {
	return &Reporter{
		Board:   board,
		pub:     pub,
		eventCh: make(chan *diag.Event, DefaultBacklog),
	}
}

// Topic returns the events topic of a board.
func Topic(board string) string {
	return board + "/" + EventsTopic
}

// Report implements diag.Reporter.
func (r *Reporter) Report(ev *diag.Event) {
	if ev.Board == "" {
		ev.Board = r.Board
	}
	select {
	case r.eventCh <- ev:
	default:
		glog.Warningf("mqtt reporter backlog full, drop %s %s event", ev.Device, ev.Op)
	}
}

// Name implements rtos.Named.
func (r *Reporter) Name() string {
	return "mqtt-reporter"
}

// Run implements rtos.Runnable.
func (r *Reporter) Run(ctx context.Context) error {
	topic := Topic(r.Board)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.eventCh:
			payload, err := ev.Encode()
			if err != nil {
				glog.Errorf("encode event error: %v", err)
				continue
			}
			r.pub.Pub(topic, payload)
		}
	}
}

// Watch subscribes to events of all boards and calls fn for each
// decoded event.
func Watch(q *Queue, fn func(*diag.Event)) paho.Token {
	return q.Sub("+/"+EventsTopic, func(topic string, payload []byte) {
		ev, err := diag.DecodeEvent(payload)
		if err != nil {
			glog.Warningf("%s: bad event: %v", topic, err)
			return
		}
		if ev.Board == "" {
			ev.Board = strings.TrimSuffix(topic, "/"+EventsTopic)
		}
		fn(ev)
	})
}
