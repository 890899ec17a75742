// Package notify announces accepted scale signals to chat channels.
//
// Notifications are best-effort: callers log a failed Notify and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Event describes one accepted scale signal.
type Event struct {
	Source        string // "api", "schedule:<name>", "cli"
	Requester     string // API key name or schedule name
	CapacityUnits int
	Level         string // empty in direct mode
	ExpiresAt     time.Time
	Token         string
	QueueDepth    int64
}

// Notifier delivers an Event somewhere.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Field is one key/value pair of a rendered message.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Message is the platform-neutral rendering of an Event.
type Message struct {
	Title  string
	Body   string
	Color  string
	Fields []Field
}

// scaleColor is the accent used for scale-out announcements.
const scaleColor = "#36a64f"

// Format renders evt for chat adapters.
func Format(evt Event) Message {
	title := fmt.Sprintf("Scale-out requested: %d units", evt.CapacityUnits)
	if evt.Level != "" {
		title = fmt.Sprintf("Scale-out requested: %s (%d units)", evt.Level, evt.CapacityUnits)
	}

	msg := Message{
		Title: title,
		Body:  fmt.Sprintf("Capacity held until %s.", evt.ExpiresAt.Format("2006-01-02 15:04:05")),
		Color: scaleColor,
		Fields: []Field{
			{Name: "Token", Value: "`" + evt.Token + "`"},
			{Name: "Queue depth", Value: strconv.FormatInt(evt.QueueDepth, 10), Short: true},
		},
	}
	if evt.Source != "" {
		msg.Fields = append(msg.Fields, Field{Name: "Source", Value: evt.Source, Short: true})
	}
	if evt.Requester != "" {
		msg.Fields = append(msg.Fields, Field{Name: "Requested by", Value: evt.Requester, Short: true})
	}
	return msg
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every notifier. All notifiers are attempted;
// their errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
