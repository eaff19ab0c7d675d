package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"etf_momentum/internal/metrics"
	"etf_momentum/internal/telegram"
)

// Severity marks how urgently an event needs a human.
type Severity int

const (
	Normal Severity = iota
	// Critical events may leave money at risk, e.g. a position left open overnight.
	Critical
)

func (s Severity) String() string {
	if s == Critical {
		return "critical"
	}
	return "normal"
}

// Event is one operator-facing message.
type Event struct {
	Title    string
	Body     string
	Severity Severity
}

// Notifier delivers events. Delivery failures are returned to the caller,
// who logs them; they never alter trading behaviour.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Console writes events to the standard logger.
type Console struct{}

func (Console) Notify(_ context.Context, ev Event) error {
	if ev.Severity == Critical {
		log.Printf("CRITICAL: %s: %s", ev.Title, ev.Body)
		return nil
	}
	log.Printf("%s: %s", ev.Title, ev.Body)
	return nil
}

// Telegram forwards events to a chat.
type Telegram struct {
	Client *telegram.Client
}

func (t Telegram) Notify(ctx context.Context, ev Event) error {
	return t.Client.Send(ctx, Format(ev))
}

// Format renders an event as a Markdown chat message.
func Format(ev Event) string {
	icon := "ℹ️"
	if ev.Severity == Critical {
		icon = "🚨"
	}
	if ev.Body == "" {
		return fmt.Sprintf("%s *%s*", icon, ev.Title)
	}
	return fmt.Sprintf("%s *%s*\n%s", icon, ev.Title, ev.Body)
}

// Channel is a named notifier, used for metric labels.
type Channel struct {
	Name string
	Notifier
}

// Multi fans an event out to every channel. A failing channel does not
// stop delivery to the others.
type Multi struct {
	channels []Channel
	metrics  *metrics.Metrics
}

func NewMulti(m *metrics.Metrics, channels ...Channel) *Multi {
	return &Multi{channels: channels, metrics: m}
}

func (m *Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, ev); err != nil {
			m.metrics.Notification(ch.Name, "error")
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
			continue
		}
		m.metrics.Notification(ch.Name, "ok")
	}
	return errors.Join(errs...)
}

// Send delivers ev and logs, rather than returns, any failure.
func Send(ctx context.Context, n Notifier, ev Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, ev); err != nil {
		log.Printf("Warning: notification %q not delivered: %v", ev.Title, err)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many recorded events have the given severity.
func (r *Recorder) Count(sev Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Severity == sev {
			n++
		}
	}
	return n
}
