package alert

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one alert-worthy occurrence, kept in the recent-detections
// ring and handed to the sender.
type Event struct {
	ID        string    `json:"id"`
	CameraID  string    `json:"camera"`
	Kind      Kind      `json:"kind"`
	Tags      []string  `json:"tags"`
	Timestamp time.Time `json:"timestamp"`
}

// Sender delivers a notification. Implementations own retry policy;
// the dispatcher only logs failures.
type Sender interface {
	Send(title, body string, tags []string) bool
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(title, body string, tags []string) bool

func (f SenderFunc) Send(title, body string, tags []string) bool {
	return f(title, body, tags)
}

// Listener observes every event the dispatcher accepts, after cooldown
// gating. Used for websocket broadcast.
type Listener func(Event)

// Dispatcher deduplicates and rate-limits outbound notifications and
// keeps a bounded ring of recent events for downstream display.
type Dispatcher struct {
	sender    Sender
	cooldowns *Cooldowns
	now       func() time.Time

	mu        sync.Mutex
	ring      []Event
	ringCap   int
	listeners []Listener
}

// NewDispatcher creates a dispatcher. ringCap bounds the recent-events
// buffer; older entries are evicted first.
func NewDispatcher(sender Sender, cooldowns *Cooldowns, ringCap int) *Dispatcher {
	if ringCap <= 0 {
		ringCap = 25
	}
	return &Dispatcher{
		sender:    sender,
		cooldowns: cooldowns,
		ringCap:   ringCap,
		now:       time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (d *Dispatcher) SetNowFunc(now func() time.Time) {
	d.now = now
}

// AddListener registers an observer for accepted events.
func (d *Dispatcher) AddListener(l Listener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

// Notify sends an alert if the (camera, kind) cooldown permits.
// Returns true when a notification was handed to the sender.
func (d *Dispatcher) Notify(cameraID string, kind Kind, tags []string) bool {
	if !d.cooldowns.Allow(cameraID, kind) {
		return false
	}
	d.Send(cameraID, kind, tags)
	return true
}

// Send dispatches without consulting the cooldown table. Used for events
// whose cooldown was already consumed at the firing site (the intruder
// monitor) and for single-fire tamper transitions.
func (d *Dispatcher) Send(cameraID string, kind Kind, tags []string) {
	event := Event{
		ID:        uuid.NewString(),
		CameraID:  cameraID,
		Kind:      kind,
		Tags:      append([]string(nil), tags...),
		Timestamp: d.now(),
	}
	sort.Strings(event.Tags)

	d.record(event)

	title, body := formatNotification(event)
	if !d.sender.Send(title, body, event.Tags) {
		log.Printf("[Alert] %s: notification send failed (kind=%s)", cameraID, kind)
	}
}

func (d *Dispatcher) record(event Event) {
	d.mu.Lock()
	d.ring = append(d.ring, event)
	if len(d.ring) > d.ringCap {
		d.ring = d.ring[len(d.ring)-d.ringCap:]
	}
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

// Recent returns the buffered events, oldest first.
func (d *Dispatcher) Recent() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.ring...)
}

func formatNotification(event Event) (title, body string) {
	when := event.Timestamp.Format("03:04:05 PM")
	switch event.Kind {
	case KindTampering:
		title = fmt.Sprintf("Camera Tampering Alert (%s)", event.CameraID)
		body = fmt.Sprintf("Camera appears to be covered/blocked at %s", when)
	case KindLingering:
		title = fmt.Sprintf("Intruder Alert (%s)", event.CameraID)
		body = fmt.Sprintf("Lingering person detected at %s", when)
	case KindMovement:
		title = fmt.Sprintf("Intruder Alert (%s)", event.CameraID)
		body = fmt.Sprintf("Suspicious movement detected at %s", when)
	case KindNight:
		title = fmt.Sprintf("Night Intruder Alert (%s)", event.CameraID)
		body = fmt.Sprintf("Person detected during night hours at %s", when)
	default:
		title = fmt.Sprintf("FalconEye Alert (%s)", event.CameraID)
		body = fmt.Sprintf("Detected: %s at %s", strings.Join(event.Tags, ", "), when)
	}
	return title, body
}
