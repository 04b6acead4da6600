// Package notification keeps a bounded activity feed for the dashboard and
// broadcasts new events to connected websocket clients.
package notification

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies feed entries.
type EventType string

const (
	TypeAnalysisStarted   EventType = "analysis_started"
	TypeAnalysisCompleted EventType = "analysis_completed"
	TypeExpirationPicked  EventType = "expiration_picked"
	TypeSystemAlert       EventType = "system_alert"
)

// Priority is the display priority of an event.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Event is one entry in the dashboard activity feed.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Priority  Priority               `json:"priority"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Manager keeps the most recent events, newest first.
type Manager struct {
	mu        sync.RWMutex
	events    []Event
	maxEvents int
	listeners []func(Event)
}

// NewManager creates a feed bounded to maxEvents entries.
func NewManager(maxEvents int) *Manager {
	return &Manager{maxEvents: maxEvents}
}

// Subscribe registers a callback invoked for every new event. Callbacks
// must not block.
func (m *Manager) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Add prepends an event to the feed.
func (m *Manager) Add(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.events = append([]Event{event}, m.events...)
	if len(m.events) > m.maxEvents {
		m.events = m.events[:m.maxEvents]
	}
	listeners := make([]func(Event), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// Events returns a copy of the feed, optionally filtered by type.
func (m *Manager) Events(eventType EventType) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if eventType == "" {
		events := make([]Event, len(m.events))
		copy(events, m.events)
		return events
	}

	var filtered []Event
	for _, event := range m.events {
		if event.Type == eventType {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// Clear empties the feed.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// AnalysisStarted records the beginning of an analysis run.
func AnalysisStarted(ticker, trigger string) Event {
	return Event{
		Type:     TypeAnalysisStarted,
		Title:    ticker + " Analysis Started",
		Message:  fmt.Sprintf("Started %s analysis for %s", trigger, ticker),
		Priority: PriorityLow,
		Metadata: map[string]interface{}{"ticker": ticker, "trigger": trigger},
	}
}

// AnalysisCompleted records a finished analysis run.
func AnalysisCompleted(ticker string, dteDays, recommendations int) Event {
	return Event{
		Type:     TypeAnalysisCompleted,
		Title:    ticker + " Analysis Completed",
		Message:  fmt.Sprintf("%s analysis done at %d DTE with %d recommendation(s)", ticker, dteDays, recommendations),
		Priority: PriorityMedium,
		Metadata: map[string]interface{}{"ticker": ticker, "dte": dteDays, "recommendations": recommendations},
	}
}

// ExpirationPicked records a DTE discovery outcome.
func ExpirationPicked(ticker string, selectedDTE, targetDTE, optionCount int) Event {
	return Event{
		Type:  TypeExpirationPicked,
		Title: ticker + " Expiration Selected",
		Message: fmt.Sprintf("Selected %d DTE for %s (target %d, %d listed contracts)",
			selectedDTE, ticker, targetDTE, optionCount),
		Priority: PriorityLow,
		Metadata: map[string]interface{}{"ticker": ticker, "selected_dte": selectedDTE, "target_dte": targetDTE},
	}
}

// SystemAlert records an operational problem worth surfacing.
func SystemAlert(title, message string) Event {
	return Event{
		Type:     TypeSystemAlert,
		Title:    title,
		Message:  message,
		Priority: PriorityHigh,
	}
}
