package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Task events
	EventTaskSpawned   EventType = "task.spawned"
	EventTaskCompleted EventType = "task.completed"
	EventTaskDetached  EventType = "task.detached"
	EventTaskPanicked  EventType = "task.panicked"

	// Loop events
	EventLoopStarted EventType = "loop.started"
	EventLoopStopped EventType = "loop.stopped"
	EventLoopQuit    EventType = "loop.quit"
)

// Event represents an executor event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ToJSON serializes the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher defines the interface for event publishers
type Publisher interface {
	Publish(event *Event)
	Subscribe(eventTypes ...EventType) (<-chan *Event, func())
	Close()
}

// TaskEventData creates event data for task events
func TaskEventData(taskID, backend string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"task_id": taskID,
		"backend": backend,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// LoopEventData creates event data for loop events
func LoopEventData(threadID int64, kind string) map[string]interface{} {
	return map[string]interface{}{
		"thread_id": threadID,
		"kind":      kind,
	}
}
