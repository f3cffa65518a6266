package broadcast

import (
	"encoding/json"
	"errors"
)

type EventType string

const (
	EventChatMessage        EventType = "chat_message"
	EventTyping             EventType = "typing"
	EventAddTask            EventType = "add_task"
	EventRemoveTask         EventType = "remove_task"
	EventToggleTask         EventType = "toggle_task"
	EventDeleteList         EventType = "delete_list"
	EventFileUploaded       EventType = "file_uploaded"
	EventFileDeleted        EventType = "file_deleted"
	EventParticipantsUpdate EventType = "participants_update"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrMalformedEvent = errors.New("event is missing required fields")
)

// Event is the decoded form of an inbound frame. Task and file payloads
// stay opaque: the broadcaster validates shape, not business logic.
type Event struct {
	Type        EventType       `json:"type"`
	Message     string          `json:"message,omitempty"`
	Sender      string          `json:"sender,omitempty"`
	Task        json.RawMessage `json:"task,omitempty"`
	TaskId      *int            `json:"task_id,omitempty"`
	IsCompleted *bool           `json:"is_completed,omitempty"`
	ListId      *int            `json:"list_id,omitempty"`
	File        json.RawMessage `json:"file,omitempty"`
	FileName    string          `json:"fileName,omitempty"`
}

// ParticipantsUpdate is the one event the server originates itself. The
// participant list always marshals, even when empty.
type ParticipantsUpdate struct {
	Type         EventType `json:"type"`
	Participants []string  `json:"participants"`
}

func NewParticipantsUpdate(usernames []string) ParticipantsUpdate {
	if usernames == nil {
		usernames = []string{}
	}

	return ParticipantsUpdate{
		Type:         EventParticipantsUpdate,
		Participants: usernames,
	}
}

// DecodeEvent parses and validates an inbound frame. Unknown types and
// recognized types missing their required fields both return an error; the
// caller drops the frame without surfacing anything to the sender.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, ErrMalformedEvent
	}

	switch ev.Type {
	case EventChatMessage:
		if ev.Message == "" || ev.Sender == "" {
			return Event{}, ErrMalformedEvent
		}
	case EventTyping:
		if ev.Sender == "" {
			return Event{}, ErrMalformedEvent
		}
	case EventAddTask:
		if len(ev.Task) == 0 {
			return Event{}, ErrMalformedEvent
		}
	case EventRemoveTask:
		if ev.TaskId == nil {
			return Event{}, ErrMalformedEvent
		}
	case EventToggleTask:
		if ev.TaskId == nil || ev.IsCompleted == nil {
			return Event{}, ErrMalformedEvent
		}
	case EventDeleteList:
		if ev.ListId == nil {
			return Event{}, ErrMalformedEvent
		}
	case EventFileUploaded:
		if len(ev.File) == 0 {
			return Event{}, ErrMalformedEvent
		}
	case EventFileDeleted:
		if ev.FileName == "" {
			return Event{}, ErrMalformedEvent
		}
	default:
		return Event{}, ErrUnknownEvent
	}

	return ev, nil
}
