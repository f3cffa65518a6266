package types

import (
	"time"
)

type User struct {
	Id                int       `json:"id"`
	Username          string    `json:"username"`
	EmailAddress      string    `json:"email_address,omitempty"`
	HoursStudied      int       `json:"hours_studied"`
	SessionsCompleted int       `json:"sessions_completed"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

type Session struct {
	Id           int        `json:"id"`
	Name         string     `json:"name"`
	RoomCode     string     `json:"room_code"`
	CreatedBy    int        `json:"created_by"`
	TaskListId   int        `json:"task_list_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Participants []User     `json:"participants,omitempty"`
}

type TaskList struct {
	Id         int       `json:"id"`
	ExternalId string    `json:"external_id"`
	Name       string    `json:"name"`
	IsShared   bool      `json:"is_shared"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

type AttendanceRecord struct {
	Id          int           `json:"id"`
	UserId      int           `json:"user_id"`
	SessionId   int           `json:"session_id"`
	JoinSeq     int           `json:"join_seq"`
	Status      string        `json:"status"`
	FocusTarget string        `json:"focus_target,omitempty"`
	JoinedAt    time.Time     `json:"joined_at"`
	LeftAt      *time.Time    `json:"left_at,omitempty"`
	FocusTime   time.Duration `json:"focus_time"`
}
