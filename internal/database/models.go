package database

import "time"

type User struct {
	Id                int
	Username          string
	EmailAddress      string
	HoursStudied      int
	SessionsCompleted int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type StudySession struct {
	Id         int
	Name       string
	RoomCode   string
	CreatedBy  int
	TaskListId int
	StartedAt  time.Time
	EndedAt    *time.Time
}

type TaskList struct {
	Id         int
	ExternalId string
	Name       string
	IsShared   bool
	CreatedAt  time.Time
}

type AttendanceRecord struct {
	Id               int
	UserId           int
	SessionId        int
	JoinSeq          int
	Status           string
	FocusTarget      string
	JoinedAt         time.Time
	LeftAt           *time.Time
	LastStatusChange time.Time
	FocusTime        time.Duration
}

type CreateSessionParams struct {
	Name           string
	RoomCode       string
	CreatedBy      int
	ListName       string
	ListExternalId string
}

type CreateAttendanceParams struct {
	UserId    int
	SessionId int
	JoinSeq   int
	Status    string
	JoinedAt  time.Time
}

// CloseAttendanceParams carries everything persisted when an attendance
// record is closed: the final focus tally on the record plus the study
// statistics credited to the user in the same transaction.
type CloseAttendanceParams struct {
	RecordId      int
	LeftAt        time.Time
	FocusTime     time.Duration
	CreditedHours int
}
