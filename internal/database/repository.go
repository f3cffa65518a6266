package database

import "time"

type StudyRoomRepository interface {
	Ping() error

	GetUserById(userId int) (User, error)

	CreateSession(params CreateSessionParams) (StudySession, error)
	GetSessionByCode(roomCode string) (StudySession, error)
	SessionCodeExists(roomCode string) bool
	CloseSession(sessionId int) error
	AddParticipant(sessionId, userId int) error
	RemoveParticipant(sessionId, userId int) error
	GetParticipants(sessionId int) ([]User, error)

	GetAttendanceRecord(recordId int) (AttendanceRecord, error)
	GetOpenRecordsByUser(userId int) ([]AttendanceRecord, error)
	GetOpenRecordForUserSession(userId, sessionId int) (AttendanceRecord, error)
	CountAttendance(userId, sessionId int) (int, error)
	CreateAttendance(params CreateAttendanceParams) (AttendanceRecord, error)
	UpdateAttendanceStatus(recordId int, status string, lastChange time.Time, focusTime time.Duration) error
	UpdateAttendanceFocusTarget(recordId int, target string) error
	CloseAttendance(params CloseAttendanceParams) error
	ListOpenAttendance() ([]AttendanceRecord, error)
	GetAttendanceHistory(userId, sessionId int) ([]AttendanceRecord, error)
}
