package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockStudyRoomRepository struct {
	mock.Mock
}

func (m *MockStudyRoomRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockStudyRoomRepository) GetUserById(userId int) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStudyRoomRepository) CreateSession(params CreateSessionParams) (StudySession, error) {
	args := m.Called(params)
	return args.Get(0).(StudySession), args.Error(1)
}
func (m *MockStudyRoomRepository) GetSessionByCode(roomCode string) (StudySession, error) {
	args := m.Called(roomCode)
	return args.Get(0).(StudySession), args.Error(1)
}
func (m *MockStudyRoomRepository) SessionCodeExists(roomCode string) bool {
	args := m.Called(roomCode)
	return args.Bool(0)
}
func (m *MockStudyRoomRepository) CloseSession(sessionId int) error {
	args := m.Called(sessionId)
	return args.Error(0)
}
func (m *MockStudyRoomRepository) AddParticipant(sessionId, userId int) error {
	args := m.Called(sessionId, userId)
	return args.Error(0)
}
func (m *MockStudyRoomRepository) RemoveParticipant(sessionId, userId int) error {
	args := m.Called(sessionId, userId)
	return args.Error(0)
}
func (m *MockStudyRoomRepository) GetParticipants(sessionId int) ([]User, error) {
	args := m.Called(sessionId)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockStudyRoomRepository) GetAttendanceRecord(recordId int) (AttendanceRecord, error) {
	args := m.Called(recordId)
	return args.Get(0).(AttendanceRecord), args.Error(1)
}
func (m *MockStudyRoomRepository) GetOpenRecordsByUser(userId int) ([]AttendanceRecord, error) {
	args := m.Called(userId)
	return args.Get(0).([]AttendanceRecord), args.Error(1)
}
func (m *MockStudyRoomRepository) GetOpenRecordForUserSession(userId, sessionId int) (AttendanceRecord, error) {
	args := m.Called(userId, sessionId)
	return args.Get(0).(AttendanceRecord), args.Error(1)
}
func (m *MockStudyRoomRepository) CountAttendance(userId, sessionId int) (int, error) {
	args := m.Called(userId, sessionId)
	return args.Int(0), args.Error(1)
}
func (m *MockStudyRoomRepository) CreateAttendance(params CreateAttendanceParams) (AttendanceRecord, error) {
	args := m.Called(params)
	return args.Get(0).(AttendanceRecord), args.Error(1)
}
func (m *MockStudyRoomRepository) UpdateAttendanceStatus(recordId int, status string, lastChange time.Time, focusTime time.Duration) error {
	args := m.Called(recordId, status, lastChange, focusTime)
	return args.Error(0)
}
func (m *MockStudyRoomRepository) UpdateAttendanceFocusTarget(recordId int, target string) error {
	args := m.Called(recordId, target)
	return args.Error(0)
}
func (m *MockStudyRoomRepository) CloseAttendance(params CloseAttendanceParams) error {
	args := m.Called(params)
	return args.Error(0)
}
func (m *MockStudyRoomRepository) ListOpenAttendance() ([]AttendanceRecord, error) {
	args := m.Called()
	return args.Get(0).([]AttendanceRecord), args.Error(1)
}
func (m *MockStudyRoomRepository) GetAttendanceHistory(userId, sessionId int) ([]AttendanceRecord, error) {
	args := m.Called(userId, sessionId)
	return args.Get(0).([]AttendanceRecord), args.Error(1)
}
