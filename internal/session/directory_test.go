package session

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/studyhive/studyroom/internal/database"
	"github.com/studyhive/studyroom/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func Test_generateRoomCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code := generateRoomCode()
		assert.Len(t, code, roomCodeLength, "expected code to be %d characters", roomCodeLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(roomCodeAlphabet, c), "expected code to only contain [A-Z0-9], got %q", code)
		}
		seen[code] = struct{}{}
	}

	// 100 draws from a 36^8 space should essentially never collide
	assert.Greater(t, len(seen), 90, "expected generated codes to vary")
}

func TestCreateSession(t *testing.T) {
	t.Run("creates session with trimmed name", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("SessionCodeExists", mock.AnythingOfType("string")).Return(false).Once()
		mockRepo.On("CreateSession", mock.MatchedBy(func(params database.CreateSessionParams) bool {
			return params.Name == "Evening Review" &&
				params.CreatedBy == 1 &&
				len(params.RoomCode) == roomCodeLength &&
				params.ListName == defaultListName &&
				params.ListExternalId != ""
		})).Return(database.StudySession{
			Id:         1,
			Name:       "Evening Review",
			RoomCode:   "WXYZ9999",
			CreatedBy:  1,
			TaskListId: 7,
		}, nil).Once()

		d := NewDirectory(testutil.TestLogger(t), mockRepo)
		session, err := d.CreateSession(1, "  Evening Review  ")
		assert.NoError(t, err, "expected no error creating session")
		assert.Equal(t, "Evening Review", session.Name, "expected session name to match")
		assert.Equal(t, "WXYZ9999", session.RoomCode, "expected room code to match")
		assert.Equal(t, 7, session.TaskListId, "expected task list to be attached")
	})

	t.Run("blank name falls back to default", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("SessionCodeExists", mock.AnythingOfType("string")).Return(false).Once()
		mockRepo.On("CreateSession", mock.MatchedBy(func(params database.CreateSessionParams) bool {
			return params.Name == DefaultSessionName
		})).Return(database.StudySession{Id: 1, Name: DefaultSessionName}, nil).Once()

		d := NewDirectory(testutil.TestLogger(t), mockRepo)
		session, err := d.CreateSession(1, "   ")
		assert.NoError(t, err, "expected blank name not to block creation")
		assert.Equal(t, DefaultSessionName, session.Name, "expected default session name")
	})

	t.Run("retries room code on collision", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("SessionCodeExists", mock.AnythingOfType("string")).Return(true).Twice()
		mockRepo.On("SessionCodeExists", mock.AnythingOfType("string")).Return(false).Once()
		mockRepo.On("CreateSession", mock.AnythingOfType("database.CreateSessionParams")).
			Return(database.StudySession{Id: 1}, nil).Once()

		d := NewDirectory(testutil.TestLogger(t), mockRepo)
		_, err := d.CreateSession(1, "test")
		assert.NoError(t, err, "expected collision to be retried, not surfaced")
		mockRepo.AssertNumberOfCalls(t, "SessionCodeExists", 3)
	})

	t.Run("create fails", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("SessionCodeExists", mock.AnythingOfType("string")).Return(false).Once()
		mockRepo.On("CreateSession", mock.AnythingOfType("database.CreateSessionParams")).
			Return(database.StudySession{}, errors.New("db error")).Once()

		d := NewDirectory(testutil.TestLogger(t), mockRepo)
		_, err := d.CreateSession(1, "test")
		assert.Error(t, err, "expected error when repository fails")
	})
}

func TestLookupByCode(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetSessionByCode", "WXYZ9999").Return(database.StudySession{
			Id:       1,
			Name:     "Test Room",
			RoomCode: "WXYZ9999",
		}, nil).Once()

		d := NewDirectory(testutil.TestLogger(t), mockRepo)
		session, err := d.LookupByCode("WXYZ9999")
		assert.NoError(t, err, "expected no error for existing code")
		assert.Equal(t, 1, session.Id, "expected session id to match")
	})

	t.Run("not found", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetSessionByCode", "ABCD1234").Return(database.StudySession{}, sql.ErrNoRows).Once()

		d := NewDirectory(testutil.TestLogger(t), mockRepo)
		_, err := d.LookupByCode("ABCD1234")
		assert.ErrorIs(t, err, ErrNotFound, "expected ErrNotFound for unknown code")
	})
}

func TestParticipants(t *testing.T) {
	mockRepo := &database.MockStudyRoomRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetParticipants", 1).Return([]database.User{
		{Id: 1, Username: "alice"},
		{Id: 2, Username: "bob"},
	}, nil).Once()

	d := NewDirectory(testutil.TestLogger(t), mockRepo)
	users, err := d.Participants(1)
	assert.NoError(t, err, "expected no error fetching participants")
	assert.Len(t, users, 2, "expected two participants")
	assert.Equal(t, "alice", users[0].Username, "expected usernames to be mapped")
}
