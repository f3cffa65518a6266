package attendance

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/studyhive/studyroom/internal/database"
	"github.com/studyhive/studyroom/internal/stats"
	"github.com/studyhive/studyroom/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestLedger(t *testing.T, db database.StudyRoomRepository) *Ledger {
	mockStats := &stats.MockStatsUpdater{}
	mockStats.On("Incr", mock.AnythingOfType("string")).Maybe()
	mockStats.On("Decr", mock.AnythingOfType("string")).Maybe()

	return NewLedger(testutil.TestLogger(t), db, mockStats)
}

func TestStart(t *testing.T) {
	t.Run("first join gets sequence 1", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetOpenRecordsByUser", 1).Return([]database.AttendanceRecord(nil), nil).Once()
		mockRepo.On("CountAttendance", 1, 10).Return(0, nil).Once()
		mockRepo.On("CreateAttendance", mock.MatchedBy(func(params database.CreateAttendanceParams) bool {
			return params.UserId == 1 &&
				params.SessionId == 10 &&
				params.JoinSeq == 1 &&
				params.Status == string(StatusCasual)
		})).Return(database.AttendanceRecord{
			Id:        1,
			UserId:    1,
			SessionId: 10,
			JoinSeq:   1,
			Status:    string(StatusCasual),
		}, nil).Once()

		l := newTestLedger(t, mockRepo)
		rec, err := l.Start(1, 10)
		assert.NoError(t, err, "expected no error starting attendance")
		assert.Equal(t, 1, rec.JoinSeq, "expected first join to get sequence 1")
		assert.Equal(t, string(StatusCasual), rec.Status, "expected initial status to be CASUAL")
	})

	t.Run("rejoin never reuses a sequence number", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetOpenRecordsByUser", 1).Return([]database.AttendanceRecord(nil), nil).Once()
		// three historical records exist, even though all are closed
		mockRepo.On("CountAttendance", 1, 10).Return(3, nil).Once()
		mockRepo.On("CreateAttendance", mock.MatchedBy(func(params database.CreateAttendanceParams) bool {
			return params.JoinSeq == 4
		})).Return(database.AttendanceRecord{Id: 4, JoinSeq: 4}, nil).Once()

		l := newTestLedger(t, mockRepo)
		rec, err := l.Start(1, 10)
		assert.NoError(t, err, "expected no error on rejoin")
		assert.Equal(t, 4, rec.JoinSeq, "expected sequence to continue past closed records")
	})

	t.Run("competing join closes the open record elsewhere", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		joined := time.Now().UTC().Add(-2 * time.Hour)
		open := database.AttendanceRecord{
			Id:               7,
			UserId:           1,
			SessionId:        10,
			JoinSeq:          1,
			Status:           string(StatusFocused),
			JoinedAt:         joined,
			LastStatusChange: time.Now().UTC().Add(-time.Hour),
		}

		mockRepo.On("GetOpenRecordsByUser", 1).Return([]database.AttendanceRecord{open}, nil).Once()
		mockRepo.On("CloseAttendance", mock.MatchedBy(func(params database.CloseAttendanceParams) bool {
			// an hour of focused time settles on close and credits one hour
			return params.RecordId == 7 &&
				params.CreditedHours == 1 &&
				params.FocusTime >= time.Hour &&
				params.FocusTime < time.Hour+time.Second
		})).Return(nil).Once()
		mockRepo.On("CountAttendance", 1, 20).Return(0, nil).Once()
		mockRepo.On("CreateAttendance", mock.MatchedBy(func(params database.CreateAttendanceParams) bool {
			return params.SessionId == 20 && params.JoinSeq == 1
		})).Return(database.AttendanceRecord{Id: 8, SessionId: 20, JoinSeq: 1}, nil).Once()

		l := newTestLedger(t, mockRepo)
		rec, err := l.Start(1, 20)
		assert.NoError(t, err, "expected no error joining second session")
		assert.Equal(t, 20, rec.SessionId, "expected record to be in the new session")
	})

	t.Run("concurrent joins resolve to one open record", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		first := database.AttendanceRecord{Id: 1, UserId: 1, SessionId: 10, JoinSeq: 1, Status: string(StatusCasual)}

		// The per-user lock serializes the two calls: the second join sees the
		// first record open, closes it, and takes the next sequence number.
		mockRepo.On("GetOpenRecordsByUser", 1).Return([]database.AttendanceRecord(nil), nil).Once()
		mockRepo.On("CountAttendance", 1, 10).Return(0, nil).Once()
		mockRepo.On("CreateAttendance", mock.AnythingOfType("database.CreateAttendanceParams")).
			Return(first, nil).Once()
		mockRepo.On("GetOpenRecordsByUser", 1).Return([]database.AttendanceRecord{first}, nil).Once()
		mockRepo.On("CloseAttendance", mock.MatchedBy(func(params database.CloseAttendanceParams) bool {
			return params.RecordId == 1
		})).Return(nil).Once()
		mockRepo.On("CountAttendance", 1, 10).Return(1, nil).Once()
		mockRepo.On("CreateAttendance", mock.AnythingOfType("database.CreateAttendanceParams")).
			Return(database.AttendanceRecord{Id: 2, JoinSeq: 2}, nil).Once()

		l := newTestLedger(t, mockRepo)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = l.Start(1, 10)
			}(i)
		}
		wg.Wait()

		assert.NoError(t, errs[0], "expected first join to succeed")
		assert.NoError(t, errs[1], "expected second join to succeed")
		mockRepo.AssertNumberOfCalls(t, "CloseAttendance", 1)
		mockRepo.AssertNumberOfCalls(t, "CreateAttendance", 2)
	})
}

func TestSetStatus(t *testing.T) {
	t.Run("invalid status", func(t *testing.T) {
		l := newTestLedger(t, &database.MockStudyRoomRepository{})
		err := l.SetStatus(1, Status("NAPPING"))
		assert.ErrorIs(t, err, ErrInvalidStatus, "expected ErrInvalidStatus")
	})

	t.Run("focused to casual settles focus time", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAttendanceRecord", 1).Return(database.AttendanceRecord{
			Id:               1,
			Status:           string(StatusFocused),
			JoinedAt:         time.Now().UTC().Add(-2 * time.Hour),
			LastStatusChange: time.Now().UTC().Add(-time.Hour),
			FocusTime:        30 * time.Minute,
		}, nil).Twice()
		mockRepo.On("UpdateAttendanceStatus", 1, string(StatusCasual), mock.AnythingOfType("time.Time"),
			mock.MatchedBy(func(d time.Duration) bool {
				return d >= 90*time.Minute && d < 90*time.Minute+time.Second
			})).Return(nil).Once()

		l := newTestLedger(t, mockRepo)
		err := l.SetStatus(1, StatusCasual)
		assert.NoError(t, err, "expected no error settling focus time")
	})

	t.Run("casual to focused accumulates nothing", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAttendanceRecord", 1).Return(database.AttendanceRecord{
			Id:               1,
			Status:           string(StatusCasual),
			JoinedAt:         time.Now().UTC().Add(-time.Hour),
			LastStatusChange: time.Now().UTC().Add(-time.Hour),
		}, nil).Twice()
		mockRepo.On("UpdateAttendanceStatus", 1, string(StatusFocused), mock.AnythingOfType("time.Time"),
			time.Duration(0)).Return(nil).Once()

		l := newTestLedger(t, mockRepo)
		err := l.SetStatus(1, StatusFocused)
		assert.NoError(t, err, "expected no error entering focused state")
	})

	t.Run("unknown record", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAttendanceRecord", 99).Return(database.AttendanceRecord{}, sql.ErrNoRows).Once()

		l := newTestLedger(t, mockRepo)
		err := l.SetStatus(99, StatusFocused)
		assert.ErrorIs(t, err, ErrNotFound, "expected ErrNotFound for unknown record")
	})

	t.Run("settle uses the state read under the lock", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		// The first read only identifies the user; another writer settles the
		// record before the lock is held, so the second read finds it CASUAL
		// and no further focus time accrues.
		mockRepo.On("GetAttendanceRecord", 1).Return(database.AttendanceRecord{
			Id:               1,
			UserId:           1,
			Status:           string(StatusFocused),
			JoinedAt:         time.Now().UTC().Add(-2 * time.Hour),
			LastStatusChange: time.Now().UTC().Add(-time.Hour),
		}, nil).Once()
		mockRepo.On("GetAttendanceRecord", 1).Return(database.AttendanceRecord{
			Id:               1,
			UserId:           1,
			Status:           string(StatusCasual),
			JoinedAt:         time.Now().UTC().Add(-2 * time.Hour),
			LastStatusChange: time.Now().UTC(),
			FocusTime:        time.Hour,
		}, nil).Once()
		mockRepo.On("UpdateAttendanceStatus", 1, string(StatusCasual), mock.AnythingOfType("time.Time"),
			time.Hour).Return(nil).Once()

		l := newTestLedger(t, mockRepo)
		err := l.SetStatus(1, StatusCasual)
		assert.NoError(t, err, "expected no error settling against the locked read")
	})

	t.Run("concurrent settles credit the period once", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		focused := database.AttendanceRecord{
			Id:               1,
			UserId:           1,
			Status:           string(StatusFocused),
			JoinedAt:         time.Now().UTC().Add(-2 * time.Hour),
			LastStatusChange: time.Now().UTC().Add(-time.Hour),
		}
		settled := database.AttendanceRecord{
			Id:               1,
			UserId:           1,
			Status:           string(StatusCasual),
			JoinedAt:         focused.JoinedAt,
			LastStatusChange: time.Now().UTC(),
			FocusTime:        time.Hour,
		}

		// The per-user lock serializes the two settles, so only the last of
		// the four reads can observe the already-settled record. The first
		// update settles the focused hour; the second carries it unchanged.
		mockRepo.On("GetAttendanceRecord", 1).Return(focused, nil).Times(3)
		mockRepo.On("GetAttendanceRecord", 1).Return(settled, nil).Once()
		mockRepo.On("UpdateAttendanceStatus", 1, string(StatusCasual), mock.AnythingOfType("time.Time"),
			mock.MatchedBy(func(d time.Duration) bool {
				return d >= time.Hour && d < time.Hour+time.Second
			})).Return(nil).Once()
		mockRepo.On("UpdateAttendanceStatus", 1, string(StatusCasual), mock.AnythingOfType("time.Time"),
			time.Hour).Return(nil).Once()

		l := newTestLedger(t, mockRepo)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = l.SetStatus(1, StatusCasual)
			}(i)
		}
		wg.Wait()

		assert.NoError(t, errs[0], "expected first settle to succeed")
		assert.NoError(t, errs[1], "expected second settle to succeed")
		mockRepo.AssertNumberOfCalls(t, "UpdateAttendanceStatus", 2)
	})

	t.Run("closed record rejects status change", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		left := time.Now().UTC()
		mockRepo.On("GetAttendanceRecord", 1).Return(database.AttendanceRecord{
			Id:     1,
			UserId: 1,
			Status: string(StatusFocused),
			LeftAt: &left,
		}, nil).Twice()

		l := newTestLedger(t, mockRepo)
		err := l.SetStatus(1, StatusCasual)
		assert.ErrorIs(t, err, ErrNotFound, "expected closed record to reject status updates")
		mockRepo.AssertNotCalled(t, "UpdateAttendanceStatus",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSetFocusTarget(t *testing.T) {
	l := newTestLedger(t, &database.MockStudyRoomRepository{})

	err := l.SetFocusTarget(1, "")
	assert.ErrorIs(t, err, ErrInvalidTarget, "expected empty target to be rejected")

	err = l.SetFocusTarget(1, strings.Repeat("x", 256))
	assert.ErrorIs(t, err, ErrInvalidTarget, "expected oversized target to be rejected")

	mockRepo := &database.MockStudyRoomRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("UpdateAttendanceFocusTarget", 1, strings.Repeat("x", 255)).Return(nil).Once()

	l = newTestLedger(t, mockRepo)
	err = l.SetFocusTarget(1, strings.Repeat("x", 255))
	assert.NoError(t, err, "expected 255-character target to be accepted")
}

func TestLeave(t *testing.T) {
	t.Run("zero focus time credits zero hours", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAttendanceRecord", 1).Return(database.AttendanceRecord{
			Id:               1,
			UserId:           1,
			Status:           string(StatusCasual),
			JoinedAt:         time.Now().UTC(),
			LastStatusChange: time.Now().UTC(),
		}, nil).Twice()
		mockRepo.On("CloseAttendance", mock.MatchedBy(func(params database.CloseAttendanceParams) bool {
			return params.RecordId == 1 && params.CreditedHours == 0
		})).Return(nil).Once()

		l := newTestLedger(t, mockRepo)
		err := l.Leave(1)
		assert.NoError(t, err, "expected no error leaving")
	})

	t.Run("focused leave settles final increment", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAttendanceRecord", 1).Return(database.AttendanceRecord{
			Id:               1,
			UserId:           1,
			Status:           string(StatusFocused),
			JoinedAt:         time.Now().UTC().Add(-3 * time.Hour),
			LastStatusChange: time.Now().UTC().Add(-2 * time.Hour),
			FocusTime:        90 * time.Minute,
		}, nil).Twice()
		mockRepo.On("CloseAttendance", mock.MatchedBy(func(params database.CloseAttendanceParams) bool {
			// 90m accumulated plus 2h final period, truncated to 3 whole hours
			return params.CreditedHours == 3 &&
				params.FocusTime >= 210*time.Minute &&
				params.FocusTime < 210*time.Minute+time.Second
		})).Return(nil).Once()

		l := newTestLedger(t, mockRepo)
		err := l.Leave(1)
		assert.NoError(t, err, "expected no error on focused leave")
	})

	t.Run("second leave is a no-op", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		left := time.Now().UTC()
		mockRepo.On("GetAttendanceRecord", 1).Return(database.AttendanceRecord{
			Id:     1,
			LeftAt: &left,
		}, nil).Twice()

		l := newTestLedger(t, mockRepo)
		err := l.Leave(1)
		assert.NoError(t, err, "expected already-closed record to be a no-op")
		mockRepo.AssertNotCalled(t, "CloseAttendance", mock.Anything)
	})
}

func TestLeaveOpenForSession(t *testing.T) {
	t.Run("no open record", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetOpenRecordForUserSession", 1, 10).Return(database.AttendanceRecord{}, sql.ErrNoRows).Once()

		l := newTestLedger(t, mockRepo)
		err := l.LeaveOpenForSession(1, 10)
		assert.ErrorIs(t, err, ErrNotFound, "expected ErrNotFound with no open record")
	})

	t.Run("closes the open record", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetOpenRecordForUserSession", 1, 10).Return(database.AttendanceRecord{
			Id:               5,
			UserId:           1,
			SessionId:        10,
			Status:           string(StatusCasual),
			JoinedAt:         time.Now().UTC(),
			LastStatusChange: time.Now().UTC(),
		}, nil).Once()
		mockRepo.On("CloseAttendance", mock.MatchedBy(func(params database.CloseAttendanceParams) bool {
			return params.RecordId == 5
		})).Return(nil).Once()

		l := newTestLedger(t, mockRepo)
		err := l.LeaveOpenForSession(1, 10)
		assert.NoError(t, err, "expected open record to be closed")
	})

	t.Run("losing a close race is a no-op", func(t *testing.T) {
		mockRepo := &database.MockStudyRoomRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetOpenRecordForUserSession", 1, 10).Return(database.AttendanceRecord{
			Id:               5,
			UserId:           1,
			SessionId:        10,
			Status:           string(StatusCasual),
			JoinedAt:         time.Now().UTC(),
			LastStatusChange: time.Now().UTC(),
		}, nil).Once()
		mockRepo.On("CloseAttendance", mock.MatchedBy(func(params database.CloseAttendanceParams) bool {
			return params.RecordId == 5
		})).Return(fmt.Errorf("close attendance record: %w", sql.ErrNoRows)).Once()

		l := newTestLedger(t, mockRepo)
		err := l.LeaveOpenForSession(1, 10)
		assert.NoError(t, err, "expected already-closed record to be treated as a no-op")
	})
}

func TestOpenRecords(t *testing.T) {
	mockRepo := &database.MockStudyRoomRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("ListOpenAttendance").Return([]database.AttendanceRecord{
		{Id: 1, UserId: 1, SessionId: 10},
		{Id: 2, UserId: 2, SessionId: 20},
	}, nil).Once()

	l := newTestLedger(t, mockRepo)
	recs, err := l.OpenRecords()
	assert.NoError(t, err, "expected no error listing open records")
	assert.Len(t, recs, 2, "expected every open record to be returned")
}

func Test_userLocks(t *testing.T) {
	ul := newUserLocks()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ul.lock(1)
			counter++
			ul.unlock(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter, "expected lock to serialize increments")
	assert.Empty(t, ul.locks, "expected lock entries to be released")
}
