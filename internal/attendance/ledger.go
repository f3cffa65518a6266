package attendance

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/studyhive/studyroom/internal/database"
	"github.com/studyhive/studyroom/internal/stats"
)

type Status string

const (
	StatusCasual  Status = "CASUAL"
	StatusFocused Status = "FOCUSED"
)

func (s Status) Valid() bool {
	return s == StatusCasual || s == StatusFocused
}

const maxFocusTargetLen = 255

var (
	ErrNotFound      = errors.New("attendance record not found")
	ErrInvalidStatus = errors.New("invalid attendance status")
	ErrInvalidTarget = errors.New("focus target must be 1-255 characters")
)

// Ledger is the durable record of who attended which session and for how
// long in each status. Focus time, not wall-clock presence, is what gets
// credited to a user's lifetime study hours.
type Ledger struct {
	log   *log.Logger
	db    database.StudyRoomRepository
	stats stats.StatsProvider

	locks *userLocks
}

func NewLedger(logger *log.Logger, db database.StudyRoomRepository, sp stats.StatsProvider) *Ledger {
	return &Ledger{
		log:   logger,
		db:    db,
		stats: sp,
		locks: newUserLocks(),
	}
}

// Start opens a new attendance record for the user in the session. Any other
// open record for the user is closed first, settling its focus time and
// crediting study statistics. The close-then-open sequence runs under a
// per-user lock so two racing joins cannot produce two open records or
// duplicate join sequence numbers.
func (l *Ledger) Start(userId, sessionId int) (database.AttendanceRecord, error) {
	l.locks.lock(userId)
	defer l.locks.unlock(userId)

	open, err := l.db.GetOpenRecordsByUser(userId)
	if err != nil {
		return database.AttendanceRecord{}, fmt.Errorf("find open records: %w", err)
	}

	for _, rec := range open {
		l.log.Printf("closing superseded attendance record %d for user %d", rec.Id, rec.UserId)
		if err := l.close(rec); err != nil {
			return database.AttendanceRecord{}, fmt.Errorf("close superseded record: %w", err)
		}
	}

	count, err := l.db.CountAttendance(userId, sessionId)
	if err != nil {
		return database.AttendanceRecord{}, fmt.Errorf("count attendance: %w", err)
	}

	rec, err := l.db.CreateAttendance(database.CreateAttendanceParams{
		UserId:    userId,
		SessionId: sessionId,
		JoinSeq:   count + 1,
		Status:    string(StatusCasual),
		JoinedAt:  time.Now().UTC(),
	})
	if err != nil {
		return database.AttendanceRecord{}, fmt.Errorf("create attendance: %w", err)
	}

	l.stats.Incr(stats.OpenAttendance)
	l.log.Printf("user %d started attendance %d in session %d (join %d)",
		userId, rec.Id, sessionId, rec.JoinSeq)

	return rec, nil
}

// SetStatus transitions the record between CASUAL and FOCUSED. Leaving
// FOCUSED settles the elapsed focus period into the accumulated tally. The
// settle is a read-modify-write, so it runs under the same per-user lock as
// Start and the close paths; the record is re-read once the lock is held.
// Closed records cannot change status.
func (l *Ledger) SetStatus(recordId int, newStatus Status) error {
	if !newStatus.Valid() {
		return ErrInvalidStatus
	}

	rec, err := l.getRecord(recordId)
	if err != nil {
		return err
	}

	l.locks.lock(rec.UserId)
	defer l.locks.unlock(rec.UserId)

	rec, err = l.getRecord(recordId)
	if err != nil {
		return err
	}

	if rec.LeftAt != nil {
		return ErrNotFound
	}

	now := time.Now().UTC()
	focusTime := rec.FocusTime
	if Status(rec.Status) == StatusFocused && newStatus != StatusFocused {
		focusTime += now.Sub(laterOf(rec.JoinedAt, rec.LastStatusChange))
	}

	if err := l.db.UpdateAttendanceStatus(recordId, string(newStatus), now, focusTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update status: %w", err)
	}

	return nil
}

// SetFocusTarget updates the free-text focus goal on an open record.
func (l *Ledger) SetFocusTarget(recordId int, target string) error {
	if target == "" || utf8.RuneCountInString(target) > maxFocusTargetLen {
		return ErrInvalidTarget
	}

	if err := l.db.UpdateAttendanceFocusTarget(recordId, target); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update focus target: %w", err)
	}

	return nil
}

// Leave closes the record: the final focus period is settled, left-at is
// stamped, and whole focused hours are credited to the user's lifetime
// statistics. Calling Leave on an already-closed record is a no-op.
func (l *Ledger) Leave(recordId int) error {
	rec, err := l.getRecord(recordId)
	if err != nil {
		return err
	}

	l.locks.lock(rec.UserId)
	defer l.locks.unlock(rec.UserId)

	rec, err = l.getRecord(recordId)
	if err != nil {
		return err
	}

	if rec.LeftAt != nil {
		l.log.Printf("attendance record %d already closed", recordId)
		return nil
	}

	return l.close(rec)
}

// LeaveOpenForSession closes the user's open record in the given session, if
// any. Returns ErrNotFound when the user has no open record there.
func (l *Ledger) LeaveOpenForSession(userId, sessionId int) error {
	l.locks.lock(userId)
	defer l.locks.unlock(userId)

	rec, err := l.db.GetOpenRecordForUserSession(userId, sessionId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("find open record: %w", err)
	}

	return l.close(rec)
}

func (l *Ledger) close(rec database.AttendanceRecord) error {
	now := time.Now().UTC()

	focusTime := rec.FocusTime
	if Status(rec.Status) == StatusFocused {
		focusTime += now.Sub(laterOf(rec.JoinedAt, rec.LastStatusChange))
	}

	// Only whole hours are credited; the fractional remainder is discarded.
	hours := int(focusTime.Hours())

	err := l.db.CloseAttendance(database.CloseAttendanceParams{
		RecordId:      rec.Id,
		LeftAt:        now,
		FocusTime:     focusTime,
		CreditedHours: hours,
	})
	if err != nil {
		// The update is guarded on left_at being unset, so no rows means
		// another closer finished first.
		if errors.Is(err, sql.ErrNoRows) {
			l.log.Printf("attendance record %d already closed", rec.Id)
			return nil
		}
		return fmt.Errorf("close attendance: %w", err)
	}

	l.stats.Decr(stats.OpenAttendance)
	l.log.Printf("closed attendance %d for user %d: focus time %s, credited %d hours",
		rec.Id, rec.UserId, focusTime, hours)

	return nil
}

// OpenRecords lists every record with no left-at timestamp.
func (l *Ledger) OpenRecords() ([]database.AttendanceRecord, error) {
	return l.db.ListOpenAttendance()
}

// History returns the user's full attendance history for a session, ordered
// by join time. Closed records are retained, so join sequence numbers stay
// meaningful across the whole history.
func (l *Ledger) History(userId, sessionId int) ([]database.AttendanceRecord, error) {
	return l.db.GetAttendanceHistory(userId, sessionId)
}

func (l *Ledger) getRecord(recordId int) (database.AttendanceRecord, error) {
	rec, err := l.db.GetAttendanceRecord(recordId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.AttendanceRecord{}, ErrNotFound
		}
		return database.AttendanceRecord{}, fmt.Errorf("get record: %w", err)
	}

	return rec, nil
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
