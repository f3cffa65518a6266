package database

import (
	"database/sql"
	"fmt"
	"time"
)

func (db *PgStudyRoomRepository) GetUserById(userId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, hours_studied, sessions_completed FROM users "+
			"WHERE id = $1 LIMIT 1",
		userId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.HoursStudied,
		&user.SessionsCompleted,
	)

	return user, err
}

func (db *PgStudyRoomRepository) CreateSession(params CreateSessionParams) (StudySession, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return StudySession{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var listId int
	err = tx.QueryRow(
		"INSERT INTO task_lists (external_id, name, is_shared, created_at) "+
			"VALUES ($1, $2, TRUE, $3) RETURNING id",
		params.ListExternalId,
		params.ListName,
		time.Now().UTC(),
	).Scan(&listId)
	if err != nil {
		return StudySession{}, err
	}

	res := tx.QueryRow(
		"INSERT INTO study_sessions (name, room_code, created_by, task_list_id, started_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, name, room_code, created_by, task_list_id, started_at",
		params.Name,
		params.RoomCode,
		params.CreatedBy,
		listId,
		time.Now().UTC(),
	)

	var session StudySession
	err = res.Scan(
		&session.Id,
		&session.Name,
		&session.RoomCode,
		&session.CreatedBy,
		&session.TaskListId,
		&session.StartedAt,
	)
	if err != nil {
		return StudySession{}, err
	}

	_, err = tx.Exec(
		"INSERT INTO session_participants (session_id, user_id, added_at) VALUES ($1, $2, $3)",
		session.Id,
		params.CreatedBy,
		time.Now().UTC(),
	)
	if err != nil {
		return StudySession{}, err
	}

	if err = tx.Commit(); err != nil {
		return StudySession{}, err
	}

	return session, nil
}

func (db *PgStudyRoomRepository) GetSessionByCode(roomCode string) (StudySession, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, room_code, created_by, task_list_id, started_at, ended_at FROM study_sessions "+
			"WHERE room_code = $1 LIMIT 1",
		roomCode,
	)

	var session StudySession
	var taskListId sql.NullInt64
	var endedAt sql.NullTime
	err := row.Scan(
		&session.Id,
		&session.Name,
		&session.RoomCode,
		&session.CreatedBy,
		&taskListId,
		&session.StartedAt,
		&endedAt,
	)
	if err != nil {
		return StudySession{}, err
	}

	if taskListId.Valid {
		session.TaskListId = int(taskListId.Int64)
	}
	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}

	return session, nil
}

func (db *PgStudyRoomRepository) SessionCodeExists(roomCode string) bool {
	res := db.conn.QueryRow(
		"SELECT id FROM study_sessions WHERE room_code = $1 LIMIT 1",
		roomCode,
	)

	var id int
	return res.Scan(&id) == nil
}

func (db *PgStudyRoomRepository) CloseSession(sessionId int) error {
	_, err := db.conn.Exec(
		"UPDATE study_sessions SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL",
		sessionId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgStudyRoomRepository) AddParticipant(sessionId, userId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO session_participants (session_id, user_id, added_at) "+
			"VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		sessionId,
		userId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgStudyRoomRepository) RemoveParticipant(sessionId, userId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM session_participants WHERE session_id = $1 AND user_id = $2",
		sessionId,
		userId,
	)

	return err
}

func (db *PgStudyRoomRepository) GetParticipants(sessionId int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT u.id, u.username FROM session_participants AS p "+
			"JOIN users AS u ON p.user_id = u.id WHERE p.session_id = $1 ORDER BY p.added_at",
		sessionId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users = make([]User, 0)
	for rows.Next() {
		var u User
		if err = rows.Scan(&u.Id, &u.Username); err != nil {
			break
		}

		users = append(users, u)
	}

	return users, err
}

const attendanceColumns = "id, user_id, session_id, join_seq, status, focus_target, " +
	"joined_at, left_at, last_status_change, focus_time_ns"

func scanAttendance(row interface{ Scan(...any) error }) (AttendanceRecord, error) {
	var rec AttendanceRecord
	var focusTarget sql.NullString
	var leftAt sql.NullTime
	var focusNs int64

	err := row.Scan(
		&rec.Id,
		&rec.UserId,
		&rec.SessionId,
		&rec.JoinSeq,
		&rec.Status,
		&focusTarget,
		&rec.JoinedAt,
		&leftAt,
		&rec.LastStatusChange,
		&focusNs,
	)
	if err != nil {
		return AttendanceRecord{}, err
	}

	rec.FocusTarget = focusTarget.String
	if leftAt.Valid {
		t := leftAt.Time
		rec.LeftAt = &t
	}
	rec.FocusTime = time.Duration(focusNs)

	return rec, nil
}

func (db *PgStudyRoomRepository) GetAttendanceRecord(recordId int) (AttendanceRecord, error) {
	row := db.conn.QueryRow(
		"SELECT "+attendanceColumns+" FROM attendance_records WHERE id = $1 LIMIT 1",
		recordId,
	)

	return scanAttendance(row)
}

func (db *PgStudyRoomRepository) GetOpenRecordsByUser(userId int) ([]AttendanceRecord, error) {
	rows, err := db.conn.Query(
		"SELECT "+attendanceColumns+" FROM attendance_records "+
			"WHERE user_id = $1 AND left_at IS NULL",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

func (db *PgStudyRoomRepository) GetOpenRecordForUserSession(userId, sessionId int) (AttendanceRecord, error) {
	row := db.conn.QueryRow(
		"SELECT "+attendanceColumns+" FROM attendance_records "+
			"WHERE user_id = $1 AND session_id = $2 AND left_at IS NULL LIMIT 1",
		userId,
		sessionId,
	)

	return scanAttendance(row)
}

func (db *PgStudyRoomRepository) CountAttendance(userId, sessionId int) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM attendance_records WHERE user_id = $1 AND session_id = $2",
		userId,
		sessionId,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

func (db *PgStudyRoomRepository) CreateAttendance(params CreateAttendanceParams) (AttendanceRecord, error) {
	row := db.conn.QueryRow(
		"INSERT INTO attendance_records (user_id, session_id, join_seq, status, joined_at, last_status_change) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING "+attendanceColumns,
		params.UserId,
		params.SessionId,
		params.JoinSeq,
		params.Status,
		params.JoinedAt,
	)

	return scanAttendance(row)
}

func (db *PgStudyRoomRepository) UpdateAttendanceStatus(recordId int, status string, lastChange time.Time, focusTime time.Duration) error {
	res, err := db.conn.Exec(
		"UPDATE attendance_records SET status = $2, last_status_change = $3, focus_time_ns = $4 "+
			"WHERE id = $1",
		recordId,
		status,
		lastChange,
		int64(focusTime),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgStudyRoomRepository) UpdateAttendanceFocusTarget(recordId int, target string) error {
	res, err := db.conn.Exec(
		"UPDATE attendance_records SET focus_target = $2 WHERE id = $1",
		recordId,
		target,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// CloseAttendance settles an attendance record and credits the user's study
// statistics in a single transaction so the ledger and the statistics can
// never diverge.
func (db *PgStudyRoomRepository) CloseAttendance(params CloseAttendanceParams) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var userId int
	err = tx.QueryRow(
		"UPDATE attendance_records SET left_at = $2, focus_time_ns = $3 "+
			"WHERE id = $1 AND left_at IS NULL RETURNING user_id",
		params.RecordId,
		params.LeftAt,
		int64(params.FocusTime),
	).Scan(&userId)
	if err != nil {
		return fmt.Errorf("close attendance record: %w", err)
	}

	_, err = tx.Exec(
		"UPDATE users SET hours_studied = hours_studied + $2, sessions_completed = sessions_completed + 1, "+
			"updated_at = $3 WHERE id = $1",
		userId,
		params.CreditedHours,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("credit study stats: %w", err)
	}

	return tx.Commit()
}

func (db *PgStudyRoomRepository) ListOpenAttendance() ([]AttendanceRecord, error) {
	rows, err := db.conn.Query(
		"SELECT " + attendanceColumns + " FROM attendance_records WHERE left_at IS NULL",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

func (db *PgStudyRoomRepository) GetAttendanceHistory(userId, sessionId int) ([]AttendanceRecord, error) {
	rows, err := db.conn.Query(
		"SELECT "+attendanceColumns+" FROM attendance_records "+
			"WHERE user_id = $1 AND session_id = $2 ORDER BY joined_at",
		userId,
		sessionId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}
