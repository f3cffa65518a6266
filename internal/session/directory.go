package session

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/studyhive/studyroom/internal/database"
	"github.com/studyhive/studyroom/internal/types"
	"github.com/teris-io/shortid"
)

var ErrNotFound = errors.New("session not found")

const (
	// DefaultSessionName is used when a session is created with a blank name.
	DefaultSessionName = "Untitled Study Session"
	defaultListName    = "TaskTrack: Study Edition"

	// maxCodeAttempts bounds the collision retry loop; with 36^8 possible
	// codes this is effectively never hit.
	maxCodeAttempts = 100
)

// Directory creates and looks up study sessions and owns the participant
// cache on each session.
type Directory struct {
	log *log.Logger
	db  database.StudyRoomRepository
}

func NewDirectory(logger *log.Logger, db database.StudyRoomRepository) *Directory {
	return &Directory{
		log: logger,
		db:  db,
	}
}

// CreateSession persists a new session with a unique room code and a fresh
// shared task list. The creator is added to the participant cache.
func (d *Directory) CreateSession(userId int, name string) (types.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultSessionName
	}

	code, err := d.uniqueRoomCode()
	if err != nil {
		return types.Session{}, err
	}

	listId, err := shortid.Generate()
	if err != nil {
		return types.Session{}, fmt.Errorf("generate list id: %w", err)
	}

	dbSession, err := d.db.CreateSession(database.CreateSessionParams{
		Name:           name,
		RoomCode:       code,
		CreatedBy:      userId,
		ListName:       defaultListName,
		ListExternalId: listId,
	})
	if err != nil {
		return types.Session{}, fmt.Errorf("create session: %w", err)
	}

	d.log.Printf("created session %q with room code %q", dbSession.Name, dbSession.RoomCode)

	return sessionFromDb(dbSession), nil
}

// LookupByCode resolves a room code to its session.
func (d *Directory) LookupByCode(roomCode string) (types.Session, error) {
	dbSession, err := d.db.GetSessionByCode(roomCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, fmt.Errorf("lookup session: %w", err)
	}

	return sessionFromDb(dbSession), nil
}

// CloseSession marks the session ended. Open attendance records are left to
// the coordinator.
func (d *Directory) CloseSession(sessionId int) error {
	return d.db.CloseSession(sessionId)
}

func (d *Directory) AddParticipant(sessionId, userId int) error {
	return d.db.AddParticipant(sessionId, userId)
}

func (d *Directory) RemoveParticipant(sessionId, userId int) error {
	return d.db.RemoveParticipant(sessionId, userId)
}

// Participants returns the persisted participant cache, not the live
// connection set.
func (d *Directory) Participants(sessionId int) ([]types.User, error) {
	dbUsers, err := d.db.GetParticipants(sessionId)
	if err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}

	users := make([]types.User, len(dbUsers))
	for i, u := range dbUsers {
		users[i] = types.User{
			Id:       u.Id,
			Username: u.Username,
		}
	}

	return users, nil
}

func (d *Directory) uniqueRoomCode() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := generateRoomCode()
		if !d.db.SessionCodeExists(code) {
			return code, nil
		}
		d.log.Printf("room code %q already in use, retrying", code)
	}

	return "", fmt.Errorf("no unique room code after %d attempts", maxCodeAttempts)
}

func sessionFromDb(s database.StudySession) types.Session {
	return types.Session{
		Id:         s.Id,
		Name:       s.Name,
		RoomCode:   s.RoomCode,
		CreatedBy:  s.CreatedBy,
		TaskListId: s.TaskListId,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
	}
}
