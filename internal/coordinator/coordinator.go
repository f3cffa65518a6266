package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/studyhive/studyroom/internal/attendance"
	"github.com/studyhive/studyroom/internal/broadcast"
	"github.com/studyhive/studyroom/internal/session"
	"github.com/studyhive/studyroom/internal/types"
)

var ErrRoomNotFound = session.ErrNotFound

// Coordinator sequences the durable attendance ledger and the ephemeral
// broadcast groups so the two planes never diverge: every join/leave first
// lands in the ledger and participant cache, then fans out as a
// participants_update built from the persisted cache.
type Coordinator struct {
	log       *log.Logger
	directory *session.Directory
	ledger    *attendance.Ledger
	caster    *broadcast.Caster
}

func New(logger *log.Logger, directory *session.Directory, ledger *attendance.Ledger, caster *broadcast.Caster) *Coordinator {
	return &Coordinator{
		log:       logger,
		directory: directory,
		ledger:    ledger,
		caster:    caster,
	}
}

// Join adds the user to the session behind the room code: participant
// cache, then attendance record, then a participants broadcast. The
// broadcast lists the persisted cache, so a user counts as joined even with
// no live connection.
func (co *Coordinator) Join(userId int, roomCode string) (types.AttendanceRecord, error) {
	sess, err := co.directory.LookupByCode(roomCode)
	if err != nil {
		return types.AttendanceRecord{}, err
	}

	if err := co.directory.AddParticipant(sess.Id, userId); err != nil {
		return types.AttendanceRecord{}, fmt.Errorf("add participant: %w", err)
	}

	rec, err := co.ledger.Start(userId, sess.Id)
	if err != nil {
		return types.AttendanceRecord{}, fmt.Errorf("start attendance: %w", err)
	}

	co.broadcastParticipants(sess.Id, roomCode)

	return types.AttendanceRecord{
		Id:        rec.Id,
		UserId:    rec.UserId,
		SessionId: rec.SessionId,
		JoinSeq:   rec.JoinSeq,
		Status:    rec.Status,
		JoinedAt:  rec.JoinedAt,
		FocusTime: rec.FocusTime,
	}, nil
}

// Leave removes the user from the participant cache and closes their open
// attendance record. A missing record is logged and swallowed: a user can
// leave a room they only ever observed.
func (co *Coordinator) Leave(userId int, roomCode string) error {
	sess, err := co.directory.LookupByCode(roomCode)
	if err != nil {
		return err
	}

	if err := co.directory.RemoveParticipant(sess.Id, userId); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}

	if err := co.ledger.LeaveOpenForSession(userId, sess.Id); err != nil {
		if !errors.Is(err, attendance.ErrNotFound) {
			return fmt.Errorf("close attendance: %w", err)
		}
		co.log.Printf("user %d left room %q with no open attendance record", userId, roomCode)
	}

	co.broadcastParticipants(sess.Id, roomCode)

	return nil
}

// Connect attaches a live connection to the room's broadcast group and
// immediately pushes a participants snapshot to the whole group. Connecting
// is not joining: a dashboard can watch a room without attending it.
func (co *Coordinator) Connect(client *broadcast.Client) error {
	if err := co.caster.Subscribe(client); err != nil {
		return err
	}

	sess, err := co.directory.LookupByCode(client.RoomCode())
	if err != nil {
		return err
	}

	co.broadcastParticipants(sess.Id, client.RoomCode())

	return nil
}

// Disconnect detaches the connection only. Any open attendance record stays
// open; a dropped socket is not a leave.
func (co *Coordinator) Disconnect(client *broadcast.Client) {
	co.caster.Unsubscribe(client)
}

// Relay validates an inbound frame and fans it out to the room, sender
// included. Malformed and unrecognized frames are dropped without any
// feedback to the sender.
func (co *Coordinator) Relay(roomCode string, raw []byte, sender *broadcast.Client) {
	if _, err := broadcast.DecodeEvent(raw); err != nil {
		co.log.Printf("dropping frame in room %q: %v", roomCode, err)
		return
	}

	co.caster.Broadcast(roomCode, raw)
}

// SetStatus flips a user's attendance between CASUAL and FOCUSED.
func (co *Coordinator) SetStatus(recordId int, status string) error {
	return co.ledger.SetStatus(recordId, attendance.Status(status))
}

// SetFocusTarget updates the free-text focus goal on a record.
func (co *Coordinator) SetFocusTarget(recordId int, target string) error {
	return co.ledger.SetFocusTarget(recordId, target)
}

// CloseRoom ends the session: every participant's open attendance record is
// closed with full settlement, then the session itself is marked ended. The
// participant cache is kept for history.
func (co *Coordinator) CloseRoom(roomCode string) error {
	sess, err := co.directory.LookupByCode(roomCode)
	if err != nil {
		return err
	}

	users, err := co.directory.Participants(sess.Id)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}

	for _, u := range users {
		if err := co.ledger.LeaveOpenForSession(u.Id, sess.Id); err != nil {
			if !errors.Is(err, attendance.ErrNotFound) {
				return fmt.Errorf("close attendance for user %d: %w", u.Id, err)
			}
		}
	}

	if err := co.directory.CloseSession(sess.Id); err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	co.log.Printf("closed room %q with %d participants", roomCode, len(users))

	return nil
}

// History returns the user's full attendance history for the room, closed
// records included.
func (co *Coordinator) History(userId int, roomCode string) ([]types.AttendanceRecord, error) {
	sess, err := co.directory.LookupByCode(roomCode)
	if err != nil {
		return nil, err
	}

	recs, err := co.ledger.History(userId, sess.Id)
	if err != nil {
		return nil, err
	}

	history := make([]types.AttendanceRecord, len(recs))
	for i, rec := range recs {
		history[i] = types.AttendanceRecord{
			Id:          rec.Id,
			UserId:      rec.UserId,
			SessionId:   rec.SessionId,
			JoinSeq:     rec.JoinSeq,
			Status:      rec.Status,
			FocusTarget: rec.FocusTarget,
			JoinedAt:    rec.JoinedAt,
			LeftAt:      rec.LeftAt,
			FocusTime:   rec.FocusTime,
		}
	}

	return history, nil
}

// Participants returns the persisted participant cache for the room.
func (co *Coordinator) Participants(roomCode string) ([]types.User, error) {
	sess, err := co.directory.LookupByCode(roomCode)
	if err != nil {
		return nil, err
	}

	return co.directory.Participants(sess.Id)
}

func (co *Coordinator) broadcastParticipants(sessionId int, roomCode string) {
	users, err := co.directory.Participants(sessionId)
	if err != nil {
		co.log.Printf("participants for room %q: %v", roomCode, err)
		return
	}

	usernames := make([]string, len(users))
	for i, u := range users {
		usernames[i] = u.Username
	}

	payload, err := json.Marshal(broadcast.NewParticipantsUpdate(usernames))
	if err != nil {
		co.log.Printf("marshal participants update: %v", err)
		return
	}

	co.caster.Broadcast(roomCode, payload)
}
