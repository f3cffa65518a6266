package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studyhive/studyroom/internal/attendance"
	"github.com/studyhive/studyroom/internal/broadcast"
	"github.com/studyhive/studyroom/internal/coordinator"
	"github.com/studyhive/studyroom/internal/session"
	"github.com/studyhive/studyroom/internal/types"
)

type CreateSessionRequest struct {
	Name string `json:"name"`
}

type RoomRequest struct {
	RoomCode string `json:"room_code"`
}

type SetStatusRequest struct {
	RecordId int    `json:"record_id"`
	Status   string `json:"status"`
}

type SetFocusTargetRequest struct {
	RecordId int    `json:"record_id"`
	Target   string `json:"target"`
}

type RoomResponse struct {
	Name         string `json:"name"`
	RoomCode     string `json:"room_code"`
	SharedListId int    `json:"shared_list_id"`
}

type ParticipantsResponse struct {
	Participants []string `json:"participants"`
}

func (s *StudyRoomApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *StudyRoomApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *StudyRoomApp) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sess, err := s.directory.CreateSession(userId, req.Name)
	if err != nil {
		s.log.Println("create session:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, sess)
}

func (s *StudyRoomApp) closeSession(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomCode := r.URL.Query().Get("room_code")
	if roomCode == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sess, err := s.directory.LookupByCode(roomCode)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, session.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// Only the creator can end the session
	if sess.CreatedBy != userId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.co.CloseRoom(roomCode); err != nil {
		var errResp *ApiError
		if errors.Is(err, coordinator.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("close session:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *StudyRoomApp) getRoom(w http.ResponseWriter, r *http.Request) {
	roomCode := r.URL.Query().Get("room_code")
	if roomCode == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sess, err := s.directory.LookupByCode(roomCode)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, session.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, RoomResponse{
		Name:         sess.Name,
		RoomCode:     sess.RoomCode,
		SharedListId: sess.TaskListId,
	})
}

func (s *StudyRoomApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req RoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomCode == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rec, err := s.co.Join(userId, req.RoomCode)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, coordinator.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("join room:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, rec)
}

func (s *StudyRoomApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	var req RoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomCode == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.co.Leave(userId, req.RoomCode); err != nil {
		var errResp *ApiError
		if errors.Is(err, coordinator.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("leave room:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, nil)
}

func (s *StudyRoomApp) getParticipants(w http.ResponseWriter, r *http.Request) {
	roomCode := r.URL.Query().Get("room_code")
	if roomCode == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users, err := s.co.Participants(roomCode)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, coordinator.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("get participants:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	usernames := make([]string, len(users))
	for i, u := range users {
		usernames[i] = u.Username
	}

	s.writeJson(w, http.StatusOK, ParticipantsResponse{Participants: usernames})
}

func (s *StudyRoomApp) setStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.co.SetStatus(req.RecordId, req.Status); err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, attendance.ErrInvalidStatus):
			errResp = NewBadRequestError()
		case errors.Is(err, attendance.ErrNotFound):
			errResp = NewNotFoundError()
		default:
			s.log.Println("set status:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, nil)
}

func (s *StudyRoomApp) setFocusTarget(w http.ResponseWriter, r *http.Request) {
	var req SetFocusTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.co.SetFocusTarget(req.RecordId, req.Target); err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, attendance.ErrInvalidTarget):
			errResp = NewBadRequestError()
		case errors.Is(err, attendance.ErrNotFound):
			errResp = NewNotFoundError()
		default:
			s.log.Println("set focus target:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, nil)
}

func (s *StudyRoomApp) getAttendanceHistory(w http.ResponseWriter, r *http.Request) {
	roomCode := r.URL.Query().Get("room_code")
	if roomCode == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	history, err := s.co.History(userId, roomCode)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, coordinator.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("attendance history:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, history)
}

func (s *StudyRoomApp) serveWs(w http.ResponseWriter, r *http.Request) {
	roomCode := r.URL.Query().Get("room_code")
	if roomCode == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetUserById(id)
	if err != nil {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := broadcast.NewClient(types.User{
		Id:           user.Id,
		Username:     user.Username,
		EmailAddress: user.EmailAddress,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}, roomCode, conn, s.co, s.log)

	if err := s.co.Connect(client); err != nil {
		s.log.Println("connect client:", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown room code"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
