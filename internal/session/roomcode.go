package session

import (
	"math/rand"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 8
)

// generateRoomCode draws an 8-character code from [A-Z0-9]. Uniqueness is
// the caller's problem.
func generateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeAlphabet[rand.Intn(len(roomCodeAlphabet))]
	}

	return string(code)
}
