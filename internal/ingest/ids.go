package ingest

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var newUUID = uuid.NewRandom

// NewItemID returns a session-unique item identifier. It prefers a random
// UUID and degrades to a timestamp plus random suffix when the system
// randomness source fails.
func NewItemID() string {
	if id, err := newUUID(); err == nil {
		return id.String()
	}
	return fallbackID()
}

func fallbackID() string {
	suffix := make([]byte, 8)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + string(suffix)
}
