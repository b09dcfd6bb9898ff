package ingest

import (
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewItemIDIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 10000; i++ {
		id := NewItemID()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewItemIDFallsBackWithoutRandomUUID(t *testing.T) {
	original := newUUID
	newUUID = func() (uuid.UUID, error) { return uuid.Nil, errors.New("entropy unavailable") }
	t.Cleanup(func() { newUUID = original })

	a, b := NewItemID(), NewItemID()

	pattern := regexp.MustCompile(`^[0-9a-z]+-[0-9a-z]{8}$`)
	assert.Regexp(t, pattern, a)
	assert.Regexp(t, pattern, b)
	assert.NotEqual(t, a, b)
}
