package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRedactsCredentials(t *testing.T) {
	out := sanitizeKVs([]interface{}{"user_id", "u1", "device_token", "abc", "dangling"})
	assert.Equal(t, []interface{}{"user_id", "u1", "device_token", "[REDACTED]", "dangling"}, out)
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	l := Nop().With("service", "test")
	l.Info("hello", "k", 1)
	l.Sync()
}
