package keepalive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	r := &Register{prefix: "pool"}
	assert.Equal(t, "pool/t1", r.key("t1"))
}

func TestIsStale(t *testing.T) {
	now := time.Unix(1000, 0)

	assert.False(t, IsStale(now.Add(-30*time.Second), now, time.Minute))
	assert.True(t, IsStale(now.Add(-90*time.Second), now, time.Minute))
}

func TestNewRejectsBadURI(t *testing.T) {
	_, err := New("not-a-redis-uri", "pool")
	require.Error(t, err)
}
