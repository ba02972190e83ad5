package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	c := Config{Topic: "conversation.events"}.withDefaults()
	assert.Equal(t, 1<<10, c.MinBytes)
	assert.Equal(t, 10<<20, c.MaxBytes)
	assert.Equal(t, time.Second, c.CommitInterval)
	assert.Equal(t, 50*time.Millisecond, c.MaxWait)

	c = Config{MinBytes: 1, CommitInterval: time.Minute}.withDefaults()
	assert.Equal(t, 1, c.MinBytes)
	assert.Equal(t, time.Minute, c.CommitInterval)
}
