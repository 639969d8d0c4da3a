package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolDefaults(t *testing.T) {
	p := Pool{MaxOpen: 4, MaxIdle: 8}.withDefaults()

	assert.Equal(t, 4, p.MaxOpen)
	assert.Equal(t, 4, p.MaxIdle, "idle is capped at open")
	assert.Equal(t, 30*time.Minute, p.MaxLifetime)
	assert.Equal(t, 5*time.Minute, p.MaxIdleTime)
	assert.Equal(t, "stride", p.AppName)

	assert.Equal(t, DefaultPool(), Pool{}.withDefaults())
}

func TestOpenRejectsMalformedURL(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz", Pool{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database url")
}
