package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowEnforcesBurstPerClient(t *testing.T) {
	t.Parallel()

	l := NewLimiter(1, 2)

	assert.True(t, l.Allow("popup"))
	assert.True(t, l.Allow("popup"))
	assert.False(t, l.Allow("popup"), "burst exhausted")

	// Other clients get their own bucket.
	assert.True(t, l.Allow("cli"))
}

func TestTokensReflectsConsumption(t *testing.T) {
	t.Parallel()

	l := NewLimiter(60, 10)
	assert.InDelta(t, 10, l.Tokens("popup"), 0.1)

	l.Allow("popup")
	assert.Less(t, l.Tokens("popup"), 10.0)
}
