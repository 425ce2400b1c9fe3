package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	after := time.Now().UTC().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before) && got.Before(after))
}

func TestFrozen(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	clk := NewFrozen(start)
	assert.True(t, clk.Now().Equal(start))
	assert.Equal(t, time.UTC, clk.Now().Location())

	clk.Advance(time.Hour)
	assert.True(t, clk.Now().Equal(start.Add(time.Hour)))
}
