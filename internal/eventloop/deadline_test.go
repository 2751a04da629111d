package eventloop_test

import (
	"testing"
	"time"

	"github.com/jroosing/hydraproxy/internal/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestDeadlines_ExpireInOrder(t *testing.T) {
	clk := &clock{t: time.Unix(1000, 0)}
	d := eventloop.NewDeadlines(clk.now)

	d.Set(3, 3*time.Second)
	d.Set(1, 1*time.Second)
	d.Set(2, 2*time.Second)

	next, ok := d.Next()
	require.True(t, ok)
	assert.Equal(t, time.Second, next)

	clk.t = clk.t.Add(2 * time.Second)
	events := d.Expire(nil)
	assert.Equal(t, []eventloop.Event{
		{Token: 1, Kind: eventloop.KindTimeout},
		{Token: 2, Kind: eventloop.KindTimeout},
	}, events)
	assert.Equal(t, 1, d.Len())
}

func TestDeadlines_RearmAndCancel(t *testing.T) {
	clk := &clock{t: time.Unix(1000, 0)}
	d := eventloop.NewDeadlines(clk.now)

	d.Set(1, time.Second)
	d.Set(1, 10*time.Second)
	assert.Equal(t, 1, d.Len(), "re-arming replaces the deadline")

	clk.t = clk.t.Add(5 * time.Second)
	assert.Empty(t, d.Expire(nil))

	d.Cancel(1)
	d.Cancel(42)
	assert.Equal(t, 0, d.Len())
	_, ok := d.Next()
	assert.False(t, ok)

	clk.t = clk.t.Add(time.Hour)
	assert.Empty(t, d.Expire(nil))
}

func TestDeadlines_NextClampsAtZero(t *testing.T) {
	clk := &clock{t: time.Unix(1000, 0)}
	d := eventloop.NewDeadlines(clk.now)
	d.Set(7, time.Second)
	clk.t = clk.t.Add(time.Minute)

	next, ok := d.Next()
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), next)
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "timeout", eventloop.KindTimeout.String())
	assert.Equal(t, "readable|writable", (eventloop.Readable | eventloop.Writable).String())
}
