package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestViewCache_UpdateKeepsInsertionOrder(t *testing.T) {
	clock := &fakeClock{now: fixedNow}
	c := newViewCache[string, int]("test", time.Minute, 2, clock.Now)

	c.set("a", 1)
	c.set("b", 2)
	c.set("a", 10)
	c.set("c", 3)

	_, ok := c.get("a")
	assert.False(t, ok, "a 是最早寫入的, 更新不會延後淘汰")
	v, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestViewCache_ExpiredEntryRemovedOnRead(t *testing.T) {
	clock := &fakeClock{now: fixedNow}
	c := newViewCache[string, int]("test", time.Minute, 0, clock.Now)

	c.set("a", 1)
	clock.Advance(59 * time.Second)
	_, ok := c.get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}

func TestViewCache_DeleteFunc(t *testing.T) {
	c := newViewCache[string, int]("test", time.Minute, 0, time.Now)
	c.set("c-1|x", 1)
	c.set("c-1|y", 2)
	c.set("c-2|x", 3)

	removed := c.deleteFunc(func(k string) bool { return k[:4] == "c-1|" })

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.len())
}
