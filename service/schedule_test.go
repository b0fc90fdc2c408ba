package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHousekeeperEvictsIdleConversations(t *testing.T) {
	h := newHarness(t, ChatOptions{})
	stale := h.conversation(t, "u1")
	_, err := h.chat.Send(context.Background(), stale, "Hello")
	require.NoError(t, err)
	require.NoError(t, h.chat.SetActiveConversation(stale))

	h.clock.Advance(2 * time.Hour)
	fresh := h.conversation(t, "u1")

	keeper := NewHousekeeper(h.chat, "@every 10m", time.Hour, quietLogger())
	assert.Equal(t, 1, keeper.RunOnce())

	convs, err := h.chat.ListConversations("u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, fresh, convs[0].ID)
	assert.Empty(t, h.chat.ActiveConversation())

	// the rate gate of an evicted conversation is forgotten as well
	_, ok := h.chat.lastSend[stale]
	assert.False(t, ok)
}

func TestHousekeeperDisabled(t *testing.T) {
	h := newHarness(t, ChatOptions{})
	keeper := NewHousekeeper(h.chat, "@every 10m", 0, quietLogger())
	require.NoError(t, keeper.Start())
	<-keeper.Stop().Done()
	assert.Nil(t, keeper.cron)
}

func TestHousekeeperRejectsBadSchedule(t *testing.T) {
	h := newHarness(t, ChatOptions{})
	keeper := NewHousekeeper(h.chat, "every so often", time.Hour, quietLogger())
	assert.Error(t, keeper.Start())
}
