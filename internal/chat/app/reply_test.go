package app

import (
	"testing"

	"chat_sync_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopulateReplyObjects_ResolvesInBatch(t *testing.T) {
	root := stored("m-1", "u-1", "root")
	reply := stored("m-2", "u-2", "re")
	reply.RepliedTo = domain.ReplyToID("m-1")
	missing := stored("m-3", "u-2", "lost")
	missing.RepliedTo = domain.ReplyToID("gone")

	in := []domain.Message{root, reply, missing}
	out := PopulateReplyObjects(in)

	require.True(t, out[1].RepliedTo.IsEmbedded())
	assert.Equal(t, "root", out[1].RepliedTo.Message.Text)
	assert.Equal(t, "m-1", out[1].RepliedTo.ID)
	assert.True(t, out[2].RepliedTo.IsUnresolved())

	// 原 slice 不變
	assert.True(t, in[1].RepliedTo.IsUnresolved())
}

func TestPopulateReplyObjects_FirstOccurrenceWins(t *testing.T) {
	first := stored("m-1", "u-1", "first")
	second := stored("m-1", "u-1", "second")
	reply := stored("m-2", "u-2", "re")
	reply.RepliedTo = domain.ReplyToID("m-1")

	out := PopulateReplyObjects([]domain.Message{first, second, reply})

	require.True(t, out[2].RepliedTo.IsEmbedded())
	assert.Equal(t, "first", out[2].RepliedTo.Message.Text)
}

func TestPopulateReplyObjects_NoChangeReturnsSameSlice(t *testing.T) {
	in := []domain.Message{stored("m-1", "u-1", "a"), stored("m-2", "u-2", "b")}
	in[1].RepliedTo = domain.ReplyNull()

	out := PopulateReplyObjects(in)

	assert.Same(t, &in[0], &out[0])
}

func TestPopulateReplyObjects_EmbeddedNotReResolved(t *testing.T) {
	snapshot := stored("m-1", "u-1", "old text")
	root := stored("m-1", "u-1", "new text")
	reply := stored("m-2", "u-2", "re")
	reply.RepliedTo = domain.ReplyEmbedded(snapshot)

	out := PopulateReplyObjects([]domain.Message{root, reply})

	assert.Equal(t, "old text", out[1].RepliedTo.Message.Text)
}
