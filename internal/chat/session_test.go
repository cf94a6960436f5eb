package chat

import (
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_SnapshotOrder(t *testing.T) {
	s := NewSession("You are a crate expert.")
	s.AppendUser("hi")
	s.AppendAssistant("hello")

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, ai.RoleSystem, snap[0].Role)
	assert.Equal(t, "You are a crate expert.", snap[0].Text())
	assert.Equal(t, ai.RoleUser, snap[1].Role)
	assert.Equal(t, "hi", snap[1].Text())
	assert.Equal(t, ai.RoleModel, snap[2].Role)
	assert.Equal(t, "hello", snap[2].Text())
}

func TestSession_NoSystemPrompt(t *testing.T) {
	s := NewSession("")
	s.AppendUser("hi")

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, ai.RoleUser, snap[0].Role)
}

func TestSession_AppendOnly(t *testing.T) {
	s := NewSession("system")
	s.AppendUser("first")
	before := s.Snapshot()

	s.AppendUser("second")
	after := s.Snapshot()

	// Earlier messages survive unchanged.
	require.Len(t, after, 3)
	assert.Equal(t, before[1].Text(), after[1].Text())
	assert.Equal(t, "second", after[2].Text())
}

func TestSession_SnapshotIsDefensiveCopy(t *testing.T) {
	s := NewSession("system")
	s.AppendUser("hi")

	snap := s.Snapshot()
	snap[1].Content = []*ai.Part{ai.NewTextPart("tampered")}

	fresh := s.Snapshot()
	assert.Equal(t, "hi", fresh[1].Text())
}

func TestSession_UniqueIDs(t *testing.T) {
	a, b := NewSession(""), NewSession("")
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSession_InjectContext(t *testing.T) {
	t.Run("block lands before the latest user message", func(t *testing.T) {
		s := NewSession("system")
		s.AppendUser("what is serde?")
		s.AppendAssistant("a serialization framework")
		s.AppendUser("and tokio?")

		payload := s.InjectContext([]string{"tokio: async runtime"})
		require.Len(t, payload, 5)

		assert.Equal(t, ai.RoleSystem, payload[0].Role)
		assert.Equal(t, "what is serde?", payload[1].Text())
		assert.Equal(t, "a serialization framework", payload[2].Text())
		assert.True(t, strings.Contains(payload[3].Text(), "tokio: async runtime"),
			"context block should come right before the last user message")
		assert.Equal(t, "and tokio?", payload[4].Text())
	})

	t.Run("context is never persisted", func(t *testing.T) {
		s := NewSession("system")
		s.AppendUser("question")

		_ = s.InjectContext([]string{"snippet"})
		s.AppendAssistant("answer")

		snap := s.Snapshot()
		require.Len(t, snap, 3)
		for _, msg := range snap {
			assert.NotContains(t, msg.Text(), "snippet")
		}
		assert.Equal(t, 2, s.Len())
	})

	t.Run("empty snippets fall back to plain snapshot", func(t *testing.T) {
		s := NewSession("system")
		s.AppendUser("question")

		payload := s.InjectContext(nil)
		assert.Len(t, payload, 2)
	})

	t.Run("numbered snippets", func(t *testing.T) {
		s := NewSession("")
		s.AppendUser("question")

		payload := s.InjectContext([]string{"first", "second"})
		require.Len(t, payload, 2)
		block := payload[0].Text()
		assert.Contains(t, block, "1. first")
		assert.Contains(t, block, "2. second")
	})
}
