// Package chat holds conversation state and orchestrates language-model
// turns, optionally augmented with retrieved crate context.
package chat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// Message is one immutable conversation entry.
type Message struct {
	Role ai.Role
	Text string
}

// Session is the ordered message history of one conversation.
// History is append-only: messages are never mutated or removed.
//
// The internal mutex makes individual appends and snapshots safe, but a
// whole chat turn (append, generate, append) is not atomic; callers run
// one turn at a time per session.
type Session struct {
	id           string
	systemPrompt string

	mu       sync.Mutex
	messages []Message
}

// NewSession creates an empty session with a fresh uuid.
// The system prompt leads every snapshot but is not part of history.
func NewSession(systemPrompt string) *Session {
	return &Session{
		id:           uuid.NewString(),
		systemPrompt: systemPrompt,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// AppendUser records a user message.
func (s *Session) AppendUser(text string) {
	s.append(Message{Role: ai.RoleUser, Text: text})
}

// AppendAssistant records an assistant reply.
func (s *Session) AppendAssistant(text string) {
	s.append(Message{Role: ai.RoleModel, Text: text})
}

func (s *Session) append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Len returns the number of history messages (system prompt excluded).
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Snapshot returns the upstream payload: the system prompt first, then
// every history message in append order. The result is a fresh slice of
// fresh messages; mutating it never touches session state.
func (s *Session) Snapshot() []*ai.Message {
	return s.snapshotWith(nil)
}

// InjectContext returns the upstream payload with a context block built
// from the retrieved snippets inserted immediately before the latest user
// message. The block exists only in the returned slice: it is never
// persisted, so history stays free of retrieval payloads and later
// snapshots are unaffected.
func (s *Session) InjectContext(snippets []string) []*ai.Message {
	if len(snippets) == 0 {
		return s.Snapshot()
	}
	return s.snapshotWith(&Message{
		Role: ai.RoleUser,
		Text: formatContext(snippets),
	})
}

// snapshotWith builds the payload, optionally splicing contextMsg in
// before the last user message.
func (s *Session) snapshotWith(contextMsg *Message) []*ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := make([]*ai.Message, 0, len(s.messages)+2)
	if s.systemPrompt != "" {
		payload = append(payload, &ai.Message{
			Role:    ai.RoleSystem,
			Content: []*ai.Part{ai.NewTextPart(s.systemPrompt)},
		})
	}

	insertAt := -1
	if contextMsg != nil {
		for i := len(s.messages) - 1; i >= 0; i-- {
			if s.messages[i].Role == ai.RoleUser {
				insertAt = i
				break
			}
		}
	}

	for i, msg := range s.messages {
		if i == insertAt {
			payload = append(payload, toAIMessage(*contextMsg))
		}
		payload = append(payload, toAIMessage(msg))
	}
	return payload
}

func toAIMessage(msg Message) *ai.Message {
	return &ai.Message{
		Role:    msg.Role,
		Content: []*ai.Part{ai.NewTextPart(msg.Text)},
	}
}

// formatContext renders retrieved snippets as a single context block.
func formatContext(snippets []string) string {
	var b strings.Builder
	b.WriteString("Relevant crates from the index:\n")
	for i, snippet := range snippets {
		fmt.Fprintf(&b, "%d. %s\n", i+1, snippet)
	}
	b.WriteString("\nUse this information when it helps answer the question.")
	return b.String()
}
