package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultHistoryTurns caps prompt growth at three question/answer pairs.
const DefaultHistoryTurns = 6

// ChatTurn is one message of a conversation.
type ChatTurn struct {
	Role string
	Text string
}

// ChatHistory is a bounded conversation log. Eviction always removes the
// oldest user/assistant pair so the history never starts mid-exchange.
type ChatHistory struct {
	turns    []ChatTurn
	maxTurns int
}

func NewChatHistory(maxTurns int) *ChatHistory {
	if maxTurns <= 0 {
		maxTurns = DefaultHistoryTurns
	}
	if maxTurns%2 != 0 {
		maxTurns++
	}
	return &ChatHistory{maxTurns: maxTurns}
}

// AppendTurn records a completed exchange. Callers append only after a
// successful turn; failed turns must not mutate history.
func (h *ChatHistory) AppendTurn(question, answer string) {
	h.turns = append(h.turns,
		ChatTurn{Role: RoleUser, Text: question},
		ChatTurn{Role: RoleAssistant, Text: answer},
	)
	for len(h.turns) > h.maxTurns {
		h.turns = h.turns[2:]
	}
}

// Turns returns the retained turns, oldest first.
func (h *ChatHistory) Turns() []ChatTurn {
	return h.turns
}

func (h *ChatHistory) Len() int {
	return len(h.turns)
}

func (h *ChatHistory) Clear() {
	h.turns = nil
}
