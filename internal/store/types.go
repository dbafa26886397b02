package store

import "time"

// ThreadType classifies a session's relationship to its parent
type ThreadType string

const (
	ThreadRoot         ThreadType = "root"
	ThreadDelegation   ThreadType = "delegation"
	ThreadFork         ThreadType = "fork"
	ThreadContinuation ThreadType = "continuation"
)

// Role is the sender of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Session is one PO instance's ordered message history.
type Session struct {
	ID                string
	PONname           string
	Name              string
	Source            string
	LastMessageSource string
	ParentSessionID   string
	ParentPO          string
	ParentMessageID   string
	ThreadType        ThreadType
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ToolCall is one tool invocation requested by an assistant message.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is one tool's outcome, keyed back to its originating call.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
}

// Usage is the per-assistant-message token accounting
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
	Model               string
	Provider            string
}

// Message is one row in a session's ordered log.
type Message struct {
	ID          string
	SessionID   string
	Role        Role
	Content     string
	FromPO      string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
	Usage       *Usage
	Source      string
	CreatedAt   time.Time
}

// EnvDataEntry is one (root_thread_id, key) row in the environment data
// store
type EnvDataEntry struct {
	RootThreadID     string
	Key              string
	ShortDescription string
	Value            any
	StoredBy         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UsageTotals is an aggregated usage figure, broken down per model.
type UsageTotals struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
	ByModel             map[string]UsageTotals
}

// Add returns the sum of u and u2, merging their per-model breakdowns;
// neither operand is modified.
func (u UsageTotals) Add(u2 UsageTotals) UsageTotals {
	out := UsageTotals{
		InputTokens:         u.InputTokens + u2.InputTokens,
		OutputTokens:        u.OutputTokens + u2.OutputTokens,
		CacheCreationTokens: u.CacheCreationTokens + u2.CacheCreationTokens,
		CacheReadTokens:     u.CacheReadTokens + u2.CacheReadTokens,
		ByModel:             map[string]UsageTotals{},
	}
	for k, v := range u.ByModel {
		out.ByModel[k] = v
	}
	for k, v := range u2.ByModel {
		existing := out.ByModel[k]
		out.ByModel[k] = UsageTotals{
			InputTokens:         existing.InputTokens + v.InputTokens,
			OutputTokens:        existing.OutputTokens + v.OutputTokens,
			CacheCreationTokens: existing.CacheCreationTokens + v.CacheCreationTokens,
			CacheReadTokens:     existing.CacheReadTokens + v.CacheReadTokens,
		}
	}
	return out
}

// ThreadNode is one node of a thread tree.
type ThreadNode struct {
	Session  Session
	Messages []Message
	Children []*ThreadNode
}
