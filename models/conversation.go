package models

// Conversation tracks the consent-gated lifecycle of a match:
// matched -> pre-chat -> active -> terminal. Optional timestamps are stored
// as RFC3339 strings; the empty string means "not set".
type Conversation struct {
	MatchID               string `dynamodbav:"matchId" json:"matchId"` // Partition key
	User1ID               string `dynamodbav:"user1Id" json:"user1Id"` // Indexed via user1Id-index
	User2ID               string `dynamodbav:"user2Id" json:"user2Id"` // Indexed via user2Id-index
	User1ConsentAt        string `dynamodbav:"user1ConsentAt,omitempty" json:"user1ConsentAt,omitempty"`
	User2ConsentAt        string `dynamodbav:"user2ConsentAt,omitempty" json:"user2ConsentAt,omitempty"`
	ActiveAt              string `dynamodbav:"activeAt,omitempty" json:"activeAt,omitempty"`
	DecisionStarterUserID string `dynamodbav:"decisionStarterUserId,omitempty" json:"decisionStarterUserId,omitempty"`
	DecisionExpiresAt     string `dynamodbav:"decisionExpiresAt,omitempty" json:"decisionExpiresAt,omitempty"`
	CountdownExpiresAt    string `dynamodbav:"countdownExpiresAt,omitempty" json:"countdownExpiresAt,omitempty"`
	TerminalState         string `dynamodbav:"terminalState,omitempty" json:"terminalState,omitempty"`
	TerminalAt            string `dynamodbav:"terminalAt,omitempty" json:"terminalAt,omitempty"`
	CreatedAt             string `dynamodbav:"createdAt" json:"createdAt"`
}

// ConversationsTable is the DynamoDB table name for conversation state
const ConversationsTable = "Conversations"

// Terminal states. TerminalUnavailable is a legacy marker that predates the
// soft capacity limit; it is treated as non-terminal and cleared by the sweep.
const (
	TerminalExpired     = "expired"
	TerminalClosed      = "closed"
	TerminalUnavailable = "unavailable"
)

// IsTerminal reports whether the conversation reached a true terminal state.
// Legacy unavailable markers do not count.
func (c Conversation) IsTerminal() bool {
	return c.TerminalState == TerminalExpired || c.TerminalState == TerminalClosed
}

// IsActive reports whether both parties consented and the conversation is live.
func (c Conversation) IsActive() bool {
	return c.ActiveAt != "" && !c.IsTerminal()
}

// HasUser reports whether userID is one of the two participants.
func (c Conversation) HasUser(userID string) bool {
	return userID == c.User1ID || userID == c.User2ID
}

// ConsentAtFor returns the stored consent timestamp for userID.
func (c Conversation) ConsentAtFor(userID string) string {
	switch userID {
	case c.User1ID:
		return c.User1ConsentAt
	case c.User2ID:
		return c.User2ConsentAt
	}
	return ""
}

// ConsentFieldFor returns the attribute name holding userID's consent
// timestamp, or "" if userID is not a participant.
func (c Conversation) ConsentFieldFor(userID string) string {
	switch userID {
	case c.User1ID:
		return "user1ConsentAt"
	case c.User2ID:
		return "user2ConsentAt"
	}
	return ""
}
