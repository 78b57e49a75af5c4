package models

// Match records the fact that two users matched. It is written once by the
// matching pipeline and never mutated; lifecycle lives on the Conversation row.
type Match struct {
	MatchID   string `dynamodbav:"matchId" json:"matchId"`     // Partition key
	User1ID   string `dynamodbav:"user1Id" json:"user1Id"`     // Indexed via user1Id-index
	User2ID   string `dynamodbav:"user2Id" json:"user2Id"`     // Indexed via user2Id-index
	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"` // Timestamp of match creation
}

// MatchesTable is the DynamoDB table name for matches
const MatchesTable = "Matches"

// OtherUser returns the participant that is not userID, or "" if userID is
// not part of the match.
func (m Match) OtherUser(userID string) string {
	switch userID {
	case m.User1ID:
		return m.User2ID
	case m.User2ID:
		return m.User1ID
	}
	return ""
}

// HasUser reports whether userID is one of the two participants.
func (m Match) HasUser(userID string) bool {
	return userID == m.User1ID || userID == m.User2ID
}
