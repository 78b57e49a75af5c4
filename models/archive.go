package models

// Archive hides a match from one user's listings without touching the shared
// conversation state. Written only on explicit user action.
type Archive struct {
	UserID     string `dynamodbav:"userId" json:"userId"`   // Partition key
	MatchID    string `dynamodbav:"matchId" json:"matchId"` // Sort key
	ArchivedAt string `dynamodbav:"archivedAt" json:"archivedAt"`
	Reason     string `dynamodbav:"reason" json:"reason"`
}

// ArchivesTable is the DynamoDB table name for per-user match archives
const ArchivesTable = "Archives"

// Archive reasons
const (
	ArchiveReasonUnmatch = "unmatch"
	ArchiveReasonBlock   = "block"
	ArchiveReasonMet     = "met"
)
