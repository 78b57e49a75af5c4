package models

// Message is one chat message on a match. Sending the first real message is
// what starts the pre-chat decision window.
type Message struct {
	MatchID   string `dynamodbav:"matchId" json:"matchId"`     // Partition key
	MessageID string `dynamodbav:"messageId" json:"messageId"` // Sort key
	SenderID  string `dynamodbav:"senderId" json:"senderId"`
	Content   string `dynamodbav:"content" json:"content"`
	System    bool   `dynamodbav:"system" json:"system"` // System messages do not start the decision window
	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"`
}

// MessagesTable is the DynamoDB table name for messages
const MessagesTable = "Messages"
