package models

// VerificationToken is a short-lived QR token. Tokens are consumed at most
// once and kept after expiry for auditability.
type VerificationToken struct {
	Token        string `dynamodbav:"token" json:"token"` // Partition key
	MatchID      string `dynamodbav:"matchId" json:"matchId"`
	IssuerUserID string `dynamodbav:"issuerUserId" json:"issuerUserId"`
	ExpiresAt    string `dynamodbav:"expiresAt" json:"expiresAt"`
	ConsumedAt   string `dynamodbav:"consumedAt,omitempty" json:"consumedAt,omitempty"`
	CreatedAt    string `dynamodbav:"createdAt" json:"createdAt"`
}

// VerificationTokensTable is the DynamoDB table name for QR tokens
const VerificationTokensTable = "VerificationTokens"

// HandshakeSession is the mutual-tap rendezvous for a match. The first tap
// creates it, a tap from the other participant completes it.
type HandshakeSession struct {
	MatchID         string `dynamodbav:"matchId" json:"matchId"` // Partition key
	InitiatorUserID string `dynamodbav:"initiatorUserId" json:"initiatorUserId"`
	CreatedAt       string `dynamodbav:"createdAt" json:"createdAt"`
	CompletedAt     string `dynamodbav:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreditTxRef     string `dynamodbav:"creditTxRef,omitempty" json:"creditTxRef,omitempty"`
}

// HandshakeSessionsTable is the DynamoDB table name for tap sessions
const HandshakeSessionsTable = "HandshakeSessions"

// Verification handshake statuses returned to clients
const (
	VerificationWaiting  = "WAITING"
	VerificationVerified = "VERIFIED"
	VerificationAlready  = "ALREADY_VERIFIED"
	VerificationNone     = "NONE"
)

// QRPayloadType tags the opaque QR payload so scanners can reject foreign codes.
const QRPayloadType = "kindling.meetup.v1"
