package models

import "fmt"

// Wallet is the materialized balance per user. The ledger is the source of
// truth; both are always mutated in the same transaction.
type Wallet struct {
	UserID         string `dynamodbav:"userId" json:"userId"` // Partition key
	BalanceCredits int    `dynamodbav:"balanceCredits" json:"balanceCredits"`
	BalanceCents   int    `dynamodbav:"balanceCents" json:"balanceCents"`
}

// WalletsTable is the DynamoDB table name for wallets
const WalletsTable = "Wallets"

// LedgerTransaction is one append-only ledger entry. TxKey doubles as the
// idempotency key: a second write with the same key is rejected by a
// conditional put, which is the only exactly-once mechanism in the system.
type LedgerTransaction struct {
	TxKey              string `dynamodbav:"txKey" json:"txKey"` // Partition key
	UserID             string `dynamodbav:"userId" json:"userId"` // Indexed via userId-index
	Kind               string `dynamodbav:"kind" json:"kind"`
	AmountCredits      int    `dynamodbav:"amountCredits" json:"amountCredits"` // Signed
	AmountCents        int    `dynamodbav:"amountCents" json:"amountCents"`     // Signed
	MatchID            string `dynamodbav:"matchId,omitempty" json:"matchId,omitempty"`
	StoreTransactionID string `dynamodbav:"storeTransactionId,omitempty" json:"storeTransactionId,omitempty"`
	CreatedAt          string `dynamodbav:"createdAt" json:"createdAt"`
}

// LedgerTransactionsTable is the DynamoDB table name for ledger entries
const LedgerTransactionsTable = "LedgerTransactions"

// Ledger transaction kinds
const (
	TxKindPurchaseGrant = "PurchaseGrant"
	TxKindMeetupRefund  = "MeetupRefund"
	TxKindDateSpend     = "DateSpend"
)

// PurchaseTxKey builds the idempotency key for a store purchase grant.
// The store transaction id guards against webhook redelivery.
func PurchaseTxKey(storeTransactionID, userID string) string {
	return fmt.Sprintf("PURCHASE#%s#%s", storeTransactionID, userID)
}

// MeetupRefundTxKey builds the idempotency key for a meetup verification
// grant. Both verification protocols share this namespace, so a match can be
// credited at most once no matter which protocol (or how many retries) ran.
func MeetupRefundTxKey(matchID, userID string) string {
	return fmt.Sprintf("MEETUP_REFUND#%s#%s", matchID, userID)
}

// DateSpendTxKey builds the idempotency key for a completed-date spend.
func DateSpendTxKey(matchID, userID string) string {
	return fmt.Sprintf("DATE_SPEND#%s#%s", matchID, userID)
}
