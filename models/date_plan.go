package models

// DatePlan is the zero-or-one date proposal attached to a match. The credit
// sub-state only moves forward: pending -> unlocked|expired -> spent.
type DatePlan struct {
	MatchID          string `dynamodbav:"matchId" json:"matchId"` // Partition key
	DateStatus       string `dynamodbav:"dateStatus" json:"dateStatus"`
	ProposedByUserID string `dynamodbav:"proposedByUserId" json:"proposedByUserId"`
	DateStart        string `dynamodbav:"dateStart" json:"dateStart"`
	DateEnd          string `dynamodbav:"dateEnd" json:"dateEnd"`
	ActivityLabel    string `dynamodbav:"activityLabel" json:"activityLabel"`
	PlaceLabel       string `dynamodbav:"placeLabel" json:"placeLabel"`
	PlaceID          string `dynamodbav:"placeId,omitempty" json:"placeId,omitempty"`
	CreditAmountCents int   `dynamodbav:"creditAmountCents" json:"creditAmountCents"`
	CreditStatus     string `dynamodbav:"creditStatus,omitempty" json:"creditStatus,omitempty"`
	UpdatedAt        string `dynamodbav:"updatedAt" json:"updatedAt"`
}

// DatePlansTable is the DynamoDB table name for date plans
const DatePlansTable = "DatePlans"

// Date plan statuses
const (
	DateStatusProposed = "proposed"
	DateStatusAccepted = "accepted"
	DateStatusDeclined = "declined"
)

// Credit statuses for an accepted plan
const (
	CreditStatusPending  = "pending"
	CreditStatusUnlocked = "unlocked"
	CreditStatusSpent    = "spent"
	CreditStatusExpired  = "expired"
)
