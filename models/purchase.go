package models

// PurchaseEvent is the webhook body sent by the payment platform when a
// consumable credit product is purchased. Field names follow the platform's
// subscriber model: AppUserID is whatever identity the client was running
// under at purchase time, which is not always one of our user ids.
type PurchaseEvent struct {
	EventID              string                       `json:"event_id"`
	Type                 string                       `json:"type"`
	ProductID            string                       `json:"product_id"`
	AppUserID            string                       `json:"app_user_id"`
	TransactionID        string                       `json:"transaction_id"`
	Aliases              []string                     `json:"aliases,omitempty"`
	SubscriberAttributes map[string]PurchaseAttribute `json:"subscriber_attributes,omitempty"`
	PriceCents           int                          `json:"price_cents,omitempty"`
}

// PurchaseAttribute is one subscriber attribute value.
type PurchaseAttribute struct {
	Value string `json:"value"`
}

// UserIDAttribute is the subscriber attribute the mobile client stamps with
// our own user id at purchase time; it is the preferred resolution path.
const UserIDAttribute = "userId"

// Purchase-like event types accepted from the webhook. Everything else is
// acknowledged and ignored.
const (
	EventTypeInitialPurchase    = "INITIAL_PURCHASE"
	EventTypeNonRenewingPurchase = "NON_RENEWING_PURCHASE"
	EventTypeRenewal            = "RENEWAL"
)

// IsPurchaseLike reports whether the event type grants credit.
func (e PurchaseEvent) IsPurchaseLike() bool {
	switch e.Type {
	case EventTypeInitialPurchase, EventTypeNonRenewingPurchase, EventTypeRenewal:
		return true
	}
	return false
}

// AttributeUserID returns the client-stamped user id attribute, if present.
func (e PurchaseEvent) AttributeUserID() string {
	if attr, ok := e.SubscriberAttributes[UserIDAttribute]; ok {
		return attr.Value
	}
	return ""
}

// PendingPurchase parks a webhook event whose user could not be resolved yet.
// It is replayed whenever an identity-link call adds a new alias mapping.
type PendingPurchase struct {
	EventID         string   `dynamodbav:"eventId" json:"eventId"` // Partition key
	TransactionID   string   `dynamodbav:"transactionId" json:"transactionId"`
	ProductID       string   `dynamodbav:"productId" json:"productId"`
	AppUserID       string   `dynamodbav:"appUserId,omitempty" json:"appUserId,omitempty"`
	AttributeUserID string   `dynamodbav:"attributeUserId,omitempty" json:"attributeUserId,omitempty"`
	Aliases         []string `dynamodbav:"aliases,omitempty" json:"aliases,omitempty"`
	PriceCents      int      `dynamodbav:"priceCents,omitempty" json:"priceCents,omitempty"`
	RawPayload      string   `dynamodbav:"rawPayload" json:"rawPayload"`
	ReceivedAt      string   `dynamodbav:"receivedAt" json:"receivedAt"`
}

// PendingPurchasesTable is the DynamoDB table name for parked webhook events
const PendingPurchasesTable = "PendingPurchases"

// IdentityLink maps an external/anonymous alias to a known user, captured by
// an explicit "link my identity" call from the client.
type IdentityLink struct {
	Alias    string `dynamodbav:"alias" json:"alias"` // Partition key
	UserID   string `dynamodbav:"userId" json:"userId"`
	LinkedAt string `dynamodbav:"linkedAt" json:"linkedAt"`
}

// IdentityLinksTable is the DynamoDB table name for alias mappings
const IdentityLinksTable = "IdentityLinks"

// Webhook processing outcomes reported back in the response body.
const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeParked    = "parked"
)
