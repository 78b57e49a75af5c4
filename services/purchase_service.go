package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"kindling_server/metrics"
	"kindling_server/models"
	"kindling_server/utils"
)

// ErrUnknownUser means an identity-link call referenced a user id that does
// not exist.
var ErrUnknownUser = errors.New("unknown user")

// WebhookResult is the machine-readable outcome returned to the payment
// platform. Outcome is always a 200-class answer except storage failures;
// the platform redelivers on anything else, and redelivery of our own
// resolution lag would loop forever.
type WebhookResult struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

// PurchaseService reconciles store purchase webhooks into ledger grants.
// Events that cannot be resolved to a user yet are parked verbatim and
// replayed when an identity-link call adds a new alias mapping.
type PurchaseService struct {
	Dynamo         *DynamoService
	Ledger         *LedgerService
	CreditProducts []string
	CreditCents    int
	Now            func() time.Time
}

func (ps *PurchaseService) now() time.Time {
	if ps.Now != nil {
		return ps.Now()
	}
	return time.Now().UTC()
}

func (ps *PurchaseService) productAllowed(productID string) bool {
	for _, id := range ps.CreditProducts {
		if id == productID {
			return true
		}
	}
	return false
}

// HandleWebhook runs the full pipeline on a raw webhook body:
// parse -> filter -> resolve -> apply, parking what cannot be resolved.
func (ps *PurchaseService) HandleWebhook(ctx context.Context, body []byte) (WebhookResult, error) {
	var event models.PurchaseEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.WebhookEvents.WithLabelValues(models.WebhookOutcomeIgnored).Inc()
		return WebhookResult{Outcome: models.WebhookOutcomeIgnored, Reason: "malformed_payload"}, nil
	}

	if reason := ps.filterReason(event); reason != "" {
		log.Printf("ℹ️ Ignoring webhook event %s: %s", event.EventID, reason)
		metrics.WebhookEvents.WithLabelValues(models.WebhookOutcomeIgnored).Inc()
		return WebhookResult{Outcome: models.WebhookOutcomeIgnored, Reason: reason}, nil
	}

	userID, err := ps.resolveUser(ctx, event.AttributeUserID(), event.AppUserID, event.Aliases)
	if err != nil {
		return WebhookResult{}, err
	}
	if userID == "" {
		if err := ps.park(ctx, event, body); err != nil {
			return WebhookResult{}, err
		}
		metrics.WebhookEvents.WithLabelValues(models.WebhookOutcomeParked).Inc()
		return WebhookResult{Outcome: models.WebhookOutcomeParked, Reason: "unresolved_user"}, nil
	}

	applied, err := ps.Ledger.GrantPurchase(ctx, userID, event.TransactionID, 1, ps.priceCents(event.PriceCents))
	if err != nil {
		return WebhookResult{}, err
	}
	if !applied {
		metrics.WebhookEvents.WithLabelValues(models.WebhookOutcomeDuplicate).Inc()
		return WebhookResult{Outcome: models.WebhookOutcomeDuplicate, UserID: userID}, nil
	}
	metrics.WebhookEvents.WithLabelValues(models.WebhookOutcomeProcessed).Inc()
	return WebhookResult{Outcome: models.WebhookOutcomeProcessed, UserID: userID}, nil
}

// filterReason returns a non-empty reason when the event should be
// acknowledged but ignored.
func (ps *PurchaseService) filterReason(event models.PurchaseEvent) string {
	if !event.IsPurchaseLike() {
		return "not_purchase_event"
	}
	if event.ProductID == "" {
		return "missing_product"
	}
	if !ps.productAllowed(event.ProductID) {
		return "unknown_product"
	}
	if event.TransactionID == "" {
		return "missing_transaction"
	}
	if event.AttributeUserID() == "" && event.AppUserID == "" && len(event.Aliases) == 0 {
		return "missing_user"
	}
	return ""
}

func (ps *PurchaseService) priceCents(cents int) int {
	if cents > 0 {
		return cents
	}
	return ps.CreditCents
}

// resolveUser tries, in order: the client-stamped user id attribute, the
// app-user id itself, then the alias side-table. Every candidate is validated
// against the user table before use.
func (ps *PurchaseService) resolveUser(ctx context.Context, attributeUserID, appUserID string, aliases []string) (string, error) {
	if attributeUserID != "" {
		ok, err := ps.userExists(ctx, attributeUserID)
		if err != nil {
			return "", err
		}
		if ok {
			return attributeUserID, nil
		}
	}

	if appUserID != "" {
		ok, err := ps.userExists(ctx, appUserID)
		if err != nil {
			return "", err
		}
		if ok {
			return appUserID, nil
		}
	}

	candidates := aliases
	if appUserID != "" {
		candidates = append([]string{appUserID}, aliases...)
	}
	for _, alias := range candidates {
		userID, err := ps.lookupAlias(ctx, alias)
		if err != nil {
			return "", err
		}
		if userID == "" {
			continue
		}
		ok, err := ps.userExists(ctx, userID)
		if err != nil {
			return "", err
		}
		if ok {
			return userID, nil
		}
	}
	return "", nil
}

func (ps *PurchaseService) userExists(ctx context.Context, userID string) (bool, error) {
	key := map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}
	item, err := ps.Dynamo.GetItem(ctx, models.UserProfilesTable, key)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

func (ps *PurchaseService) lookupAlias(ctx context.Context, alias string) (string, error) {
	key := map[string]types.AttributeValue{
		"alias": &types.AttributeValueMemberS{Value: alias},
	}
	item, err := ps.Dynamo.GetItem(ctx, models.IdentityLinksTable, key)
	if err != nil {
		return "", err
	}
	if item == nil {
		return "", nil
	}
	return utils.ExtractString(item, "userId"), nil
}

// park stores the event verbatim with every candidate identifier for a later
// replay, keyed by the event id so a redelivered unresolved event does not
// pile up duplicates.
func (ps *PurchaseService) park(ctx context.Context, event models.PurchaseEvent, body []byte) error {
	eventID := event.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	pending := models.PendingPurchase{
		EventID:         eventID,
		TransactionID:   event.TransactionID,
		ProductID:       event.ProductID,
		AppUserID:       event.AppUserID,
		AttributeUserID: event.AttributeUserID(),
		Aliases:         event.Aliases,
		PriceCents:      event.PriceCents,
		RawPayload:      string(body),
		ReceivedAt:      utils.FormatTime(ps.now()),
	}
	if err := ps.Dynamo.PutItem(ctx, models.PendingPurchasesTable, pending); err != nil {
		return fmt.Errorf("failed to park purchase event: %w", err)
	}
	log.Printf("ℹ️ Parked purchase event %s (transaction %s) for later resolution", eventID, event.TransactionID)
	return nil
}

// LinkIdentity records an alias mapping for a user and immediately replays
// every parked event that now resolves.
func (ps *PurchaseService) LinkIdentity(ctx context.Context, userID, alias string) (int, error) {
	ok, err := ps.userExists(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrUnknownUser
	}

	link := models.IdentityLink{
		Alias:    alias,
		UserID:   userID,
		LinkedAt: utils.FormatTime(ps.now()),
	}
	if err := ps.Dynamo.PutItem(ctx, models.IdentityLinksTable, link); err != nil {
		return 0, fmt.Errorf("failed to store identity link: %w", err)
	}

	return ps.ReplayPending(ctx)
}

// ReplayPending re-attempts resolution of every parked event, applying and
// deleting the ones that now resolve. The grant stays keyed by the store
// transaction id, so a replay can never double-credit.
func (ps *PurchaseService) ReplayPending(ctx context.Context) (int, error) {
	var parked []models.PendingPurchase
	if err := ps.Dynamo.ScanWithFilter(ctx, models.PendingPurchasesTable, nil, &parked); err != nil {
		return 0, err
	}

	replayed := 0
	for _, pending := range parked {
		userID, err := ps.resolveUser(ctx, pending.AttributeUserID, pending.AppUserID, pending.Aliases)
		if err != nil {
			return replayed, err
		}
		if userID == "" {
			continue
		}

		if _, err := ps.Ledger.GrantPurchase(ctx, userID, pending.TransactionID, 1, ps.priceCents(pending.PriceCents)); err != nil {
			return replayed, err
		}
		key := map[string]types.AttributeValue{
			"eventId": &types.AttributeValueMemberS{Value: pending.EventID},
		}
		if err := ps.Dynamo.DeleteItem(ctx, models.PendingPurchasesTable, key); err != nil {
			return replayed, err
		}
		replayed++
		log.Printf("✅ Replayed parked purchase event %s to user %s", pending.EventID, userID)
	}
	return replayed, nil
}
