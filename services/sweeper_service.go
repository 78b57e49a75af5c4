package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"kindling_server/metrics"
	"kindling_server/models"
	"kindling_server/utils"
)

// SweeperService advances every time-based transition: legacy-state cleanup,
// pre-chat decision expiry, active countdown expiry, and the completed-date
// spend. It runs opportunistically on every listing read and from a periodic
// background loop; every transition is a conditional update, so concurrent
// and redundant sweeps are no-ops.
type SweeperService struct {
	Dynamo             *DynamoService
	Ledger             *LedgerService
	Plans              *DatePlanService
	Notifier           Notifier
	ExpiryWarning      time.Duration
	VerificationWindow time.Duration
	Now                func() time.Time
}

func (ss *SweeperService) now() time.Time {
	if ss.Now != nil {
		return ss.Now()
	}
	return time.Now().UTC()
}

// SweepUser advances the conversations the given user participates in.
// Called on every listing read.
func (ss *SweeperService) SweepUser(ctx context.Context, userID string) error {
	for _, index := range []string{"user1Id-index", "user2Id-index"} {
		field := "user1Id"
		if index == "user2Id-index" {
			field = "user2Id"
		}
		items, err := ss.Dynamo.QueryItemsWithIndex(ctx, models.ConversationsTable, index,
			fmt.Sprintf("%s = :userId", field),
			map[string]types.AttributeValue{":userId": &types.AttributeValueMemberS{Value: userID}},
			nil, 100)
		if err != nil {
			return err
		}

		var conversations []models.Conversation
		if err := attributevalue.UnmarshalListOfMaps(items, &conversations); err != nil {
			return fmt.Errorf("failed to parse conversations: %w", err)
		}
		for _, conv := range conversations {
			if err := ss.sweepConversation(ctx, conv); err != nil {
				return err
			}
		}
	}
	return nil
}

// SweepAll is the periodic full pass. Terminal rows are included: they still
// carry the completed-date spend until their plan reaches spent.
func (ss *SweeperService) SweepAll(ctx context.Context) error {
	var conversations []models.Conversation
	err := ss.Dynamo.ScanWithFilter(ctx, models.ConversationsTable, nil, &conversations)
	if err != nil {
		return err
	}

	for _, conv := range conversations {
		if err := ss.sweepConversation(ctx, conv); err != nil {
			log.Printf("⚠️ Sweep failed for conversation %s: %v", conv.MatchID, err)
		}
	}
	return nil
}

// Run drives the periodic sweep until the context is canceled.
func (ss *SweeperService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Lifecycle sweeper running every %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("Lifecycle sweeper stopped")
			return
		case <-ticker.C:
			if err := ss.SweepAll(ctx); err != nil {
				log.Printf("⚠️ Sweep pass failed: %v", err)
			}
		}
	}
}

func (ss *SweeperService) sweepConversation(ctx context.Context, conv models.Conversation) error {
	now := ss.now()
	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: conv.MatchID},
	}

	// Legacy capacity marker: operators reclassified it as a soft limit, so
	// any stored row is normalized back to non-terminal.
	if conv.TerminalState == models.TerminalUnavailable {
		_, err := ss.Dynamo.UpdateItemConditional(ctx, models.ConversationsTable,
			"REMOVE terminalState, terminalAt",
			key,
			map[string]types.AttributeValue{
				":unavailable": &types.AttributeValueMemberS{Value: models.TerminalUnavailable},
			},
			nil,
			"terminalState = :unavailable",
		)
		if err != nil && !errors.Is(err, ErrConditionFailed) {
			return err
		}
		if err == nil {
			metrics.SweepTransitions.WithLabelValues("unavailable_restored").Inc()
		}
		conv.TerminalState = ""
		conv.TerminalAt = ""
	}
	// A terminal conversation no longer transitions, but a completed date on
	// it still owes its spend: closing the match does not waive the debit.
	if conv.IsTerminal() {
		return ss.sweepSpend(ctx, conv)
	}

	// Pre-chat decision window elapsed without the other party's consent.
	if conv.ActiveAt == "" && conv.DecisionExpiresAt != "" && !utils.ParseTime(conv.DecisionExpiresAt).After(now) {
		err := ss.expire(ctx, key, "attribute_not_exists(terminalState) AND attribute_not_exists(activeAt)")
		if err != nil {
			return err
		}
		metrics.SweepTransitions.WithLabelValues("prechat_expired").Inc()
		log.Printf("✅ Conversation %s expired in prechat", conv.MatchID)
		return nil
	}

	if conv.ActiveAt == "" || conv.CountdownExpiresAt == "" {
		return ss.sweepSpend(ctx, conv)
	}

	countdownAt := utils.ParseTime(conv.CountdownExpiresAt)
	if !countdownAt.After(now) {
		plan, err := ss.Plans.Get(ctx, conv.MatchID)
		if err != nil {
			return err
		}
		// Scheduled matches do not expire: an accepted plan pins the
		// conversation open.
		if plan == nil || plan.DateStatus != models.DateStatusAccepted {
			err := ss.expire(ctx, key, "attribute_not_exists(terminalState) AND attribute_exists(activeAt)")
			if err != nil {
				return err
			}
			metrics.SweepTransitions.WithLabelValues("active_expired").Inc()
			log.Printf("✅ Conversation %s expired after countdown", conv.MatchID)
			return nil
		}
	} else if countdownAt.Sub(now) <= ss.ExpiryWarning {
		notify(ss.Notifier, conv.User1ID, "matchExpiring", map[string]interface{}{"matchId": conv.MatchID, "expiresAt": conv.CountdownExpiresAt})
		notify(ss.Notifier, conv.User2ID, "matchExpiring", map[string]interface{}{"matchId": conv.MatchID, "expiresAt": conv.CountdownExpiresAt})
	}

	return ss.sweepSpend(ctx, conv)
}

func (ss *SweeperService) expire(ctx context.Context, key map[string]types.AttributeValue, condition string) error {
	_, err := ss.Dynamo.UpdateItemConditional(ctx, models.ConversationsTable,
		"SET terminalState = :st, terminalAt = :ts",
		key,
		map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: models.TerminalExpired},
			":ts": &types.AttributeValueMemberS{Value: utils.FormatTime(ss.now())},
		},
		nil,
		condition,
	)
	if errors.Is(err, ErrConditionFailed) {
		return nil
	}
	return err
}

// sweepSpend runs the completed-date spend step: an accepted plan whose end
// has passed debits one credit from each participant exactly once.
// Insufficient balance leaves the plan as is; the next sweep retries.
func (ss *SweeperService) sweepSpend(ctx context.Context, conv models.Conversation) error {
	plan, err := ss.Plans.Get(ctx, conv.MatchID)
	if err != nil || plan == nil {
		return err
	}
	if plan.DateStatus != models.DateStatusAccepted || plan.CreditStatus == models.CreditStatusSpent {
		return nil
	}

	now := ss.now()
	dateEnd := utils.ParseTime(plan.DateEnd)
	if dateEnd.After(now) {
		return nil
	}

	// A pending credit that was never verified expires before it is spent.
	if plan.CreditStatus == models.CreditStatusPending && !dateEnd.Add(ss.VerificationWindow).After(now) {
		if err := ss.Plans.MarkCreditExpired(ctx, conv.MatchID); err != nil {
			return err
		}
		metrics.SweepTransitions.WithLabelValues("credit_expired").Inc()
		plan.CreditStatus = models.CreditStatusExpired
	}

	outcome, err := ss.Ledger.SpendDateCredit(ctx, conv.MatchID, conv.User1ID, conv.User2ID, 1, plan.CreditAmountCents)
	if err != nil {
		return err
	}
	switch outcome {
	case SpendInsufficientBalance:
		return nil
	case SpendApplied:
		metrics.SweepTransitions.WithLabelValues("date_spent").Inc()
	}
	return ss.Plans.MarkSpent(ctx, conv.MatchID)
}
