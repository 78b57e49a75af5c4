package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"kindling_server/models"
	"kindling_server/utils"
)

var (
	// ErrInvalidRange means the proposed end does not come after the start.
	ErrInvalidRange = errors.New("date end must be after date start")
	// ErrMissingField means the proposal lacks an activity or place label.
	ErrMissingField = errors.New("activity and place are required")
	// ErrNotProposer means the responder is the user who made the proposal.
	ErrNotProposer = errors.New("proposer cannot respond to their own proposal")
	// ErrNoActiveProposal means there is no proposal awaiting a response.
	ErrNoActiveProposal = errors.New("no active proposal for this match")
	// ErrConversationNotActive means the conversation is not in the active state.
	ErrConversationNotActive = errors.New("conversation is not active")
	// ErrPlanAccepted means an accepted plan already exists and cannot be replaced.
	ErrPlanAccepted = errors.New("an accepted date plan already exists")
)

// DatePlanService owns the date proposal state machine
// (none -> proposed -> accepted|declined) and the credit sub-state of an
// accepted plan.
type DatePlanService struct {
	Dynamo        *DynamoService
	Conversations *ConversationService
	Notifier      Notifier
	CreditCents   int
	Now           func() time.Time
}

func (ds *DatePlanService) now() time.Time {
	if ds.Now != nil {
		return ds.Now()
	}
	return time.Now().UTC()
}

// Get fetches the match's date plan, or nil when none was ever proposed.
func (ds *DatePlanService) Get(ctx context.Context, matchID string) (*models.DatePlan, error) {
	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: matchID},
	}
	item, err := ds.Dynamo.GetItem(ctx, models.DatePlansTable, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	var plan models.DatePlan
	if err := attributevalue.UnmarshalMap(item, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal date plan: %w", err)
	}
	return &plan, nil
}

// Propose creates or replaces the match's proposal. Re-proposing overwrites a
// proposed or declined plan; an accepted plan is never silently replaced.
func (ds *DatePlanService) Propose(ctx context.Context, matchID, proposerID, start, end, activity, place, placeID string) (models.DatePlan, error) {
	if activity == "" || place == "" {
		return models.DatePlan{}, ErrMissingField
	}
	startAt := utils.ParseTime(start)
	endAt := utils.ParseTime(end)
	if startAt.IsZero() || endAt.IsZero() || !endAt.After(startAt) {
		return models.DatePlan{}, ErrInvalidRange
	}

	match, err := ds.Conversations.GetMatch(ctx, matchID)
	if err != nil {
		return models.DatePlan{}, err
	}
	if !match.HasUser(proposerID) {
		return models.DatePlan{}, ErrNotParticipant
	}
	conv, err := ds.Conversations.GetConversation(ctx, matchID)
	if err != nil {
		return models.DatePlan{}, err
	}
	if conv == nil || !conv.IsActive() {
		return models.DatePlan{}, ErrConversationNotActive
	}

	existing, err := ds.Get(ctx, matchID)
	if err != nil {
		return models.DatePlan{}, err
	}
	if existing != nil && existing.DateStatus == models.DateStatusAccepted {
		return models.DatePlan{}, ErrPlanAccepted
	}

	plan := models.DatePlan{
		MatchID:           matchID,
		DateStatus:        models.DateStatusProposed,
		ProposedByUserID:  proposerID,
		DateStart:         utils.FormatTime(startAt),
		DateEnd:           utils.FormatTime(endAt),
		ActivityLabel:     activity,
		PlaceLabel:        place,
		PlaceID:           placeID,
		CreditAmountCents: ds.CreditCents,
		UpdatedAt:         utils.FormatTime(ds.now()),
	}

	condition := "attribute_not_exists(matchId)"
	var values map[string]types.AttributeValue
	if existing != nil {
		condition = "dateStatus = :cur"
		values = map[string]types.AttributeValue{
			":cur": &types.AttributeValueMemberS{Value: existing.DateStatus},
		}
	}
	err = ds.Dynamo.PutItemConditional(ctx, models.DatePlansTable, plan, condition, values, nil)
	if errors.Is(err, ErrConditionFailed) {
		// A concurrent writer changed the plan under us; one live proposal
		// per match, so the caller should re-read and retry.
		return models.DatePlan{}, ErrPlanAccepted
	}
	if err != nil {
		return models.DatePlan{}, fmt.Errorf("failed to store proposal: %w", err)
	}

	log.Printf("✅ Date proposed on match %s by %s: %s at %s", matchID, proposerID, activity, place)
	notify(ds.Notifier, match.OtherUser(proposerID), "dateProposal", map[string]interface{}{
		"matchId":   matchID,
		"activity":  activity,
		"place":     place,
		"dateStart": plan.DateStart,
	})
	return plan, nil
}

// Respond accepts or declines the live proposal. Only the non-proposer may
// respond; accepting arms the credit sub-state at pending.
func (ds *DatePlanService) Respond(ctx context.Context, matchID, responderID string, accept bool) (models.DatePlan, error) {
	match, err := ds.Conversations.GetMatch(ctx, matchID)
	if err != nil {
		return models.DatePlan{}, err
	}
	if !match.HasUser(responderID) {
		return models.DatePlan{}, ErrNotParticipant
	}
	conv, err := ds.Conversations.GetConversation(ctx, matchID)
	if err != nil {
		return models.DatePlan{}, err
	}
	if conv == nil || !conv.IsActive() {
		return models.DatePlan{}, ErrConversationNotActive
	}

	plan, err := ds.Get(ctx, matchID)
	if err != nil {
		return models.DatePlan{}, err
	}
	if plan == nil || plan.DateStatus != models.DateStatusProposed {
		return models.DatePlan{}, ErrNoActiveProposal
	}
	if plan.ProposedByUserID == responderID {
		return models.DatePlan{}, ErrNotProposer
	}

	status := models.DateStatusDeclined
	updateExpression := "SET dateStatus = :st, updatedAt = :ts"
	values := map[string]types.AttributeValue{
		":st":       &types.AttributeValueMemberS{Value: status},
		":ts":       &types.AttributeValueMemberS{Value: utils.FormatTime(ds.now())},
		":proposed": &types.AttributeValueMemberS{Value: models.DateStatusProposed},
	}
	if accept {
		status = models.DateStatusAccepted
		updateExpression = "SET dateStatus = :st, creditStatus = :cs, updatedAt = :ts"
		values[":st"] = &types.AttributeValueMemberS{Value: status}
		values[":cs"] = &types.AttributeValueMemberS{Value: models.CreditStatusPending}
	}

	_, err = ds.Dynamo.UpdateItemConditional(ctx, models.DatePlansTable,
		updateExpression,
		map[string]types.AttributeValue{"matchId": &types.AttributeValueMemberS{Value: matchID}},
		values,
		nil,
		"dateStatus = :proposed",
	)
	if errors.Is(err, ErrConditionFailed) {
		return models.DatePlan{}, ErrNoActiveProposal
	}
	if err != nil {
		return models.DatePlan{}, fmt.Errorf("failed to respond to proposal: %w", err)
	}

	plan.DateStatus = status
	if accept {
		plan.CreditStatus = models.CreditStatusPending
	}
	log.Printf("✅ Date proposal on match %s %s by %s", matchID, status, responderID)
	notify(ds.Notifier, plan.ProposedByUserID, "dateResponse", map[string]interface{}{
		"matchId": matchID,
		"status":  status,
	})
	return *plan, nil
}

// MarkSpent advances the credit sub-state to spent after the ledger debit
// committed. Idempotent: a second sweep pass is a no-op.
func (ds *DatePlanService) MarkSpent(ctx context.Context, matchID string) error {
	_, err := ds.Dynamo.UpdateItemConditional(ctx, models.DatePlansTable,
		"SET creditStatus = :spent, updatedAt = :ts",
		map[string]types.AttributeValue{"matchId": &types.AttributeValueMemberS{Value: matchID}},
		map[string]types.AttributeValue{
			":spent":    &types.AttributeValueMemberS{Value: models.CreditStatusSpent},
			":ts":       &types.AttributeValueMemberS{Value: utils.FormatTime(ds.now())},
			":accepted": &types.AttributeValueMemberS{Value: models.DateStatusAccepted},
		},
		nil,
		"dateStatus = :accepted AND creditStatus <> :spent",
	)
	if errors.Is(err, ErrConditionFailed) {
		return nil
	}
	return err
}

// Unlock moves a pending credit to unlocked after a verified meetup.
// Best-effort: plans in any other credit state are left alone.
func (ds *DatePlanService) Unlock(ctx context.Context, matchID string) error {
	_, err := ds.Dynamo.UpdateItemConditional(ctx, models.DatePlansTable,
		"SET creditStatus = :unlocked, updatedAt = :ts",
		map[string]types.AttributeValue{"matchId": &types.AttributeValueMemberS{Value: matchID}},
		map[string]types.AttributeValue{
			":unlocked": &types.AttributeValueMemberS{Value: models.CreditStatusUnlocked},
			":ts":       &types.AttributeValueMemberS{Value: utils.FormatTime(ds.now())},
			":pending":  &types.AttributeValueMemberS{Value: models.CreditStatusPending},
		},
		nil,
		"creditStatus = :pending",
	)
	if errors.Is(err, ErrConditionFailed) {
		return nil
	}
	return err
}

// MarkCreditExpired moves a pending credit to expired once the verification
// window after the date has passed without a meetup confirmation.
func (ds *DatePlanService) MarkCreditExpired(ctx context.Context, matchID string) error {
	_, err := ds.Dynamo.UpdateItemConditional(ctx, models.DatePlansTable,
		"SET creditStatus = :expired, updatedAt = :ts",
		map[string]types.AttributeValue{"matchId": &types.AttributeValueMemberS{Value: matchID}},
		map[string]types.AttributeValue{
			":expired": &types.AttributeValueMemberS{Value: models.CreditStatusExpired},
			":ts":      &types.AttributeValueMemberS{Value: utils.FormatTime(ds.now())},
			":pending": &types.AttributeValueMemberS{Value: models.CreditStatusPending},
		},
		nil,
		"creditStatus = :pending",
	)
	if errors.Is(err, ErrConditionFailed) {
		return nil
	}
	return err
}
