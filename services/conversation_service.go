package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"kindling_server/models"
	"kindling_server/utils"
)

var (
	// ErrMatchNotFound means no match row exists for the given id.
	ErrMatchNotFound = errors.New("match not found")
	// ErrNotParticipant means the caller is not one of the match's two users.
	ErrNotParticipant = errors.New("user is not a participant of this match")
	// ErrNoConversation means no message has been sent on the match yet.
	ErrNoConversation = errors.New("conversation has not started")
	// ErrConversationEnded means the conversation reached a terminal state.
	ErrConversationEnded = errors.New("conversation has ended")
	// ErrInvalidReason means the archive reason is not one of the known values.
	ErrInvalidReason = errors.New("invalid archive reason")
)

// Conversation lifecycle labels surfaced to clients.
const (
	StateMatched = "matched"
	StatePrechat = "prechat"
	StateActive  = "active"
	StateEnded   = "ended"
)

// ConversationSummary is one row of a user's conversation listing.
type ConversationSummary struct {
	MatchID            string `json:"matchId"`
	OtherUserID        string `json:"otherUserId"`
	State              string `json:"state"`
	ActiveAt           string `json:"activeAt,omitempty"`
	DecisionExpiresAt  string `json:"decisionExpiresAt,omitempty"`
	CountdownExpiresAt string `json:"countdownExpiresAt,omitempty"`
	TerminalState      string `json:"terminalState,omitempty"`
	TerminalAt         string `json:"terminalAt,omitempty"`
}

// ConversationService owns the match lifecycle state machine:
// matched -> prechat (first message) -> active (mutual consent) -> terminal.
// Every transition is a conditional update so concurrent callers converge on
// one outcome.
type ConversationService struct {
	Dynamo          *DynamoService
	Notifier        Notifier
	DecisionWindow  time.Duration
	CountdownWindow time.Duration
	GraceWindow     time.Duration
	Now             func() time.Time
}

func (cs *ConversationService) now() time.Time {
	if cs.Now != nil {
		return cs.Now()
	}
	return time.Now().UTC()
}

// CreateMatch records the fact that two users matched. Matching itself
// happens upstream; this call is idempotent on matchId.
func (cs *ConversationService) CreateMatch(ctx context.Context, matchID, user1ID, user2ID string) (models.Match, error) {
	if matchID == "" {
		matchID = uuid.NewString()
	}
	match := models.Match{
		MatchID:   matchID,
		User1ID:   user1ID,
		User2ID:   user2ID,
		CreatedAt: utils.FormatTime(cs.now()),
	}

	err := cs.Dynamo.PutItemConditional(ctx, models.MatchesTable, match, "attribute_not_exists(matchId)", nil, nil)
	if errors.Is(err, ErrConditionFailed) {
		existing, err := cs.GetMatch(ctx, matchID)
		if err != nil {
			return models.Match{}, err
		}
		return *existing, nil
	}
	if err != nil {
		return models.Match{}, fmt.Errorf("failed to create match: %w", err)
	}

	log.Printf("✅ Match %s created between %s and %s", matchID, user1ID, user2ID)
	return match, nil
}

// GetMatch fetches a match row.
func (cs *ConversationService) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: matchID},
	}
	item, err := cs.Dynamo.GetItem(ctx, models.MatchesTable, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrMatchNotFound
	}

	var match models.Match
	if err := attributevalue.UnmarshalMap(item, &match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	return &match, nil
}

// GetConversation fetches the conversation row, or nil if no message has been
// sent on the match yet.
func (cs *ConversationService) GetConversation(ctx context.Context, matchID string) (*models.Conversation, error) {
	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: matchID},
	}
	item, err := cs.Dynamo.GetItem(ctx, models.ConversationsTable, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	var conv models.Conversation
	if err := attributevalue.UnmarshalMap(item, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// RecordMessage handles an inbound message-sent event. The first non-system
// message creates the conversation row and opens the decision window for the
// other party; sending always counts as the sender's consent.
func (cs *ConversationService) RecordMessage(ctx context.Context, matchID, senderID, content string, system bool) (models.Message, error) {
	match, err := cs.GetMatch(ctx, matchID)
	if err != nil {
		return models.Message{}, err
	}
	if !match.HasUser(senderID) && !system {
		return models.Message{}, ErrNotParticipant
	}

	// An ended conversation keeps nothing new: check before the message row
	// lands so a rejected send leaves no trace. System notices still pass.
	if !system {
		conv, err := cs.GetConversation(ctx, matchID)
		if err != nil {
			return models.Message{}, err
		}
		if conv != nil && (conv.IsTerminal() || cs.decisionLapsed(conv)) {
			return models.Message{}, ErrConversationEnded
		}
	}

	message := models.Message{
		MatchID:   matchID,
		MessageID: uuid.NewString(),
		SenderID:  senderID,
		Content:   content,
		System:    system,
		CreatedAt: utils.FormatTime(cs.now()),
	}
	if err := cs.Dynamo.PutItem(ctx, models.MessagesTable, message); err != nil {
		return models.Message{}, fmt.Errorf("failed to store message: %w", err)
	}

	if !system {
		if err := cs.ensureConversation(ctx, *match, senderID); err != nil {
			return models.Message{}, err
		}
		notify(cs.Notifier, match.OtherUser(senderID), "message", map[string]interface{}{
			"matchId":  matchID,
			"senderId": senderID,
		})
	}
	return message, nil
}

// ensureConversation lazily creates the conversation row on the first real
// message. The sender's consent is implicit in sending; the decision window
// is what the other party has to consent within.
func (cs *ConversationService) ensureConversation(ctx context.Context, match models.Match, senderID string) error {
	now := cs.now()
	conv := models.Conversation{
		MatchID:               match.MatchID,
		User1ID:               match.User1ID,
		User2ID:               match.User2ID,
		DecisionStarterUserID: senderID,
		DecisionExpiresAt:     utils.FormatTime(now.Add(cs.DecisionWindow)),
		CreatedAt:             utils.FormatTime(now),
	}
	if senderID == match.User1ID {
		conv.User1ConsentAt = utils.FormatTime(now)
	} else {
		conv.User2ConsentAt = utils.FormatTime(now)
	}

	err := cs.Dynamo.PutItemConditional(ctx, models.ConversationsTable, conv, "attribute_not_exists(matchId)", nil, nil)
	if err == nil {
		log.Printf("✅ Conversation %s entered prechat, %s must decide by %s", match.MatchID, match.OtherUser(senderID), conv.DecisionExpiresAt)
		return nil
	}
	if !errors.Is(err, ErrConditionFailed) {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	// Row already exists: sending still counts as consent for the sender.
	_, err = cs.RecordConsent(ctx, match.MatchID, senderID)
	if errors.Is(err, ErrConversationEnded) {
		return err
	}
	return err
}

// decisionLapsed reports whether the pre-chat decision window passed without
// activation. The stored row may not be terminal yet; callers treat a lapsed
// window as ended and the expiry write settles on the next touch or sweep.
func (cs *ConversationService) decisionLapsed(conv *models.Conversation) bool {
	return conv.ActiveAt == "" && conv.DecisionExpiresAt != "" &&
		!utils.ParseTime(conv.DecisionExpiresAt).After(cs.now())
}

// RecordConsent records a consent timestamp for userID and promotes the
// conversation to active once both consents are present. Duplicate consents
// are successful no-ops.
func (cs *ConversationService) RecordConsent(ctx context.Context, matchID, userID string) (*models.Conversation, error) {
	conv, err := cs.GetConversation(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNoConversation
	}
	if !conv.HasUser(userID) {
		return nil, ErrNotParticipant
	}
	if conv.IsTerminal() {
		return nil, ErrConversationEnded
	}
	// The decision deadline binds at consent time, not just at sweep time: a
	// consent landing between the deadline and the next sweep pass settles
	// the expiry itself instead of activating.
	if cs.decisionLapsed(conv) {
		_, err := cs.Dynamo.UpdateItemConditional(ctx, models.ConversationsTable,
			"SET terminalState = :st, terminalAt = :ts",
			map[string]types.AttributeValue{"matchId": &types.AttributeValueMemberS{Value: matchID}},
			map[string]types.AttributeValue{
				":st": &types.AttributeValueMemberS{Value: models.TerminalExpired},
				":ts": &types.AttributeValueMemberS{Value: utils.FormatTime(cs.now())},
			},
			nil,
			"attribute_not_exists(terminalState) AND attribute_not_exists(activeAt)",
		)
		if err != nil && !errors.Is(err, ErrConditionFailed) {
			return nil, fmt.Errorf("failed to expire conversation: %w", err)
		}
		return nil, ErrConversationEnded
	}

	field := conv.ConsentFieldFor(userID)
	if conv.ConsentAtFor(userID) == "" {
		_, err := cs.Dynamo.UpdateItemConditional(ctx, models.ConversationsTable,
			fmt.Sprintf("SET %s = :ts", field),
			map[string]types.AttributeValue{"matchId": &types.AttributeValueMemberS{Value: matchID}},
			map[string]types.AttributeValue{":ts": &types.AttributeValueMemberS{Value: utils.FormatTime(cs.now())}},
			nil,
			fmt.Sprintf("attribute_not_exists(%s) AND attribute_not_exists(terminalState)", field),
		)
		if err != nil && !errors.Is(err, ErrConditionFailed) {
			return nil, fmt.Errorf("failed to record consent: %w", err)
		}
		if errors.Is(err, ErrConditionFailed) {
			// Either a concurrent consent won (fine) or the conversation
			// just went terminal.
			refreshed, err := cs.GetConversation(ctx, matchID)
			if err != nil {
				return nil, err
			}
			if refreshed != nil && refreshed.IsTerminal() {
				return nil, ErrConversationEnded
			}
		}
	}

	if err := cs.tryActivate(ctx, matchID); err != nil {
		return nil, err
	}
	return cs.GetConversation(ctx, matchID)
}

// tryActivate promotes prechat to active once both consent timestamps exist.
// The conditional update makes concurrent racers converge: exactly one writer
// sets activeAt and the countdown.
func (cs *ConversationService) tryActivate(ctx context.Context, matchID string) error {
	conv, err := cs.GetConversation(ctx, matchID)
	if err != nil || conv == nil {
		return err
	}
	if conv.User1ConsentAt == "" || conv.User2ConsentAt == "" || conv.ActiveAt != "" || conv.IsTerminal() {
		return nil
	}

	now := cs.now()
	_, err = cs.Dynamo.UpdateItemConditional(ctx, models.ConversationsTable,
		"SET activeAt = :ts, countdownExpiresAt = :cd",
		map[string]types.AttributeValue{"matchId": &types.AttributeValueMemberS{Value: matchID}},
		map[string]types.AttributeValue{
			":ts": &types.AttributeValueMemberS{Value: utils.FormatTime(now)},
			":cd": &types.AttributeValueMemberS{Value: utils.FormatTime(now.Add(cs.CountdownWindow))},
		},
		nil,
		"attribute_exists(user1ConsentAt) AND attribute_exists(user2ConsentAt) AND attribute_not_exists(activeAt) AND attribute_not_exists(terminalState)",
	)
	if errors.Is(err, ErrConditionFailed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to activate conversation: %w", err)
	}

	log.Printf("✅ Conversation %s is now active", matchID)
	notify(cs.Notifier, conv.User1ID, "conversationActive", map[string]interface{}{"matchId": matchID})
	notify(cs.Notifier, conv.User2ID, "conversationActive", map[string]interface{}{"matchId": matchID})
	return nil
}

// Close ends the conversation for both parties. Terminal state is set at most
// once; closing an already-terminal conversation is a no-op.
func (cs *ConversationService) Close(ctx context.Context, matchID, userID string) error {
	conv, err := cs.GetConversation(ctx, matchID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrNoConversation
	}
	if !conv.HasUser(userID) {
		return ErrNotParticipant
	}
	if conv.IsTerminal() {
		return nil
	}

	_, err = cs.Dynamo.UpdateItemConditional(ctx, models.ConversationsTable,
		"SET terminalState = :st, terminalAt = :ts",
		map[string]types.AttributeValue{"matchId": &types.AttributeValueMemberS{Value: matchID}},
		map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: models.TerminalClosed},
			":ts": &types.AttributeValueMemberS{Value: utils.FormatTime(cs.now())},
		},
		nil,
		"attribute_not_exists(terminalState)",
	)
	if errors.Is(err, ErrConditionFailed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to close conversation: %w", err)
	}
	log.Printf("✅ Conversation %s closed by %s", matchID, userID)
	return nil
}

// Archive hides a match from one user's listings. It never touches the shared
// conversation row.
func (cs *ConversationService) Archive(ctx context.Context, userID, matchID, reason string) error {
	switch reason {
	case models.ArchiveReasonUnmatch, models.ArchiveReasonBlock, models.ArchiveReasonMet:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidReason, reason)
	}
	if _, err := cs.GetMatch(ctx, matchID); err != nil {
		return err
	}

	archive := models.Archive{
		UserID:     userID,
		MatchID:    matchID,
		ArchivedAt: utils.FormatTime(cs.now()),
		Reason:     reason,
	}
	if err := cs.Dynamo.PutItem(ctx, models.ArchivesTable, archive); err != nil {
		return fmt.Errorf("failed to archive match: %w", err)
	}
	return nil
}

// matchesForUser queries both participant GSIs, mirroring how the Matches
// table is keyed.
func (cs *ConversationService) matchesForUser(ctx context.Context, userID string) ([]models.Match, error) {
	var matches []models.Match
	for _, index := range []string{"user1Id-index", "user2Id-index"} {
		field := "user1Id"
		if index == "user2Id-index" {
			field = "user2Id"
		}
		items, err := cs.Dynamo.QueryItemsWithIndex(ctx, models.MatchesTable, index,
			fmt.Sprintf("%s = :userId", field),
			map[string]types.AttributeValue{":userId": &types.AttributeValueMemberS{Value: userID}},
			nil, 100)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch matches: %w", err)
		}

		var page []models.Match
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return nil, fmt.Errorf("failed to parse matches: %w", err)
		}
		matches = append(matches, page...)
	}
	return matches, nil
}

// ListForUser returns the user's visible conversations: archived matches are
// skipped, and terminal rows are surfaced only within the grace window after
// terminalAt so clients can show "it just ended" exactly once.
func (cs *ConversationService) ListForUser(ctx context.Context, userID string) ([]ConversationSummary, error) {
	matches, err := cs.matchesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := cs.now()
	summaries := []ConversationSummary{}
	for _, match := range matches {
		archived, err := cs.isArchived(ctx, userID, match.MatchID)
		if err != nil {
			return nil, err
		}
		if archived {
			continue
		}

		conv, err := cs.GetConversation(ctx, match.MatchID)
		if err != nil {
			return nil, err
		}

		summary := ConversationSummary{
			MatchID:     match.MatchID,
			OtherUserID: match.OtherUser(userID),
			State:       StateMatched,
		}
		if conv != nil {
			summary.ActiveAt = conv.ActiveAt
			summary.DecisionExpiresAt = conv.DecisionExpiresAt
			summary.CountdownExpiresAt = conv.CountdownExpiresAt
			switch {
			case conv.IsTerminal():
				if utils.ParseTime(conv.TerminalAt).Add(cs.GraceWindow).Before(now) {
					continue
				}
				summary.State = StateEnded
				summary.TerminalState = conv.TerminalState
				summary.TerminalAt = conv.TerminalAt
			case conv.ActiveAt != "":
				summary.State = StateActive
			default:
				summary.State = StatePrechat
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (cs *ConversationService) isArchived(ctx context.Context, userID, matchID string) (bool, error) {
	key := map[string]types.AttributeValue{
		"userId":  &types.AttributeValueMemberS{Value: userID},
		"matchId": &types.AttributeValueMemberS{Value: matchID},
	}
	item, err := cs.Dynamo.GetItem(ctx, models.ArchivesTable, key)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}
