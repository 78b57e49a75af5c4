package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
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
	// ErrTokenExpired means the QR token's TTL elapsed; the issuer should
	// generate a new code.
	ErrTokenExpired = errors.New("verification token expired")
	// ErrTokenMismatch means the token does not belong to the caller's match.
	ErrTokenMismatch = errors.New("verification token does not match")
)

// qrPayload is the opaque structure rendered as a QR code. Only the issuer
// and scanner need to agree on it.
type qrPayload struct {
	Type  string `json:"t"`
	Token string `json:"k"`
}

// VerificationResult is what both protocols report back to the caller.
type VerificationResult struct {
	Status  string `json:"status"`
	MatchID string `json:"matchId"`
}

// VerificationService implements the two meetup attestation protocols: the
// asymmetric QR handshake and the symmetric mutual tap. Both funnel into the
// same MeetupRefund idempotency keys, so a match is credited at most once no
// matter which protocol runs, how often, or in which interleaving.
type VerificationService struct {
	Dynamo        *DynamoService
	Ledger        *LedgerService
	Plans         *DatePlanService
	Conversations *ConversationService
	Notifier      Notifier
	TokenTTL      time.Duration
	SessionTTL    time.Duration
	CreditCents   int
	Now           func() time.Time
}

func (vs *VerificationService) now() time.Time {
	if vs.Now != nil {
		return vs.Now()
	}
	return time.Now().UTC()
}

// IssueToken mints a short-lived QR token for the issuer to display. Old
// tokens are not invalidated; they expire on their own.
func (vs *VerificationService) IssueToken(ctx context.Context, matchID, issuerID string) (string, models.VerificationToken, error) {
	match, err := vs.Conversations.GetMatch(ctx, matchID)
	if err != nil {
		return "", models.VerificationToken{}, err
	}
	if !match.HasUser(issuerID) {
		return "", models.VerificationToken{}, ErrNotParticipant
	}

	now := vs.now()
	token := models.VerificationToken{
		Token:        uuid.NewString(),
		MatchID:      matchID,
		IssuerUserID: issuerID,
		ExpiresAt:    utils.FormatTime(now.Add(vs.TokenTTL)),
		CreatedAt:    utils.FormatTime(now),
	}
	if err := vs.Dynamo.PutItem(ctx, models.VerificationTokensTable, token); err != nil {
		return "", models.VerificationToken{}, fmt.Errorf("failed to store verification token: %w", err)
	}

	raw, err := json.Marshal(qrPayload{Type: models.QRPayloadType, Token: token.Token})
	if err != nil {
		return "", models.VerificationToken{}, fmt.Errorf("failed to encode QR payload: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), token, nil
}

// decodePayload extracts the token id from a scanned QR payload. A raw token
// id is accepted too, which keeps older clients working.
func decodePayload(payload string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return payload, nil
	}
	var qr qrPayload
	if err := json.Unmarshal(raw, &qr); err != nil || qr.Type != models.QRPayloadType {
		return "", ErrTokenMismatch
	}
	return qr.Token, nil
}

// Confirm consumes a scanned token and credits both participants. Replays and
// double-scans come back as ALREADY_VERIFIED successes, never errors, because
// from the scanner's point of view the meetup is verified either way.
func (vs *VerificationService) Confirm(ctx context.Context, matchID, scannerID, payload string) (VerificationResult, error) {
	tokenID, err := decodePayload(payload)
	if err != nil {
		return VerificationResult{}, err
	}

	key := map[string]types.AttributeValue{
		"token": &types.AttributeValueMemberS{Value: tokenID},
	}
	item, err := vs.Dynamo.GetItem(ctx, models.VerificationTokensTable, key)
	if err != nil {
		return VerificationResult{}, err
	}
	if item == nil {
		return VerificationResult{}, ErrTokenMismatch
	}

	var token models.VerificationToken
	if err := attributevalue.UnmarshalMap(item, &token); err != nil {
		return VerificationResult{}, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	if token.MatchID != matchID {
		return VerificationResult{}, ErrTokenMismatch
	}

	match, err := vs.Conversations.GetMatch(ctx, matchID)
	if err != nil {
		return VerificationResult{}, err
	}
	if !match.HasUser(scannerID) || scannerID == token.IssuerUserID {
		return VerificationResult{}, ErrTokenMismatch
	}
	if !utils.ParseTime(token.ExpiresAt).After(vs.now()) {
		return VerificationResult{}, ErrTokenExpired
	}

	consumed := true
	_, err = vs.Dynamo.UpdateItemConditional(ctx, models.VerificationTokensTable,
		"SET consumedAt = :ts",
		key,
		map[string]types.AttributeValue{":ts": &types.AttributeValueMemberS{Value: utils.FormatTime(vs.now())}},
		nil,
		"attribute_not_exists(consumedAt)",
	)
	if errors.Is(err, ErrConditionFailed) {
		consumed = false
	} else if err != nil {
		return VerificationResult{}, fmt.Errorf("failed to consume token: %w", err)
	}

	// Grant regardless of who consumed the token: the idempotency key makes
	// this a no-op on replay and recovers a consume that crashed before the
	// credit landed.
	applied, err := vs.grantRefund(ctx, *match)
	if err != nil {
		return VerificationResult{}, err
	}

	status := models.VerificationVerified
	if !applied || !consumed {
		status = models.VerificationAlready
	}
	return VerificationResult{Status: status, MatchID: matchID}, nil
}

// StartHandshake handles a mutual-tap press. The first distinct participant
// creates the session, the second completes it; a duplicate tap from the
// initiator keeps waiting, because completion requires two different people.
func (vs *VerificationService) StartHandshake(ctx context.Context, matchID, userID string) (VerificationResult, error) {
	match, err := vs.Conversations.GetMatch(ctx, matchID)
	if err != nil {
		return VerificationResult{}, err
	}
	if !match.HasUser(userID) {
		return VerificationResult{}, ErrNotParticipant
	}

	now := vs.now()
	session := models.HandshakeSession{
		MatchID:         matchID,
		InitiatorUserID: userID,
		CreatedAt:       utils.FormatTime(now),
	}
	err = vs.Dynamo.PutItemConditional(ctx, models.HandshakeSessionsTable, session, "attribute_not_exists(matchId)", nil, nil)
	if err == nil {
		return VerificationResult{Status: models.VerificationWaiting, MatchID: matchID}, nil
	}
	if !errors.Is(err, ErrConditionFailed) {
		return VerificationResult{}, fmt.Errorf("failed to start handshake: %w", err)
	}

	existing, err := vs.getSession(ctx, matchID)
	if err != nil {
		return VerificationResult{}, err
	}
	if existing == nil {
		// Session vanished between the put and the read; treat as waiting
		// and let the client retry.
		return VerificationResult{Status: models.VerificationWaiting, MatchID: matchID}, nil
	}

	if existing.CompletedAt != "" {
		applied, err := vs.grantRefund(ctx, *match)
		if err != nil {
			return VerificationResult{}, err
		}
		status := models.VerificationAlready
		if applied {
			status = models.VerificationVerified
		}
		return VerificationResult{Status: status, MatchID: matchID}, nil
	}

	stale := !utils.ParseTime(existing.CreatedAt).Add(vs.SessionTTL).After(now)
	if existing.InitiatorUserID == userID || stale {
		// Duplicate tap, or a leftover session from an abandoned attempt:
		// (re)arm it under the caller and wait for the other party.
		_, err := vs.Dynamo.UpdateItemConditional(ctx, models.HandshakeSessionsTable,
			"SET initiatorUserId = :u, createdAt = :ts",
			map[string]types.AttributeValue{"matchId": &types.AttributeValueMemberS{Value: matchID}},
			map[string]types.AttributeValue{
				":u":   &types.AttributeValueMemberS{Value: userID},
				":ts":  &types.AttributeValueMemberS{Value: utils.FormatTime(now)},
				":old": &types.AttributeValueMemberS{Value: existing.CreatedAt},
			},
			nil,
			"createdAt = :old AND attribute_not_exists(completedAt)",
		)
		if err != nil && !errors.Is(err, ErrConditionFailed) {
			return VerificationResult{}, fmt.Errorf("failed to refresh handshake: %w", err)
		}
		if errors.Is(err, ErrConditionFailed) && !stale && existing.InitiatorUserID == userID {
			// The other party completed while we were re-arming.
			return vs.StartHandshake(ctx, matchID, userID)
		}
		return VerificationResult{Status: models.VerificationWaiting, MatchID: matchID}, nil
	}

	// Second distinct participant: complete the session.
	_, err = vs.Dynamo.UpdateItemConditional(ctx, models.HandshakeSessionsTable,
		"SET completedAt = :ts, creditTxRef = :ref",
		map[string]types.AttributeValue{"matchId": &types.AttributeValueMemberS{Value: matchID}},
		map[string]types.AttributeValue{
			":ts":  &types.AttributeValueMemberS{Value: utils.FormatTime(now)},
			":ref": &types.AttributeValueMemberS{Value: models.MeetupRefundTxKey(matchID, userID)},
		},
		nil,
		"attribute_not_exists(completedAt)",
	)
	if err != nil && !errors.Is(err, ErrConditionFailed) {
		return VerificationResult{}, fmt.Errorf("failed to complete handshake: %w", err)
	}

	applied, grantErr := vs.grantRefund(ctx, *match)
	if grantErr != nil {
		return VerificationResult{}, grantErr
	}
	status := models.VerificationAlready
	if applied {
		status = models.VerificationVerified
	}
	return VerificationResult{Status: status, MatchID: matchID}, nil
}

// HandshakeStatus is the pure read the waiting party polls.
func (vs *VerificationService) HandshakeStatus(ctx context.Context, matchID, userID string) (VerificationResult, error) {
	match, err := vs.Conversations.GetMatch(ctx, matchID)
	if err != nil {
		return VerificationResult{}, err
	}
	if !match.HasUser(userID) {
		return VerificationResult{}, ErrNotParticipant
	}

	session, err := vs.getSession(ctx, matchID)
	if err != nil {
		return VerificationResult{}, err
	}
	switch {
	case session == nil:
		return VerificationResult{Status: models.VerificationNone, MatchID: matchID}, nil
	case session.CompletedAt != "":
		return VerificationResult{Status: models.VerificationVerified, MatchID: matchID}, nil
	case !utils.ParseTime(session.CreatedAt).Add(vs.SessionTTL).After(vs.now()):
		return VerificationResult{Status: models.VerificationNone, MatchID: matchID}, nil
	default:
		return VerificationResult{Status: models.VerificationWaiting, MatchID: matchID}, nil
	}
}

func (vs *VerificationService) getSession(ctx context.Context, matchID string) (*models.HandshakeSession, error) {
	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: matchID},
	}
	item, err := vs.Dynamo.GetItem(ctx, models.HandshakeSessionsTable, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	var session models.HandshakeSession
	if err := attributevalue.UnmarshalMap(item, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal handshake session: %w", err)
	}
	return &session, nil
}

// grantRefund applies the shared MeetupRefund grant, unlocks a pending date
// credit, and notifies both users. Safe to call any number of times.
func (vs *VerificationService) grantRefund(ctx context.Context, match models.Match) (bool, error) {
	applied, err := vs.Ledger.GrantMeetupRefund(ctx, match.MatchID, match.User1ID, match.User2ID, 1, vs.CreditCents)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	if err := vs.Plans.Unlock(ctx, match.MatchID); err != nil {
		log.Printf("⚠️ Failed to unlock date credit for match %s: %v", match.MatchID, err)
	}
	notify(vs.Notifier, match.User1ID, "creditUnlocked", map[string]interface{}{"matchId": match.MatchID})
	notify(vs.Notifier, match.User2ID, "creditUnlocked", map[string]interface{}{"matchId": match.MatchID})
	return true, nil
}
