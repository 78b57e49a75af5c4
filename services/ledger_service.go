package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"kindling_server/metrics"
	"kindling_server/models"
	"kindling_server/utils"
)

// SpendOutcome classifies the result of a date-spend attempt.
type SpendOutcome int

const (
	SpendApplied SpendOutcome = iota
	// SpendAlreadyApplied means the idempotency key already exists: a prior
	// or concurrent sweep won the race.
	SpendAlreadyApplied
	// SpendInsufficientBalance means at least one wallet cannot cover the
	// debit. Not an error: the plan stays pending and the sweep retries.
	SpendInsufficientBalance
)

// LedgerService owns the wallet balances and the append-only transaction log.
// Every mutation writes the ledger row and the wallet balance in one DynamoDB
// transaction; the conditional put on the transaction key is what makes each
// mutation exactly-once under replays and concurrent writers.
type LedgerService struct {
	Dynamo *DynamoService
	Now    func() time.Time
}

func (ls *LedgerService) now() time.Time {
	if ls.Now != nil {
		return ls.Now()
	}
	return time.Now().UTC()
}

// grantItems builds the transact pair for one positive ledger entry: the
// conditional ledger put plus the wallet balance increment.
func (ls *LedgerService) grantItems(tx models.LedgerTransaction) ([]types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger transaction: %w", err)
	}

	return []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           aws.String(models.LedgerTransactionsTable),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(txKey)"),
			},
		},
		{
			Update: &types.Update{
				TableName:        aws.String(models.WalletsTable),
				Key:              map[string]types.AttributeValue{"userId": &types.AttributeValueMemberS{Value: tx.UserID}},
				UpdateExpression: aws.String("SET balanceCredits = if_not_exists(balanceCredits, :zero) + :dc, balanceCents = if_not_exists(balanceCents, :zero) + :dm"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":zero": &types.AttributeValueMemberN{Value: "0"},
					":dc":   &types.AttributeValueMemberN{Value: strconv.Itoa(tx.AmountCredits)},
					":dm":   &types.AttributeValueMemberN{Value: strconv.Itoa(tx.AmountCents)},
				},
			},
		},
	}, nil
}

// spendItems builds the transact pair for one debit: the conditional ledger
// put plus a wallet decrement guarded against going negative.
func (ls *LedgerService) spendItems(tx models.LedgerTransaction) ([]types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger transaction: %w", err)
	}

	return []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           aws.String(models.LedgerTransactionsTable),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(txKey)"),
			},
		},
		{
			Update: &types.Update{
				TableName:           aws.String(models.WalletsTable),
				Key:                 map[string]types.AttributeValue{"userId": &types.AttributeValueMemberS{Value: tx.UserID}},
				UpdateExpression:    aws.String("SET balanceCredits = balanceCredits - :dc, balanceCents = balanceCents - :dm"),
				ConditionExpression: aws.String("balanceCredits >= :dc AND balanceCents >= :dm"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":dc": &types.AttributeValueMemberN{Value: strconv.Itoa(-tx.AmountCredits)},
					":dm": &types.AttributeValueMemberN{Value: strconv.Itoa(-tx.AmountCents)},
				},
			},
		},
	}, nil
}

// GrantPurchase credits a user for a store purchase, keyed by the store's
// transaction id. Returns false when the same transaction was already applied
// (webhook redelivery).
func (ls *LedgerService) GrantPurchase(ctx context.Context, userID, storeTransactionID string, credits, cents int) (bool, error) {
	tx := models.LedgerTransaction{
		TxKey:              models.PurchaseTxKey(storeTransactionID, userID),
		UserID:             userID,
		Kind:               models.TxKindPurchaseGrant,
		AmountCredits:      credits,
		AmountCents:        cents,
		StoreTransactionID: storeTransactionID,
		CreatedAt:          utils.FormatTime(ls.now()),
	}

	items, err := ls.grantItems(tx)
	if err != nil {
		return false, err
	}

	if err := ls.Dynamo.TransactWrite(ctx, items); err != nil {
		var tce *TransactionCanceledError
		if errors.As(err, &tce) && tce.ItemConditionFailed(0) {
			log.Printf("ℹ️ Purchase %s already credited for user %s", storeTransactionID, userID)
			return false, nil
		}
		return false, fmt.Errorf("failed to apply purchase grant: %w", err)
	}

	metrics.LedgerMutations.WithLabelValues(models.TxKindPurchaseGrant).Inc()
	log.Printf("✅ Granted %d credit(s) to user %s for purchase %s", credits, userID, storeTransactionID)
	return true, nil
}

// GrantMeetupRefund credits both participants of a match for a verified
// meetup, at most once per match ever. Both verification protocols call this
// with the same (matchId, kind) key namespace, so whichever lands first wins
// and all later attempts are no-ops.
func (ls *LedgerService) GrantMeetupRefund(ctx context.Context, matchID, user1ID, user2ID string, credits, cents int) (bool, error) {
	createdAt := utils.FormatTime(ls.now())
	var items []types.TransactWriteItem
	for _, userID := range []string{user1ID, user2ID} {
		tx := models.LedgerTransaction{
			TxKey:         models.MeetupRefundTxKey(matchID, userID),
			UserID:        userID,
			Kind:          models.TxKindMeetupRefund,
			AmountCredits: credits,
			AmountCents:   cents,
			MatchID:       matchID,
			CreatedAt:     createdAt,
		}
		pair, err := ls.grantItems(tx)
		if err != nil {
			return false, err
		}
		items = append(items, pair...)
	}

	if err := ls.Dynamo.TransactWrite(ctx, items); err != nil {
		var tce *TransactionCanceledError
		if errors.As(err, &tce) && (tce.ItemConditionFailed(0) || tce.ItemConditionFailed(2)) {
			log.Printf("ℹ️ Meetup refund for match %s already granted", matchID)
			return false, nil
		}
		return false, fmt.Errorf("failed to apply meetup refund: %w", err)
	}

	metrics.LedgerMutations.WithLabelValues(models.TxKindMeetupRefund).Inc()
	log.Printf("✅ Granted meetup refund for match %s to %s and %s", matchID, user1ID, user2ID)
	return true, nil
}

// SpendDateCredit debits one completed-date credit from both participants in
// a single transaction. The ledger puts are listed before the wallet updates
// so a cancellation can be classified: ledger condition lost means the spend
// already happened, wallet condition lost means insufficient balance.
func (ls *LedgerService) SpendDateCredit(ctx context.Context, matchID, user1ID, user2ID string, credits, cents int) (SpendOutcome, error) {
	createdAt := utils.FormatTime(ls.now())
	var items []types.TransactWriteItem
	for _, userID := range []string{user1ID, user2ID} {
		tx := models.LedgerTransaction{
			TxKey:         models.DateSpendTxKey(matchID, userID),
			UserID:        userID,
			Kind:          models.TxKindDateSpend,
			AmountCredits: -credits,
			AmountCents:   -cents,
			MatchID:       matchID,
			CreatedAt:     createdAt,
		}
		pair, err := ls.spendItems(tx)
		if err != nil {
			return SpendInsufficientBalance, err
		}
		items = append(items, pair...)
	}

	if err := ls.Dynamo.TransactWrite(ctx, items); err != nil {
		var tce *TransactionCanceledError
		if errors.As(err, &tce) {
			if tce.ItemConditionFailed(0) || tce.ItemConditionFailed(2) {
				return SpendAlreadyApplied, nil
			}
			if tce.ItemConditionFailed(1) || tce.ItemConditionFailed(3) {
				log.Printf("ℹ️ Deferring date spend for match %s: insufficient balance", matchID)
				return SpendInsufficientBalance, nil
			}
		}
		return SpendInsufficientBalance, fmt.Errorf("failed to apply date spend: %w", err)
	}

	metrics.LedgerMutations.WithLabelValues(models.TxKindDateSpend).Inc()
	log.Printf("✅ Spent date credit for match %s from %s and %s", matchID, user1ID, user2ID)
	return SpendApplied, nil
}

// GetWallet returns the user's wallet; a user with no ledger activity has a
// zero wallet.
func (ls *LedgerService) GetWallet(ctx context.Context, userID string) (models.Wallet, error) {
	key := map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}
	item, err := ls.Dynamo.GetItem(ctx, models.WalletsTable, key)
	if err != nil {
		return models.Wallet{}, err
	}
	if item == nil {
		return models.Wallet{UserID: userID}, nil
	}

	var wallet models.Wallet
	if err := attributevalue.UnmarshalMap(item, &wallet); err != nil {
		return models.Wallet{}, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}
	return wallet, nil
}

// GetTransactions returns a user's ledger history, read-only.
func (ls *LedgerService) GetTransactions(ctx context.Context, userID string) ([]models.LedgerTransaction, error) {
	items, err := ls.Dynamo.QueryItemsWithIndex(ctx, models.LedgerTransactionsTable, "userId-index",
		"userId = :userId",
		map[string]types.AttributeValue{":userId": &types.AttributeValueMemberS{Value: userID}},
		nil, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger history: %w", err)
	}

	var txs []models.LedgerTransaction
	if err := attributevalue.UnmarshalListOfMaps(items, &txs); err != nil {
		return nil, fmt.Errorf("failed to parse ledger history: %w", err)
	}
	return txs, nil
}
