package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory DynamoAPI implementation. It evaluates the
// narrow expression grammar the service layer actually uses: AND-joined
// attribute_exists / attribute_not_exists / = / <> / >= conditions, SET with
// literal, additive and if_not_exists operands, and REMOVE.
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

// fakeTableKeys maps each table to its key attributes, in key order.
var fakeTableKeys = map[string][]string{
	"Matches":            {"matchId"},
	"Conversations":      {"matchId"},
	"Archives":           {"userId", "matchId"},
	"DatePlans":          {"matchId"},
	"Wallets":            {"userId"},
	"LedgerTransactions": {"txKey"},
	"VerificationTokens": {"token"},
	"HandshakeSessions":  {"matchId"},
	"PendingPurchases":   {"eventId"},
	"IdentityLinks":      {"alias"},
	"Users":              {"userId"},
	"Messages":           {"matchId", "messageId"},
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		f.tables[name] = t
	}
	return t
}

func (f *fakeDynamo) keyOf(tableName string, item map[string]types.AttributeValue) (string, error) {
	attrs, ok := fakeTableKeys[tableName]
	if !ok {
		return "", fmt.Errorf("unknown table %q", tableName)
	}
	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		s, ok := item[attr].(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("table %q: missing key attribute %q", tableName, attr)
		}
		parts = append(parts, s.Value)
	}
	return strings.Join(parts, "|"), nil
}

func copyAttrs(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func numValue(a types.AttributeValue) (int, error) {
	n, ok := a.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("not a number: %T", a)
	}
	return strconv.Atoi(n.Value)
}

// evalCondition checks an AND-joined condition expression against item.
// item is nil when no stored row exists yet.
func evalCondition(expr string, item map[string]types.AttributeValue, values map[string]types.AttributeValue) (bool, error) {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
			attr := clause[len("attribute_not_exists(") : len(clause)-1]
			if _, exists := item[attr]; exists {
				return false, nil
			}
		case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
			attr := clause[len("attribute_exists(") : len(clause)-1]
			if _, exists := item[attr]; !exists {
				return false, nil
			}
		case strings.Contains(clause, " <> "):
			parts := strings.SplitN(clause, " <> ", 2)
			stored, exists := item[strings.TrimSpace(parts[0])]
			want, ok := values[strings.TrimSpace(parts[1])]
			if !ok {
				return false, fmt.Errorf("unbound value %q", parts[1])
			}
			if exists && attrEqual(stored, want) {
				return false, nil
			}
		case strings.Contains(clause, " >= "):
			parts := strings.SplitN(clause, " >= ", 2)
			stored, exists := item[strings.TrimSpace(parts[0])]
			want, ok := values[strings.TrimSpace(parts[1])]
			if !ok {
				return false, fmt.Errorf("unbound value %q", parts[1])
			}
			if !exists {
				return false, nil
			}
			sn, err := numValue(stored)
			if err != nil {
				return false, err
			}
			wn, err := numValue(want)
			if err != nil {
				return false, err
			}
			if sn < wn {
				return false, nil
			}
		case strings.Contains(clause, " = "):
			parts := strings.SplitN(clause, " = ", 2)
			stored, exists := item[strings.TrimSpace(parts[0])]
			want, ok := values[strings.TrimSpace(parts[1])]
			if !ok {
				return false, fmt.Errorf("unbound value %q", parts[1])
			}
			if !exists || !attrEqual(stored, want) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported condition clause %q", clause)
		}
	}
	return true, nil
}

// splitTopLevel splits on ", " outside parentheses, for SET clauses that
// contain if_not_exists(...).
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}

// applyUpdate mutates item per the update expression.
func applyUpdate(expr string, item map[string]types.AttributeValue, values map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "SET "):
		for _, clause := range splitTopLevel(expr[len("SET "):]) {
			parts := strings.SplitN(clause, " = ", 2)
			if len(parts) != 2 {
				return fmt.Errorf("unsupported SET clause %q", clause)
			}
			attr := strings.TrimSpace(parts[0])
			value, err := evalOperand(strings.TrimSpace(parts[1]), item, values)
			if err != nil {
				return err
			}
			item[attr] = value
		}
	case strings.HasPrefix(expr, "REMOVE "):
		for _, attr := range strings.Split(expr[len("REMOVE "):], ",") {
			delete(item, strings.TrimSpace(attr))
		}
	default:
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	return nil
}

// evalOperand resolves the right-hand side of a SET clause: a bound value, an
// attribute plus/minus a bound value, or if_not_exists(attr, bound) plus a
// bound value.
func evalOperand(operand string, item map[string]types.AttributeValue, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	resolveTerm := func(term string) (int, error) {
		term = strings.TrimSpace(term)
		if strings.HasPrefix(term, ":") {
			return numValue(values[term])
		}
		if strings.HasPrefix(term, "if_not_exists(") && strings.HasSuffix(term, ")") {
			inner := strings.SplitN(term[len("if_not_exists("):len(term)-1], ",", 2)
			if stored, exists := item[strings.TrimSpace(inner[0])]; exists {
				return numValue(stored)
			}
			return numValue(values[strings.TrimSpace(inner[1])])
		}
		stored, exists := item[term]
		if !exists {
			return 0, fmt.Errorf("attribute %q not set", term)
		}
		return numValue(stored)
	}

	if op := strings.Index(operand, " + "); op >= 0 {
		left, err := resolveTerm(operand[:op])
		if err != nil {
			return nil, err
		}
		right, err := resolveTerm(operand[op+3:])
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: strconv.Itoa(left + right)}, nil
	}
	if op := strings.Index(operand, " - "); op >= 0 {
		left, err := resolveTerm(operand[:op])
		if err != nil {
			return nil, err
		}
		right, err := resolveTerm(operand[op+3:])
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: strconv.Itoa(left - right)}, nil
	}
	if strings.HasPrefix(operand, ":") {
		value, ok := values[operand]
		if !ok {
			return nil, fmt.Errorf("unbound value %q", operand)
		}
		return value, nil
	}
	return nil, fmt.Errorf("unsupported operand %q", operand)
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, err := f.keyOf(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := f.table(*params.TableName)[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyAttrs(item)}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.putLocked(params.TableName, params.Item, params.ConditionExpression, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) putLocked(tableName *string, item map[string]types.AttributeValue, condition *string, values map[string]types.AttributeValue) error {
	key, err := f.keyOf(*tableName, item)
	if err != nil {
		return err
	}
	table := f.table(*tableName)
	if condition != nil {
		ok, err := evalCondition(*condition, table[key], values)
		if err != nil {
			return err
		}
		if !ok {
			return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}
	table[key] = copyAttrs(item)
	return nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	updated, err := f.updateLocked(params.TableName, params.Key, params.UpdateExpression, params.ConditionExpression, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dynamodb.UpdateItemOutput{Attributes: copyAttrs(updated)}, nil
}

func (f *fakeDynamo) updateLocked(tableName *string, itemKey map[string]types.AttributeValue, update, condition *string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	key, err := f.keyOf(*tableName, itemKey)
	if err != nil {
		return nil, err
	}
	table := f.table(*tableName)
	stored := table[key]
	if condition != nil {
		ok, err := evalCondition(*condition, stored, values)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}

	updated := copyAttrs(stored)
	if updated == nil {
		updated = copyAttrs(itemKey)
	}
	if err := applyUpdate(*update, updated, values); err != nil {
		return nil, err
	}
	table[key] = updated
	return updated, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, err := f.keyOf(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	delete(f.table(*params.TableName), key)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query supports a single "attr = :value" key condition; with an index it is
// an equality filter over the whole table, which matches GSI semantics
// closely enough for these tests.
func (f *fakeDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(*params.KeyConditionExpression, " = ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("unsupported key condition %q", *params.KeyConditionExpression)
	}
	attr := strings.TrimSpace(parts[0])
	want, ok := params.ExpressionAttributeValues[strings.TrimSpace(parts[1])]
	if !ok {
		return nil, fmt.Errorf("unbound value %q", parts[1])
	}

	var items []map[string]types.AttributeValue
	for _, item := range f.table(*params.TableName) {
		if stored, exists := item[attr]; exists && attrEqual(stored, want) {
			items = append(items, copyAttrs(item))
		}
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var items []map[string]types.AttributeValue
	for _, item := range f.table(*params.TableName) {
		items = append(items, copyAttrs(item))
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

// TransactWriteItems checks every item's condition first, then applies all
// writes, mirroring the all-or-nothing semantics the ledger depends on.
func (f *fakeDynamo) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, item := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		var condition *string
		var stored map[string]types.AttributeValue
		var values map[string]types.AttributeValue

		switch {
		case item.Put != nil:
			key, err := f.keyOf(*item.Put.TableName, item.Put.Item)
			if err != nil {
				return nil, err
			}
			condition = item.Put.ConditionExpression
			stored = f.table(*item.Put.TableName)[key]
			values = item.Put.ExpressionAttributeValues
		case item.Update != nil:
			key, err := f.keyOf(*item.Update.TableName, item.Update.Key)
			if err != nil {
				return nil, err
			}
			condition = item.Update.ConditionExpression
			stored = f.table(*item.Update.TableName)[key]
			values = item.Update.ExpressionAttributeValues
		default:
			return nil, fmt.Errorf("unsupported transact item at index %d", i)
		}

		if condition != nil {
			ok, err := evalCondition(*condition, stored, values)
			if err != nil {
				return nil, err
			}
			if !ok {
				reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, item := range params.TransactItems {
		switch {
		case item.Put != nil:
			if err := f.putLocked(item.Put.TableName, item.Put.Item, nil, nil); err != nil {
				return nil, err
			}
		case item.Update != nil:
			if _, err := f.updateLocked(item.Update.TableName, item.Update.Key, item.Update.UpdateExpression, nil, item.Update.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}
