package utils

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ExtractString safely extracts a string from a DynamoDB attribute map
func ExtractString(item map[string]types.AttributeValue, field string) string {
	if attr, ok := item[field]; ok {
		if v, ok := attr.(*types.AttributeValueMemberS); ok {
			return v.Value
		}
	}
	return ""
}

// ExtractInt safely extracts an integer from a DynamoDB attribute map
func ExtractInt(item map[string]types.AttributeValue, field string) int {
	if attr, ok := item[field]; ok {
		if v, ok := attr.(*types.AttributeValueMemberN); ok {
			if n, err := strconv.Atoi(v.Value); err == nil {
				return n
			}
		}
	}
	return 0
}

// FormatTime renders a timestamp the way every table stores it: RFC3339 UTC.
// The fixed format keeps stored timestamps lexicographically ordered, which
// the conditional expiry expressions rely on.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTime parses a stored RFC3339 timestamp. The zero time is returned for
// empty or malformed values.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
