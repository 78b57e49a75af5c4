package utils

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestExtractString(t *testing.T) {
	item := map[string]types.AttributeValue{
		"name":  &types.AttributeValueMemberS{Value: "alice"},
		"count": &types.AttributeValueMemberN{Value: "3"},
	}
	if got := ExtractString(item, "name"); got != "alice" {
		t.Errorf("ExtractString(name) = %q", got)
	}
	if got := ExtractString(item, "count"); got != "" {
		t.Errorf("ExtractString on a number = %q, want empty", got)
	}
	if got := ExtractString(item, "missing"); got != "" {
		t.Errorf("ExtractString(missing) = %q, want empty", got)
	}
}

func TestExtractInt(t *testing.T) {
	item := map[string]types.AttributeValue{
		"count": &types.AttributeValueMemberN{Value: "42"},
		"name":  &types.AttributeValueMemberS{Value: "alice"},
		"bad":   &types.AttributeValueMemberN{Value: "4.5x"},
	}
	if got := ExtractInt(item, "count"); got != 42 {
		t.Errorf("ExtractInt(count) = %d", got)
	}
	if got := ExtractInt(item, "name"); got != 0 {
		t.Errorf("ExtractInt on a string = %d, want 0", got)
	}
	if got := ExtractInt(item, "bad"); got != 0 {
		t.Errorf("ExtractInt on garbage = %d, want 0", got)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	s := FormatTime(now)
	if got := ParseTime(s); !got.Equal(now) {
		t.Errorf("round trip = %v, want %v", got, now)
	}

	// Non-UTC inputs normalize, so string comparison stays meaningful.
	est := time.FixedZone("EST", -5*3600)
	if FormatTime(now.In(est)) != s {
		t.Error("FormatTime is not timezone-stable")
	}
}

func TestFormatTimeIsLexicographic(t *testing.T) {
	earlier := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	later := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	if !(FormatTime(earlier) < FormatTime(later)) {
		t.Error("formatted timestamps do not sort chronologically")
	}
}

func TestParseTimeBadInput(t *testing.T) {
	if !ParseTime("").IsZero() {
		t.Error("empty string should parse to zero time")
	}
	if !ParseTime("yesterday-ish").IsZero() {
		t.Error("malformed string should parse to zero time")
	}
}
