package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"kindling_server/models"
)

// Defaults mirroring the production configuration.
const (
	testDecisionWindow     = 24 * time.Hour
	testCountdownWindow    = 168 * time.Hour
	testGraceWindow        = 5 * time.Second
	testTokenTTL           = 120 * time.Second
	testSessionTTL         = 120 * time.Second
	testExpiryWarning      = 24 * time.Hour
	testVerificationWindow = 48 * time.Hour
	testCreditCents        = 2500
)

// testClock is a settable clock shared by all services in a test env.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sentEvent is one recorded push notification.
type sentEvent struct {
	UserID  string
	Event   string
	Payload map[string]interface{}
}

// recordingNotifier captures pushes instead of delivering them.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (rn *recordingNotifier) Notify(userID, event string, payload map[string]interface{}) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.events = append(rn.events, sentEvent{UserID: userID, Event: event, Payload: payload})
}

func (rn *recordingNotifier) count(userID, event string) int {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	n := 0
	for _, e := range rn.events {
		if e.UserID == userID && e.Event == event {
			n++
		}
	}
	return n
}

// testEnv wires every service against the in-memory store with a pinned
// clock.
type testEnv struct {
	Fake          *fakeDynamo
	Dynamo        *DynamoService
	Clock         *testClock
	Notifier      *recordingNotifier
	Ledger        *LedgerService
	Conversations *ConversationService
	Plans         *DatePlanService
	Verification  *VerificationService
	Purchases     *PurchaseService
	Sweeper       *SweeperService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := newFakeDynamo()
	dynamo := &DynamoService{Client: fake}
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}

	ledger := &LedgerService{Dynamo: dynamo, Now: clock.Now}
	conversations := &ConversationService{
		Dynamo:          dynamo,
		Notifier:        notifier,
		DecisionWindow:  testDecisionWindow,
		CountdownWindow: testCountdownWindow,
		GraceWindow:     testGraceWindow,
		Now:             clock.Now,
	}
	plans := &DatePlanService{
		Dynamo:        dynamo,
		Conversations: conversations,
		Notifier:      notifier,
		CreditCents:   testCreditCents,
		Now:           clock.Now,
	}
	verification := &VerificationService{
		Dynamo:        dynamo,
		Ledger:        ledger,
		Plans:         plans,
		Conversations: conversations,
		Notifier:      notifier,
		TokenTTL:      testTokenTTL,
		SessionTTL:    testSessionTTL,
		CreditCents:   testCreditCents,
		Now:           clock.Now,
	}
	purchases := &PurchaseService{
		Dynamo:         dynamo,
		Ledger:         ledger,
		CreditProducts: []string{"kindling.credit.single"},
		CreditCents:    testCreditCents,
		Now:            clock.Now,
	}
	sweeper := &SweeperService{
		Dynamo:             dynamo,
		Ledger:             ledger,
		Plans:              plans,
		Notifier:           notifier,
		ExpiryWarning:      testExpiryWarning,
		VerificationWindow: testVerificationWindow,
		Now:                clock.Now,
	}

	return &testEnv{
		Fake:          fake,
		Dynamo:        dynamo,
		Clock:         clock,
		Notifier:      notifier,
		Ledger:        ledger,
		Conversations: conversations,
		Plans:         plans,
		Verification:  verification,
		Purchases:     purchases,
		Sweeper:       sweeper,
	}
}

func (env *testEnv) seedUser(t *testing.T, userID string) {
	t.Helper()
	profile := models.UserProfile{UserID: userID, Name: userID}
	if err := env.Dynamo.PutItem(context.Background(), models.UserProfilesTable, profile); err != nil {
		t.Fatalf("seed user %s: %v", userID, err)
	}
}

func (env *testEnv) seedMatch(t *testing.T, matchID, user1, user2 string) {
	t.Helper()
	if _, err := env.Conversations.CreateMatch(context.Background(), matchID, user1, user2); err != nil {
		t.Fatalf("seed match %s: %v", matchID, err)
	}
}

// seedActiveConversation drives a match to the active state: a first message
// from user1 and an explicit consent from user2.
func (env *testEnv) seedActiveConversation(t *testing.T, matchID, user1, user2 string) {
	t.Helper()
	env.seedMatch(t, matchID, user1, user2)
	if _, err := env.Conversations.RecordMessage(context.Background(), matchID, user1, "hey!", false); err != nil {
		t.Fatalf("seed first message: %v", err)
	}
	conv, err := env.Conversations.RecordConsent(context.Background(), matchID, user2)
	if err != nil {
		t.Fatalf("seed consent: %v", err)
	}
	if !conv.IsActive() {
		t.Fatalf("conversation %s not active after mutual consent", matchID)
	}
}

// fundWallet gives the user credits through purchase grants so balances obey
// the same ledger path production uses.
func (env *testEnv) fundWallet(t *testing.T, userID string, credits int) {
	t.Helper()
	for i := 0; i < credits; i++ {
		txID := userID + "-seed-" + string(rune('a'+i))
		applied, err := env.Ledger.GrantPurchase(context.Background(), userID, txID, 1, testCreditCents)
		if err != nil {
			t.Fatalf("fund wallet for %s: %v", userID, err)
		}
		if !applied {
			t.Fatalf("seed purchase %s unexpectedly deduplicated", txID)
		}
	}
}

// seedAcceptedPlan proposes and accepts a date on an active conversation.
func (env *testEnv) seedAcceptedPlan(t *testing.T, matchID, proposer, responder string, start, end time.Time) models.DatePlan {
	t.Helper()
	if _, err := env.Plans.Propose(context.Background(), matchID, proposer,
		start.Format(time.RFC3339), end.Format(time.RFC3339), "coffee", "Blue Bottle", ""); err != nil {
		t.Fatalf("seed proposal: %v", err)
	}
	plan, err := env.Plans.Respond(context.Background(), matchID, responder, true)
	if err != nil {
		t.Fatalf("seed acceptance: %v", err)
	}
	return plan
}
