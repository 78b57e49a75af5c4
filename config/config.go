package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the service, parsed from the environment.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	AWSRegion string `env:"AWS_REGION" envDefault:"us-east-1"`

	// WebhookSecret authenticates the payment platform's webhook calls.
	WebhookSecret string `env:"WEBHOOK_SECRET,required,notEmpty"`
	// CreditProductIDs is the allow-list of store products that grant credit.
	CreditProductIDs []string `env:"CREDIT_PRODUCT_IDS" envSeparator:"," envDefault:"kindling.credit.single"`

	// DateCreditCents is the fixed face value of one credit.
	DateCreditCents int `env:"DATE_CREDIT_CENTS" envDefault:"2500"`

	// DecisionWindow is how long the non-starter has to consent after the
	// first message before the conversation expires.
	DecisionWindow time.Duration `env:"DECISION_WINDOW" envDefault:"24h"`
	// CountdownWindow is how long an active conversation lives without an
	// accepted date plan.
	CountdownWindow time.Duration `env:"COUNTDOWN_WINDOW" envDefault:"168h"`
	// ExpiryWarning is how close to countdown expiry the "expiring soon"
	// notification fires.
	ExpiryWarning time.Duration `env:"EXPIRY_WARNING" envDefault:"24h"`
	// GraceWindow is how long a terminal conversation stays visible in
	// listings after it ended.
	GraceWindow time.Duration `env:"GRACE_WINDOW" envDefault:"5s"`

	// TokenTTL bounds the life of a QR verification token.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"120s"`
	// SessionTTL bounds the life of an uncompleted mutual-tap session.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"120s"`

	// VerificationWindow is how long after a date's end a pending credit can
	// still be unlocked before it expires.
	VerificationWindow time.Duration `env:"VERIFICATION_WINDOW" envDefault:"48h"`

	// SweepInterval is the cadence of the background lifecycle sweeper.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
