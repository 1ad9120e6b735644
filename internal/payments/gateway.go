package payments

import "context"

type IntentStatus string

const (
	IntentSucceeded IntentStatus = "succeeded"
	IntentPending   IntentStatus = "pending"
	IntentFailed    IntentStatus = "failed"
)

type Intent struct {
	ID           string            `json:"intent_id"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Status       IntentStatus      `json:"status"`
	AmountMinor  int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"-"`
}

// Gateway is the payment provider contract. Amounts are integer minor units.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
}
