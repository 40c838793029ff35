// Package payload fabricates plausible webhook bodies for each provider.
package payload

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Generator builds provider-shaped JSON bodies from a seeded faker.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// New returns a Generator. A seed of 0 picks a random seed.
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: time.Now}
}

// Generate returns a JSON body for provider. The fields each provider's
// event id is read from are always populated.
func (g *Generator) Generate(provider string) ([]byte, error) {
	var body map[string]any

	switch provider {
	case "stripe":
		body = g.stripe()
	case "plaid":
		body = g.plaid()
	case "marqeta":
		body = g.marqeta()
	case "lithic":
		body = g.lithic()
	case "trolley":
		body = g.trolley()
	case "solidfi":
		body = g.solidfi()
	case "treasury_prime":
		body = g.treasuryPrime()
	default:
		return nil, fmt.Errorf("no payload template for provider %q", provider)
	}

	return json.Marshal(body)
}

func (g *Generator) amountCents() int {
	return g.faker.Number(100, 500000)
}

func (g *Generator) stripe() map[string]any {
	f := g.faker
	return map[string]any{
		"id":       "evt_" + f.LetterN(24),
		"object":   "event",
		"type":     f.RandomString([]string{"payment_intent.succeeded", "charge.refunded", "invoice.paid", "customer.created"}),
		"created":  g.now().Unix(),
		"livemode": false,
		"data": map[string]any{
			"object": map[string]any{
				"id":       "pi_" + f.LetterN(24),
				"amount":   g.amountCents(),
				"currency": "usd",
				"customer": "cus_" + f.LetterN(14),
			},
		},
	}
}

func (g *Generator) plaid() map[string]any {
	f := g.faker
	return map[string]any{
		"webhook_type":     "TRANSACTIONS",
		"webhook_code":     f.RandomString([]string{"SYNC_UPDATES_AVAILABLE", "DEFAULT_UPDATE", "HISTORICAL_UPDATE"}),
		"item_id":          f.LetterN(37),
		"new_transactions": f.Number(0, 50),
		"environment":      "sandbox",
	}
}

func (g *Generator) marqeta() map[string]any {
	f := g.faker
	return map[string]any{
		"transactions": []any{
			map[string]any{
				"token":      f.UUID(),
				"type":       f.RandomString([]string{"authorization", "authorization.clearing", "refund"}),
				"state":      "COMPLETION",
				"amount":     f.Price(1, 5000),
				"card_token": f.UUID(),
				"merchant":   f.Company(),
				"created_at": g.now().UTC().Format(time.RFC3339),
			},
		},
	}
}

func (g *Generator) lithic() map[string]any {
	f := g.faker
	return map[string]any{
		"event_type": f.RandomString([]string{"card.created", "card_transaction.updated", "dispute.updated"}),
		"token":      f.UUID(),
		"created":    g.now().UTC().Format(time.RFC3339),
		"payload": map[string]any{
			"card_token": f.UUID(),
			"amount":     g.amountCents(),
			"merchant":   map[string]any{"descriptor": f.Company(), "mcc": f.DigitN(4)},
		},
	}
}

func (g *Generator) trolley() map[string]any {
	f := g.faker
	return map[string]any{
		"model":    "payment",
		"action":   f.RandomString([]string{"created", "updated", "deleted"}),
		"datetime": g.now().UTC().Format(time.RFC3339),
		"body": map[string]any{
			"payment": map[string]any{
				"id":            "P-" + f.LetterN(22),
				"status":        "processed",
				"amount":        fmt.Sprintf("%.2f", f.Price(1, 2000)),
				"currency":      "USD",
				"recipientName": f.Name(),
			},
		},
	}
}

func (g *Generator) solidfi() map[string]any {
	f := g.faker
	return map[string]any{
		"eventType": f.RandomString([]string{"card.activated", "transaction.created", "account.updated"}),
		"createdAt": g.now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"id":        f.UUID(),
			"accountId": f.UUID(),
			"amount":    fmt.Sprintf("%.2f", f.Price(1, 2000)),
			"email":     f.Email(),
		},
	}
}

func (g *Generator) treasuryPrime() map[string]any {
	f := g.faker
	id := "evt_" + f.LetterN(20)
	return map[string]any{
		"id":    id,
		"event": f.RandomString([]string{"ach.update", "book.update", "wire.update", "account.update"}),
		"url":   "https://api.treasuryprime.com/ach/ach_" + f.LetterN(20),
		"op":    "update",
	}
}
