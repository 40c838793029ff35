package messaging

import "strings"

// Subject layout for webhook notifications: {domain}.{action}.{provider}
const (
	// SubjectWebhooksReceived prefixes notifications for persisted events.
	SubjectWebhooksReceived = "webhooks.received"

	// SubjectWebhooksReceivedAll matches every provider.
	SubjectWebhooksReceivedAll = SubjectWebhooksReceived + ".>"

	// HeaderMsgID is the JetStream de-duplication header.
	HeaderMsgID = "Nats-Msg-Id"
)

// WebhookReceivedSubject returns the subject for a provider, e.g. webhooks.received.stripe.
// Characters that are not valid in a NATS token are replaced with '_'.
func WebhookReceivedSubject(provider string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, provider)
	if token == "" {
		token = "_"
	}
	return SubjectWebhooksReceived + "." + token
}
