// Package payments is the webhook boundary for the payment provider.
//
// The provider's wire scheme is implemented natively: signed webhook
// headers are verified with HMAC-SHA256 over "<t>.<body>" in constant
// time, events are deduplicated on their id, and transaction state
// moves through guarded transitions (pending -> settled | failed |
// refunded). Reconciliation converges local state against the
// provider for anything a webhook missed.
package payments
