// Package notifier delivers outgoing chat messages asynchronously.
//
// Messages are sharded by channel id over a fixed worker pool so that every
// channel sees its messages in enqueue order while different channels are
// delivered in parallel. A shared token bucket keeps the process under the
// chat platform's global rate limit.
//
// # Failures
//
// Delivery is best-effort. A failed send is retried RetryMax times with
// jittered exponential backoff (no retries by default), then dropped and
// reported on the event bus as notifier.failed.
package notifier
