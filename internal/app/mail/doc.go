// Package mail delivers storefront notifications. It defines the Sender
// capability consumed by the abandonment processor and the scheduler health
// check, an SMTP implementation with retry and backoff, and a log-only
// implementation used when no transport is configured.
package mail
