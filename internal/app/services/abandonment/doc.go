// Package abandonment tracks carts that were filled but not purchased and
// sends up to three reminder emails per cart.
//
// The Tracker is called on every cart mutation and at checkout. The
// Processor is driven by the scheduler: it selects records due for their next
// reminder, sends it, and advances the record with a compare-and-set update so
// a cart change that raced the send wins. CleanupOldRecords removes resolved
// records once they fall out of the retention window.
package abandonment
