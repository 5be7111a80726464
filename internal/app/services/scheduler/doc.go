// Package scheduler runs the storefront's recurring background tasks on cron
// schedules and exposes controls to start, stop and trigger them by name.
package scheduler
