// Package app composes the storefront process.
//
// Application wires the storage backend, the shop services (catalog, carts,
// orders, wishlists, coupons, users), the abandoned cart tracker and
// reminder processor, and the cron scheduler that drives the processor. It
// owns their lifecycle through a system.Manager: services start in
// registration order and stop in reverse.
//
// Layout:
//
//	internal/app/
//	├── application.go   # wiring and lifecycle
//	├── core/service/    # typed service errors
//	├── domain/          # plain data models and their rules
//	├── storage/         # store interfaces, memory and postgres backends
//	├── services/        # business logic, one package per concern
//	├── mail/            # SMTP and log senders
//	├── metrics/         # prometheus collectors
//	├── system/          # service lifecycle manager
//	└── httpapi/         # JSON/HTTP routes and middleware
//
// Handlers never reach storage directly; they go through the services held
// by Application.
package app
