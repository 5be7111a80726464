package system

import "context"

// Service is a lifecycle-managed component. Background workers such as the
// scheduler and the HTTP server implement it so the manager can start and
// stop them in a fixed order.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService occupies a name in the manager without doing any work.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string                { return n.ServiceName }
func (n NoopService) Start(context.Context) error { return nil }
func (n NoopService) Stop(context.Context) error  { return nil }
