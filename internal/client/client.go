// Package client provides a transport-agnostic interface to the crossing
// scheduler and a NATS request/reply implementation of it.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/crossing/internal/model"
)

// SchedulerClient is the interface every xing CLI command uses to talk to the
// scheduler. Failed responses come back as a *model.RemoteError, so
// errors.Is(err, model.ErrExpired) and friends work on the caller's side.
type SchedulerClient interface {
	Connect(ctx context.Context, agentID string, arrival time.Time) (*model.ConnectResponse, error)
	Notify(ctx context.Context, sessionID string, arrival time.Time) (*model.NotifyResponse, error)
	Reserve(ctx context.Context, req *model.ReserveRequest) (*model.ReserveResponse, error)
	Sessions(ctx context.Context, agentID string) ([]*model.Session, error)
	Roster(ctx context.Context, maxIdle time.Duration) ([]model.VehiclePresence, error)

	// PublishState sends one vehicle state sample. It does not wait for the
	// control envelope.
	PublishState(ctx context.Context, state *model.VehicleState) error

	Close() error
}
