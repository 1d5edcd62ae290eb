package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/crossing/internal/events"
	"github.com/alfredjeanlab/crossing/internal/model"
)

// DefaultTimeout bounds every request; an earlier ctx deadline wins.
const DefaultTimeout = 5 * time.Second

// NATSClient implements SchedulerClient over NATS request/reply.
type NATSClient struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// NewNATSClient connects to url. An empty prefix uses events.DefaultPrefix.
func NewNATSClient(url, prefix string) (*NATSClient, error) {
	nc, err := nats.Connect(url, nats.Name("xing"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	c := NewNATSClientConn(nc, prefix)
	c.owned = true
	return c, nil
}

// NewNATSClientConn wraps an existing connection. Close leaves it open.
func NewNATSClientConn(nc *nats.Conn, prefix string) *NATSClient {
	if prefix == "" {
		prefix = events.DefaultPrefix
	}
	return &NATSClient{conn: nc, prefix: prefix}
}

// Close closes the connection if the client opened it.
func (c *NATSClient) Close() error {
	if c.owned {
		c.conn.Close()
	}
	return nil
}

func (c *NATSClient) Connect(ctx context.Context, agentID string, arrival time.Time) (*model.ConnectResponse, error) {
	req := model.ConnectRequest{AgentID: agentID, ArrivalTime: model.FormatTime(arrival)}
	var resp model.ConnectResponse
	if err := c.request(ctx, events.TopicConnect, req, &resp, &resp.Response); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *NATSClient) Notify(ctx context.Context, sessionID string, arrival time.Time) (*model.NotifyResponse, error) {
	req := model.NotifyRequest{SessionID: sessionID, ArrivalTime: model.FormatTime(arrival)}
	var resp model.NotifyResponse
	if err := c.request(ctx, events.TopicNotify, req, &resp, &resp.Response); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *NATSClient) Reserve(ctx context.Context, req *model.ReserveRequest) (*model.ReserveResponse, error) {
	var resp model.ReserveResponse
	if err := c.request(ctx, events.TopicReserve, req, &resp, &resp.Response); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *NATSClient) Sessions(ctx context.Context, agentID string) ([]*model.Session, error) {
	var resp model.SessionsResponse
	if err := c.request(ctx, events.TopicSessions, model.SessionsRequest{AgentID: agentID}, &resp, &resp.Response); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *NATSClient) Roster(ctx context.Context, maxIdle time.Duration) ([]model.VehiclePresence, error) {
	var resp model.RosterResponse
	if err := c.request(ctx, events.TopicRoster, model.RosterRequest{MaxIdle: maxIdle.Seconds()}, &resp, &resp.Response); err != nil {
		return nil, err
	}
	return resp.Vehicles, nil
}

func (c *NATSClient) PublishState(ctx context.Context, state *model.VehicleState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := c.conn.Publish(events.Subject(c.prefix, events.TopicState), data); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return c.conn.FlushWithContext(ctx)
}

// request sends body to topic and decodes the reply into out. env must point
// at out's embedded Response; a failed response is returned as its error.
func (c *NATSClient) request(ctx context.Context, topic string, body, out any, env *model.Response) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	msg, err := c.conn.RequestWithContext(ctx, events.Subject(c.prefix, topic), data)
	if err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", topic, err)
	}
	return env.Err()
}
