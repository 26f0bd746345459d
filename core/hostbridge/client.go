package hostbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filegate/filegate/core/gate"
	"github.com/filegate/filegate/core/infra/bus"
)

const (
	senderID       = "filegate-core"
	defaultTimeout = 5 * time.Second
)

// Requester is the request/reply subset of the bus the host client needs.
type Requester interface {
	Request(ctx context.Context, subject string, env *bus.Envelope) (*bus.Envelope, error)
}

// HostClient implements gate.Host over NATS request/reply to the host
// download manager adapter.
type HostClient struct {
	bus     Requester
	timeout time.Duration
}

func NewHostClient(b Requester) *HostClient {
	return &HostClient{bus: b, timeout: defaultTimeout}
}

type idRequest struct {
	ID int64 `json:"id"`
}

type searchReply struct {
	Items []gate.DownloadItem `json:"items"`
}

type opReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Search returns the host's view of one download, or nil when the host no
// longer knows the id.
func (c *HostClient) Search(ctx context.Context, id int64) (*gate.DownloadItem, error) {
	reply, err := c.request(ctx, bus.SubjectHostSearch, "download.search", id)
	if err != nil {
		return nil, err
	}
	var res searchReply
	if err := reply.Decode(&res); err != nil {
		return nil, fmt.Errorf("decode search reply: %w", err)
	}
	if len(res.Items) == 0 {
		return nil, nil
	}
	item := res.Items[0]
	return &item, nil
}

// Cancel stops an in-progress download.
func (c *HostClient) Cancel(ctx context.Context, id int64) error {
	return c.op(ctx, bus.SubjectHostCancel, "download.cancel", id)
}

// RemoveFile deletes the downloaded file from disk.
func (c *HostClient) RemoveFile(ctx context.Context, id int64) error {
	return c.op(ctx, bus.SubjectHostRemoveFile, "download.removefile", id)
}

// Erase removes the download record from host history.
func (c *HostClient) Erase(ctx context.Context, id int64) error {
	return c.op(ctx, bus.SubjectHostErase, "download.erase", id)
}

func (c *HostClient) op(ctx context.Context, subject, kind string, id int64) error {
	reply, err := c.request(ctx, subject, kind, id)
	if err != nil {
		return err
	}
	var res opReply
	if err := reply.Decode(&res); err != nil {
		return fmt.Errorf("decode %s reply: %w", kind, err)
	}
	if !res.OK {
		if res.Error == "" {
			res.Error = "host operation failed"
		}
		return errors.New(res.Error)
	}
	return nil
}

func (c *HostClient) request(ctx context.Context, subject, kind string, id int64) (*bus.Envelope, error) {
	env, err := bus.NewEnvelope(senderID, kind, idRequest{ID: id})
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	reply, err := c.bus.Request(cctx, subject, env)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", kind, err)
	}
	return reply, nil
}
