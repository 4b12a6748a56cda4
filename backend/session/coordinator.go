package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/showkit/scenerelay/backend/model"
)

const defaultRequestDeadline = 30 * time.Second

// Broadcaster is the outbound side of the connection registry.
type Broadcaster interface {
	Broadcast(ctx context.Context, out model.Outbound)
	BroadcastExcept(ctx context.Context, out model.Outbound, src string)
	Send(ctx context.Context, dst string, out model.Outbound) bool
}

type pendingRequest struct {
	id        string
	requester string
	timer     *time.Timer
}

// Coordinator owns the host role and every pending transfer request,
// and gates scene-state relays on host identity. All handlers are
// serialized on one mutex, so each inbound event mutates state and
// emits its side effects atomically.
type Coordinator struct {
	logger  zerolog.Logger
	peers   Broadcaster
	uploads *Buffer

	// ctx backs sends triggered by deadline timers, which have no
	// originating request context.
	ctx      context.Context
	deadline time.Duration

	mx      sync.Mutex
	hostID  string
	pending map[string]*pendingRequest
}

type Config struct {
	Logger  *zerolog.Logger
	Peers   Broadcaster
	Uploads *Buffer

	// RequestDeadline overrides the 30s transfer auto-grant deadline.
	RequestDeadline time.Duration
}

func NewCoordinator(ctx context.Context, cfg Config) *Coordinator {
	deadline := cfg.RequestDeadline
	if deadline == 0 {
		deadline = defaultRequestDeadline
	}
	return &Coordinator{
		logger:   cfg.Logger.With().Str("component", "coordinator").Logger(),
		peers:    cfg.Peers,
		uploads:  cfg.Uploads,
		ctx:      ctx,
		deadline: deadline,
		pending:  make(map[string]*pendingRequest),
	}
}

// Host returns the current host connection id, empty when unclaimed.
func (c *Coordinator) Host() string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.hostID
}

// Handle decodes one inbound frame and runs its handler. Malformed
// and unknown events are dropped without feedback to the sender.
func (c *Coordinator) Handle(ctx context.Context, in model.Inbound) {
	cmd, err := decode(in)
	if err != nil {
		c.logger.Debug().Err(err).Str("src", in.SRC).Msg("dropping event")
		return
	}

	switch m := cmd.(type) {
	case registerHost:
		c.RegisterHost(ctx, in.SRC)
	case requestHost:
		c.RequestHost(ctx, in.SRC)
	case releaseHost:
		c.ReleaseHost(ctx, m.RequestID)
	case denyHost:
		c.DenyHost(ctx, m.RequestID)
	case cancelHostRequest:
		c.CancelRequests(ctx, in.SRC)
	case giveUpHost:
		c.GiveUpHost(ctx, in.SRC)
	case relayHostState:
		c.relayFromHost(ctx, in.SRC, m.event, m.data)
	case relayPointer:
		c.relayAny(ctx, in.SRC, m.event, m.data)
	case uploadComplete:
		c.FlushUploads(ctx, in.SRC)
	case browseSelection:
		c.BrowseSelection(ctx, in.SRC, m.Parts)
	}
}

// RegisterHost is an assertion of the role, not a request: the
// caller becomes host unconditionally.
func (c *Coordinator) RegisterHost(ctx context.Context, conn string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.setHostLocked(ctx, conn)
}

// RequestHost claims the role immediately when it is unclaimed,
// otherwise opens a pending transfer request against the current
// host. A requester with a request already outstanding reuses it.
func (c *Coordinator) RequestHost(ctx context.Context, conn string) {
	c.mx.Lock()
	defer c.mx.Unlock()

	switch {
	case c.hostID == "":
		c.setHostLocked(ctx, conn)
	case c.hostID == conn:
		// already host
	default:
		for _, p := range c.pending {
			if p.requester == conn {
				return
			}
		}
		p := &pendingRequest{id: uuid.NewString(), requester: conn}
		p.timer = time.AfterFunc(c.deadline, func() { c.autoGrant(p.id) })
		c.pending[p.id] = p

		c.peers.Send(ctx, c.hostID, model.Outbound{
			Event: model.EventTransferRequest,
			Data:  model.TransferRequest{RequestID: p.id, Requester: conn},
		})
		c.logger.Debug().
			Str("request", p.id).
			Str("requester", conn).
			Str("host", c.hostID).
			Msg("transfer request opened")
	}
}

// autoGrant fires when a transfer request's deadline elapses without
// an explicit grant or denial. A silent host does not get to block
// the transfer forever.
func (c *Coordinator) autoGrant(requestID string) {
	c.mx.Lock()
	defer c.mx.Unlock()

	p, ok := c.pending[requestID]
	if !ok {
		// resolved before the deadline, stale fire
		return
	}
	delete(c.pending, requestID)
	c.logger.Info().
		Str("request", requestID).
		Str("requester", p.requester).
		Msg("transfer deadline elapsed, auto-granting")
	c.setHostLocked(c.ctx, p.requester)
}

// ReleaseHost is the explicit-approval path: the pending requester
// becomes host. Unknown request ids are a benign race (already timed
// out or cancelled) and are ignored.
func (c *Coordinator) ReleaseHost(ctx context.Context, requestID string) {
	c.mx.Lock()
	defer c.mx.Unlock()

	p, ok := c.pending[requestID]
	if !ok {
		c.logger.Debug().Str("request", requestID).Msg("release for unknown request")
		return
	}
	p.timer.Stop()
	delete(c.pending, requestID)
	c.setHostLocked(ctx, p.requester)
}

// DenyHost rejects a pending request. Only the requester is told.
func (c *Coordinator) DenyHost(ctx context.Context, requestID string) {
	c.mx.Lock()
	defer c.mx.Unlock()

	p, ok := c.pending[requestID]
	if !ok {
		c.logger.Debug().Str("request", requestID).Msg("deny for unknown request")
		return
	}
	p.timer.Stop()
	delete(c.pending, requestID)

	c.peers.Send(ctx, p.requester, model.Outbound{
		Event: model.EventTransferDenied,
		Data:  model.TransferDenied{RequestID: requestID},
	})
}

// CancelRequests withdraws every pending request opened by conn and
// tells the current host about each withdrawal.
func (c *Coordinator) CancelRequests(ctx context.Context, conn string) {
	c.mx.Lock()
	defer c.mx.Unlock()

	for id, p := range c.pending {
		if p.requester != conn {
			continue
		}
		p.timer.Stop()
		delete(c.pending, id)

		if c.hostID != "" {
			c.peers.Send(ctx, c.hostID, model.Outbound{
				Event: model.EventRequestCancelled,
				Data:  model.RequestCancelled{RequestID: id},
			})
		}
	}
}

// GiveUpHost releases the role voluntarily. No-op for non-hosts.
func (c *Coordinator) GiveUpHost(ctx context.Context, conn string) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.hostID != conn {
		return
	}
	c.setHostLocked(ctx, "")
}

// Disconnect runs the departure side effects: pending requests by
// conn die silently, the host role is vacated if conn held it, and
// any unflushed upload batch is discarded.
func (c *Coordinator) Disconnect(ctx context.Context, conn string) {
	c.mx.Lock()
	for id, p := range c.pending {
		if p.requester == conn {
			p.timer.Stop()
			delete(c.pending, id)
		}
	}
	if c.hostID == conn {
		c.setHostLocked(ctx, "")
	}
	c.mx.Unlock()

	c.uploads.Drop(conn)
}

// FlushUploads drains the sender's upload batch and broadcasts it to
// everyone as one product-upload-complete event. An empty batch is a
// no-op.
func (c *Coordinator) FlushUploads(ctx context.Context, src string) {
	parts := c.uploads.Flush(src)
	if len(parts) == 0 {
		c.logger.Debug().Str("src", src).Msg("upload complete with empty buffer")
		return
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	c.peers.Broadcast(ctx, model.Outbound{
		Event: model.EventUploadComplete,
		Data:  model.UploadComplete{Parts: parts, Sender: src},
	})
	c.logger.Info().Str("src", src).Int("parts", len(parts)).Msg("upload batch broadcast")
}

// BrowseSelection broadcasts a host's pre-stored part selection as a
// product-upload-complete event, bypassing the upload buffer.
func (c *Coordinator) BrowseSelection(ctx context.Context, src string, parts json.RawMessage) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if src != c.hostID {
		c.logger.Debug().Str("src", src).Msg("dropping browse selection from non-host")
		return
	}
	c.peers.Broadcast(ctx, model.Outbound{
		Event: model.EventUploadComplete,
		Data:  model.UploadComplete{Parts: parts, Sender: src},
	})
}

func (c *Coordinator) relayFromHost(ctx context.Context, src, event string, data json.RawMessage) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if src != c.hostID {
		// silent drop, non-hosts are not told their mutation was ignored
		c.logger.Debug().Str("src", src).Str("event", event).Msg("dropping state event from non-host")
		return
	}
	c.peers.BroadcastExcept(ctx, model.Outbound{Event: event, Data: data}, src)
}

func (c *Coordinator) relayAny(ctx context.Context, src, event string, data json.RawMessage) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.peers.BroadcastExcept(ctx, model.Outbound{Event: event, Data: data}, src)
}

// setHostLocked updates the role and announces it to everyone.
// Callers hold c.mx.
func (c *Coordinator) setHostLocked(ctx context.Context, conn string) {
	c.hostID = conn

	var hostID *string
	if conn != "" {
		hostID = &conn
	}
	c.peers.Broadcast(ctx, model.Outbound{
		Event: model.EventHostChanged,
		Data:  model.HostChanged{HostSocketID: hostID},
	})
	c.logger.Info().Str("host", conn).Msg("host changed")
}
