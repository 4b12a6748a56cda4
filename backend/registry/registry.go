package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/showkit/scenerelay/backend/model"
)

const (
	defaultSendTimeout = time.Second
)

// Registry tracks every live connection's wire and fans outbound
// frames into them. It holds no protocol state, only routing.
type Registry struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	wires  map[string]model.Wire
}

func New(logger *zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "registry").Logger(),
		mx:     &sync.RWMutex{},
		wires:  make(map[string]model.Wire),
	}
}

func (rg *Registry) Register(id string, wire model.Wire) {
	rg.mx.Lock()
	rg.wires[id] = wire
	rg.mx.Unlock()
	rg.logger.Debug().Str("conn", id).Msg("connection registered")
}

func (rg *Registry) Unregister(id string) {
	rg.mx.Lock()
	delete(rg.wires, id)
	rg.mx.Unlock()
	rg.logger.Debug().Str("conn", id).Msg("connection unregistered")
}

func (rg *Registry) Size() int {
	rg.mx.RLock()
	defer rg.mx.RUnlock()
	return len(rg.wires)
}

// Broadcast delivers out to every connection.
func (rg *Registry) Broadcast(ctx context.Context, out model.Outbound) {
	rg.fanOut(ctx, out, "")
}

// BroadcastExcept delivers out to every connection other than src.
func (rg *Registry) BroadcastExcept(ctx context.Context, out model.Outbound, src string) {
	rg.fanOut(ctx, out, src)
}

// Send delivers out to a single connection. Returns false if the
// destination is unknown or did not accept the frame in time.
func (rg *Registry) Send(ctx context.Context, dst string, out model.Outbound) bool {
	rg.mx.RLock()
	wire, ok := rg.wires[dst]
	rg.mx.RUnlock()

	if !ok {
		rg.logger.Debug().
			Str("dst", dst).
			Str("event", out.Event).
			Msg("cannot send, dst not found")
		return false
	}
	sent, _ := rg.push(ctx, dst, wire.TX, out)
	return sent
}

func (rg *Registry) fanOut(ctx context.Context, out model.Outbound, skip string) {
	rg.mx.RLock()
	targets := make(map[string]model.Wire, len(rg.wires))
	for id, wire := range rg.wires {
		if id != skip {
			targets[id] = wire
		}
	}
	rg.mx.RUnlock()

	var sent bool
	for id, wire := range targets {
		ok, canceled := rg.push(ctx, id, wire.TX, out)
		if canceled {
			break
		}
		if ok {
			sent = true
		}
	}
	if !sent {
		rg.logger.Debug().
			Str("event", out.Event).
			Str("skip", skip).
			Msg("broadcast did not reach anyone")
	}
}

func (rg *Registry) push(ctx context.Context, dst string, tx chan<- model.Outbound, out model.Outbound) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(defaultSendTimeout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		rg.logger.Error().Str("dst", dst).Str("event", out.Event).Msg("dead endpoint")
	case tx <- out:
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
