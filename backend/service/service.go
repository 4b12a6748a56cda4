package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/showkit/scenerelay/backend/model"
)

var (
	ErrConnect = errors.New("unable to connect")
)

type (
	Registry interface {
		Register(id string, wire model.Wire)
		Unregister(id string)
		Send(ctx context.Context, dst string, out model.Outbound) bool
	}

	Coordinator interface {
		Handle(ctx context.Context, in model.Inbound)
		Disconnect(ctx context.Context, conn string)
	}

	Service struct {
		peers  Registry
		coord  Coordinator
		logger zerolog.Logger
	}

	Config struct {
		Registry    Registry
		Coordinator Coordinator
		Logger      *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		peers:  cfg.Registry,
		coord:  cfg.Coordinator,
		logger: cfg.Logger.With().Str("component", "service").Logger(),
	}
}

// CreateSession registers the connection's wire, greets the client
// with its id, and starts consuming its inbound events until ctx is
// done or the wire's RX side is closed.
func (svc *Service) CreateSession(ctx context.Context, conn string, wire model.Wire) error {
	if conn == "" {
		return ErrConnect
	}
	svc.peers.Register(conn, wire)
	svc.peers.Send(ctx, conn, model.Outbound{
		Event: model.EventConnected,
		Data:  model.Connected{SocketID: conn},
	})
	svc.logger.Debug().Str("conn", conn).Msg("session connected")

	go svc.consume(ctx, conn, wire.RX)
	return nil
}

// DeleteSession unregisters the connection and runs the protocol's
// disconnect side effects.
func (svc *Service) DeleteSession(conn string) {
	svc.peers.Unregister(conn)
	svc.coord.Disconnect(context.Background(), conn)
	svc.logger.Debug().Str("conn", conn).Msg("session deleted")
}

func (svc *Service) consume(ctx context.Context, conn string, rx <-chan model.Inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-rx:
			if !ok {
				return
			}
			if in.SRC != conn {
				// transport must have stamped the source already
				svc.logger.Error().
					Str("conn", conn).
					Str("src", in.SRC).
					Msg("event with foreign src")
				continue
			}
			svc.coord.Handle(ctx, in)
		}
	}
}
