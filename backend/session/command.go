package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/showkit/scenerelay/backend/model"
)

var errUnknownEvent = errors.New("unknown event")

// command is the closed set of things a client can ask the
// coordinator to do. Envelopes are decoded into exactly one of
// these kinds before any state is touched.
type command interface{ isCommand() }

type registerHost struct{}

type requestHost struct{}

type releaseHost struct {
	RequestID string `json:"requestId"`
}

type denyHost struct {
	RequestID string `json:"requestId"`
}

type cancelHostRequest struct{}

type giveUpHost struct{}

// relayHostState is a verbatim, host-gated scene mutation
// (model-transform, camera-update, reset-all).
type relayHostState struct {
	event string
	data  json.RawMessage
}

// relayPointer is a verbatim pointer relay, deliberately not
// host-gated.
type relayPointer struct {
	event string
	data  json.RawMessage
}

type uploadComplete struct{}

type browseSelection struct {
	Parts json.RawMessage `json:"parts"`
}

func (registerHost) isCommand()      {}
func (requestHost) isCommand()       {}
func (releaseHost) isCommand()       {}
func (denyHost) isCommand()          {}
func (cancelHostRequest) isCommand() {}
func (giveUpHost) isCommand()        {}
func (relayHostState) isCommand()    {}
func (relayPointer) isCommand()      {}
func (uploadComplete) isCommand()    {}
func (browseSelection) isCommand()   {}

func decode(in model.Inbound) (command, error) {
	switch in.Event {
	case model.EventRegisterHost:
		return registerHost{}, nil
	case model.EventRequestHost:
		return requestHost{}, nil
	case model.EventReleaseHost:
		var cmd releaseHost
		if err := json.Unmarshal(in.Data, &cmd); err != nil {
			return nil, fmt.Errorf("decode %s: %w", in.Event, err)
		}
		return cmd, nil
	case model.EventDenyHost:
		var cmd denyHost
		if err := json.Unmarshal(in.Data, &cmd); err != nil {
			return nil, fmt.Errorf("decode %s: %w", in.Event, err)
		}
		return cmd, nil
	case model.EventCancelHostRequest:
		return cancelHostRequest{}, nil
	case model.EventGiveUpHost:
		return giveUpHost{}, nil
	case model.EventModelTransform, model.EventCameraUpdate, model.EventResetAll:
		return relayHostState{event: in.Event, data: in.Data}, nil
	case model.EventPointerToggle, model.EventPointerUpdate:
		return relayPointer{event: in.Event, data: in.Data}, nil
	case model.EventUploadComplete:
		return uploadComplete{}, nil
	case model.EventBrowseSelection:
		var cmd browseSelection
		if err := json.Unmarshal(in.Data, &cmd); err != nil {
			return nil, fmt.Errorf("decode %s: %w", in.Event, err)
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownEvent, in.Event)
	}
}
