package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/showkit/scenerelay/backend/model"
)

// State mirrors the role view every participant derives from the
// relay's broadcasts. The host flag is re-derived in full from each
// host-changed event rather than patched incrementally, so a client
// can never drift from the server's view.
type State struct {
	mx       sync.Mutex
	socketID string
	hostID   string
	// requested marks an outbound host request awaiting an answer;
	// any host-changed or denial settles it.
	requested bool
}

func NewState() *State {
	return &State{}
}

// Apply folds one server event into the mirrored state. Events the
// mirror does not care about (scene relays, pointer updates) pass
// through untouched.
func (s *State) Apply(event string, data json.RawMessage) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	switch event {
	case model.EventConnected:
		var c model.Connected
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("apply %s: %w", event, err)
		}
		s.socketID = c.SocketID

	case model.EventHostChanged:
		var hc model.HostChanged
		if err := json.Unmarshal(data, &hc); err != nil {
			return fmt.Errorf("apply %s: %w", event, err)
		}
		if hc.HostSocketID == nil {
			s.hostID = ""
		} else {
			s.hostID = *hc.HostSocketID
		}
		s.requested = false

	case model.EventTransferDenied:
		s.requested = false
	}
	return nil
}

// MarkRequested records that this participant sent request-host and
// is waiting for an outcome.
func (s *State) MarkRequested() {
	s.mx.Lock()
	s.requested = true
	s.mx.Unlock()
}

func (s *State) SocketID() string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.socketID
}

func (s *State) HostID() string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.hostID
}

// IsHost is true iff the last host-changed broadcast named this
// participant's own socket id.
func (s *State) IsHost() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.socketID != "" && s.hostID == s.socketID
}

func (s *State) RequestPending() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.requested
}
