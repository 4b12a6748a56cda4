package model

import "encoding/json"

// Client -> server events.
const (
	EventRegisterHost      = "register-host"
	EventRequestHost       = "request-host"
	EventReleaseHost       = "release-host"
	EventDenyHost          = "deny-host"
	EventCancelHostRequest = "cancel-host-request"
	EventGiveUpHost        = "give-up-host"
	EventModelTransform    = "model-transform"
	EventCameraUpdate      = "camera-update"
	EventResetAll          = "reset-all"
	EventUploadComplete    = "product-upload-complete"
	EventBrowseSelection   = "browse-selection"
	EventPointerToggle     = "host-pointer-toggle"
	EventPointerUpdate     = "host-pointer-update"
)

// Server -> client events.
const (
	EventConnected        = "connected"
	EventHostChanged      = "host-changed"
	EventTransferRequest  = "host-transfer-request"
	EventTransferDenied   = "transfer-denied"
	EventRequestCancelled = "host-request-cancelled"
)

// Uploader roles reported via the x-uploader-role header.
const (
	RoleHost   = "host"
	RoleViewer = "viewer"
)

// Envelope is the raw frame clients send over the realtime channel.
// Data stays opaque until the session layer decodes it per event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is an envelope stamped with its source connection.
// SRC is re-assigned by the server based on the websocket session.
type Inbound struct {
	SRC   string
	Event string
	Data  json.RawMessage
}

// Outbound is a frame on its way to one or more clients.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Asset describes one uploaded model part awaiting batch broadcast.
type Asset struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	ID     string `json:"id"`
	Sender string `json:"sender"`
}

// Connected tells a freshly upgraded client its connection id,
// which it must echo in the x-socket-id upload header.
type Connected struct {
	SocketID string `json:"socketId"`
}

// HostChanged announces the current host to everyone.
// HostSocketID is null while the role is unclaimed.
type HostChanged struct {
	HostSocketID *string `json:"hostSocketId"`
}

// TransferRequest is delivered to the current host only.
type TransferRequest struct {
	RequestID string `json:"requestId"`
	Requester string `json:"requester"`
}

// TransferDenied is delivered to the requester only.
type TransferDenied struct {
	RequestID string `json:"requestId"`
}

// RequestCancelled is delivered to the current host only.
type RequestCancelled struct {
	RequestID string `json:"requestId"`
}

type ModelTransform struct {
	CustomID string     `json:"customId"`
	Position [3]float64 `json:"position"`
	Rotation [3]float64 `json:"rotation"`
	Scale    [3]float64 `json:"scale"`
}

type CameraUpdate struct {
	Position [3]float64 `json:"position"`
	Rotation [3]float64 `json:"rotation"`
	Target   [3]float64 `json:"target"`
}

type PointerToggle struct {
	Active bool `json:"active"`
}

type PointerUpdate struct {
	Position [3]float64 `json:"position"`
}

// UploadComplete carries one atomic batch of uploaded parts.
// Parts is either []Asset (buffer flush) or the host's raw
// browse-selection payload relayed as-is.
type UploadComplete struct {
	Parts  any    `json:"parts"`
	Sender string `json:"sender"`
}

type Wire struct {
	RX chan Inbound
	TX chan Outbound
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Inbound),
		TX: make(chan Outbound),
	}
}
