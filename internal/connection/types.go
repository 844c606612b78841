package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrTokenTimeout  = errors.New("session token not received within timeout")
)

// State is a session's position in its connection lifecycle.
type State int32

const (
	StateIdle State = iota
	StateHandshaking
	StateAuthenticating
	StateLive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshaking:
		return "handshaking"
	case StateAuthenticating:
		return "authenticating"
	case StateLive:
		return "live"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL                string        // WebSocket URL (e.g., wss://ws.sixpence.ai/)
	Proxy              string        // Proxy URL ("" = direct)
	Origin             string        // Origin header (browser extension origin)
	UserAgent          string        // User-Agent header
	AcceptLanguage     string        // Accept-Language header
	InsecureSkipVerify bool          // Skip TLS certificate verification
	HandshakeTimeout   time.Duration // Max time for the opening handshake
	WriteTimeout       time.Duration // Write deadline for sends
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		InsecureSkipVerify: true,
		HandshakeTimeout:   30 * time.Second,
		WriteTimeout:       10 * time.Second,
	}
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Client            ClientConfig
	AuthTimeout       time.Duration // Max wait for the session token
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration // Fixed delay after every attempt
	RestartDelayMin   time.Duration // Random extra delay after a token timeout
	RestartDelayMax   time.Duration
	AuthCacheTTL      time.Duration // Signed login message reuse window
	MaxErrors         int
	ErrorWindow       time.Duration
	CountCommonErrors bool   // Feed common/expected errors to the tracker
	AuthMessage       string // Template with {address} and {timestamp}
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Client:            DefaultClientConfig(),
		AuthTimeout:       300 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ReconnectDelay:    2 * time.Second,
		RestartDelayMin:   5 * time.Second,
		RestartDelayMax:   30 * time.Second,
		AuthCacheTTL:      120 * time.Second,
		MaxErrors:         3,
		ErrorWindow:       120 * time.Second,
		CountCommonErrors: true,
		AuthMessage:       "Sign in to Sixpence extension\nWallet: {address}\nTimestamp: {timestamp}",
	}
}

// authRequest is the outbound extension_auth message.
type authRequest struct {
	Type string   `json:"type"`
	Data authData `json:"data"`
}

type authData struct {
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// heartbeat is the outbound extension_heartbeat message.
type heartbeat struct {
	Type       string `json:"type"`
	Token      string `json:"token"`
	Address    string `json:"address"`
	TaskEnable bool   `json:"taskEnable"`
}

// Outbound message types.
const (
	typeAuth      = "extension_auth"
	typeHeartbeat = "extension_heartbeat"
	typeUserMsg   = "extension_user_msg"
)
