package connection

import (
	"encoding/json"
	"fmt"
)

// Inbound is a decoded server message: AuthAck, UserUpdate or Unknown.
type Inbound interface {
	inbound()
}

// AuthAck carries the session token issued after extension_auth.
type AuthAck struct {
	Token string
}

// UserUpdate carries the account's current point balances.
type UserUpdate struct {
	DailyPoints float64
	TotalPoints float64
}

// Unknown is any other message type. Raw holds the full payload.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (AuthAck) inbound()    {}
func (UserUpdate) inbound() {}
func (Unknown) inbound()    {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type authAckData struct {
	Token string `json:"token"`
}

type userMsgData struct {
	CurrentDayPoints float64 `json:"currentDayPoints"`
	CurrentPoints    float64 `json:"currentPoints"`
}

// Decode parses one text frame.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case typeAuth:
		var d authAckData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if d.Token == "" {
			return nil, fmt.Errorf("decode %s: empty token", env.Type)
		}
		return AuthAck{Token: d.Token}, nil

	case typeUserMsg:
		var d userMsgData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return UserUpdate{DailyPoints: d.CurrentDayPoints, TotalPoints: d.CurrentPoints}, nil

	default:
		return Unknown{Type: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
