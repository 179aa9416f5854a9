package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is returned by Decode for a msgType outside the protocol.
	ErrUnknownType = errors.New("protocol: unknown message type")
	// ErrMalformed is returned by Decode when a known message is missing
	// required fields or does not parse.
	ErrMalformed = errors.New("protocol: malformed message")
)

type envelope struct {
	MsgType string `json:"msgType"`
}

// Encode renders m as a JSON object with its msgType discriminator.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.MsgType(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("flatten %s: %w", m.MsgType(), err)
	}
	tag, _ := json.Marshal(m.MsgType())
	fields["msgType"] = tag
	return json.Marshal(fields)
}

// Decode parses a single message and validates the fields each message
// type cannot do without.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.MsgType == "" {
		return nil, fmt.Errorf("%w: missing msgType", ErrMalformed)
	}

	var m Message
	switch env.MsgType {
	case TypeAuthRequest:
		m = &AuthRequest{}
	case TypeGetUsersInChat:
		m = &GetUsersInChat{}
	case TypeGetChatLogElements:
		m = &GetChatLogElements{}
	case TypeClientToServerMessage:
		m = &ClientToServerMessage{}
	case TypeAuthResponse:
		m = &AuthResponse{}
	case TypeUsersInChat:
		m = &UsersInChat{}
	case TypeChatLogElements:
		m = &ChatLogElements{}
	case TypeUserJoinedOrLeft:
		m = &UserJoinedOrLeft{}
	case TypeMessageAck:
		m = &MessageAck{}
	case TypeServerToClientMessage:
		m = &ServerToClientMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.MsgType)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.MsgType, err)
	}
	if err := validate(m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.MsgType, err)
	}
	return deref(m), nil
}

func validate(m Message) error {
	switch v := m.(type) {
	case *AuthRequest:
		if v.Username == "" {
			return errors.New("empty username")
		}
	case *ClientToServerMessage:
		if v.ClientSideID == "" {
			return errors.New("empty clientSideId")
		}
	case *UsersInChat:
		for i, u := range v.Users {
			if u.Username == "" {
				return fmt.Errorf("users[%d]: empty username", i)
			}
		}
	case *UserJoinedOrLeft:
		if v.Username == "" {
			return errors.New("empty username")
		}
	case *MessageAck:
		if v.ClientSideID == "" {
			return errors.New("empty clientSideId")
		}
	}
	return nil
}

// deref hands out values so callers can switch on the plain struct types.
func deref(m Message) Message {
	switch v := m.(type) {
	case *AuthRequest:
		return *v
	case *GetUsersInChat:
		return *v
	case *GetChatLogElements:
		return *v
	case *ClientToServerMessage:
		return *v
	case *AuthResponse:
		return *v
	case *UsersInChat:
		return *v
	case *ChatLogElements:
		return *v
	case *UserJoinedOrLeft:
		return *v
	case *MessageAck:
		return *v
	case *ServerToClientMessage:
		return *v
	}
	return m
}
