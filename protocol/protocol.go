// Package protocol defines the JSON messages exchanged between a chat client
// and server. Every message is a single JSON object whose msgType field
// selects the concrete shape.
package protocol

// Message type discriminators carried in the msgType field.
const (
	TypeAuthRequest           = "authRequest"
	TypeGetUsersInChat        = "getUsersInChat"
	TypeGetChatLogElements    = "getChatLogElements"
	TypeClientToServerMessage = "clientToServerMessage"

	TypeAuthResponse          = "authResponse"
	TypeUsersInChat           = "usersInChat"
	TypeChatLogElements       = "chatLogElements"
	TypeUserJoinedOrLeft      = "userJoinedOrLeft"
	TypeMessageAck            = "messageAck"
	TypeServerToClientMessage = "serverToClientMessage"
)

// Element types used inside chatLogElements snapshots.
const (
	ElementMessage          = "message"
	ElementUserJoinedOrLeft = "userJoinedOrLeft"
)

// Message is implemented by every protocol message.
type Message interface {
	MsgType() string
}

// AuthRequest asks the server to authenticate the connection.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// GetUsersInChat requests a usersInChat snapshot.
type GetUsersInChat struct{}

// GetChatLogElements requests a chatLogElements snapshot.
type GetChatLogElements struct{}

// ClientToServerMessage is a chat line sent by the client. ClientSideID
// correlates it with the messageAck that confirms it.
type ClientToServerMessage struct {
	ClientSideID string `json:"clientSideId"`
	Text         string `json:"text"`
}

// AuthResponse answers an AuthRequest.
type AuthResponse struct {
	Success bool `json:"success"`
}

// User is one roster row of a usersInChat snapshot.
type User struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// UsersInChat is the full roster snapshot.
type UsersInChat struct {
	Users []User `json:"users"`
}

// LogElement is one entry of a chatLogElements snapshot. Joined is only
// meaningful for ElementUserJoinedOrLeft, Text only for ElementMessage.
type LogElement struct {
	ElementType string `json:"elementType"`
	SeqN        int64  `json:"seqN"`
	Username    string `json:"username"`
	Timestamp   string `json:"timestamp"`
	Text        string `json:"text,omitempty"`
	Joined      bool   `json:"joined,omitempty"`
}

// ChatLogElements is the full log snapshot, ordered by seqN.
type ChatLogElements struct {
	Elements []LogElement `json:"elements"`
}

// UserJoinedOrLeft announces a presence change and is also a log entry.
type UserJoinedOrLeft struct {
	SeqN      int64  `json:"seqN"`
	Username  string `json:"username"`
	Joined    bool   `json:"joined"`
	Timestamp string `json:"timestamp"`
}

// MessageAck confirms a ClientToServerMessage and assigns its seqN.
type MessageAck struct {
	ClientSideID string `json:"clientSideId"`
	SeqN         int64  `json:"seqN"`
	Timestamp    string `json:"timestamp"`
}

// ServerToClientMessage is a confirmed chat line from another participant.
type ServerToClientMessage struct {
	SeqN      int64  `json:"seqN"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

func (AuthRequest) MsgType() string           { return TypeAuthRequest }
func (GetUsersInChat) MsgType() string        { return TypeGetUsersInChat }
func (GetChatLogElements) MsgType() string    { return TypeGetChatLogElements }
func (ClientToServerMessage) MsgType() string { return TypeClientToServerMessage }
func (AuthResponse) MsgType() string          { return TypeAuthResponse }
func (UsersInChat) MsgType() string           { return TypeUsersInChat }
func (ChatLogElements) MsgType() string       { return TypeChatLogElements }
func (UserJoinedOrLeft) MsgType() string      { return TypeUserJoinedOrLeft }
func (MessageAck) MsgType() string            { return TypeMessageAck }
func (ServerToClientMessage) MsgType() string { return TypeServerToClientMessage }
