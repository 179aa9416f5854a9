package chatlog

import "encoding/json"

// Element types written by MarshalJSON; message and userJoinedOrLeft match
// the server's snapshot element types.
const (
	ElementMessage          = "message"
	ElementUserJoinedOrLeft = "userJoinedOrLeft"
	ElementUnackedMessage   = "unackedMessage"
)

func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	return json.Marshal(struct {
		ElementType string `json:"elementType"`
		plain
	}{ElementMessage, plain(m)})
}

func (p Presence) MarshalJSON() ([]byte, error) {
	type plain Presence
	return json.Marshal(struct {
		ElementType string `json:"elementType"`
		plain
	}{ElementUserJoinedOrLeft, plain(p)})
}

func (p PendingSend) MarshalJSON() ([]byte, error) {
	type plain PendingSend
	return json.Marshal(struct {
		ElementType string `json:"elementType"`
		plain
	}{ElementUnackedMessage, plain(p)})
}
