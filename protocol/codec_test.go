package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestEncodeAddsMsgType(t *testing.T) {
	data, err := Encode(AuthRequest{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{"msgType": "authRequest", "username": "alice", "password": "pw"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("encoded = %v, want %v", got, want)
	}
}

func TestEncodeEmptyRequest(t *testing.T) {
	data, err := Encode(GetChatLogElements{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != `{"msgType":"getChatLogElements"}` {
		t.Fatalf("encoded = %s", data)
	}
}

func TestDecodeServerMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "auth response",
			raw:  `{"msgType":"authResponse","success":true}`,
			want: AuthResponse{Success: true},
		},
		{
			name: "users in chat",
			raw:  `{"msgType":"usersInChat","users":[{"username":"bob","online":true},{"username":"carol","online":false}]}`,
			want: UsersInChat{Users: []User{{Username: "bob", Online: true}, {Username: "carol"}}},
		},
		{
			name: "chat log elements",
			raw: `{"msgType":"chatLogElements","elements":[` +
				`{"elementType":"userJoinedOrLeft","seqN":1,"username":"bob","timestamp":"t1","joined":true},` +
				`{"elementType":"message","seqN":2,"username":"bob","timestamp":"t2","text":"hey"}]}`,
			want: ChatLogElements{Elements: []LogElement{
				{ElementType: ElementUserJoinedOrLeft, SeqN: 1, Username: "bob", Timestamp: "t1", Joined: true},
				{ElementType: ElementMessage, SeqN: 2, Username: "bob", Timestamp: "t2", Text: "hey"},
			}},
		},
		{
			name: "user joined or left",
			raw:  `{"msgType":"userJoinedOrLeft","seqN":4,"username":"bob","joined":false,"timestamp":"t4"}`,
			want: UserJoinedOrLeft{SeqN: 4, Username: "bob", Timestamp: "t4"},
		},
		{
			name: "message ack",
			raw:  `{"msgType":"messageAck","clientSideId":"X","seqN":9,"timestamp":"t9"}`,
			want: MessageAck{ClientSideID: "X", SeqN: 9, Timestamp: "t9"},
		},
		{
			name: "server to client message",
			raw:  `{"msgType":"serverToClientMessage","seqN":2,"username":"bob","timestamp":"t2","text":"hi"}`,
			want: ServerToClientMessage{SeqN: 2, Username: "bob", Timestamp: "t2", Text: "hi"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Decode = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeRoundTripsClientMessages(t *testing.T) {
	for _, m := range []Message{
		AuthRequest{Username: "alice", Password: "pw"},
		GetUsersInChat{},
		GetChatLogElements{},
		ClientToServerMessage{ClientSideID: "id-1", Text: "hello"},
	} {
		data, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode(%T): %v", m, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s): %v", data, err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("Decode(%s) = %#v, want %#v", data, got, m)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `{nope`, ErrMalformed},
		{"missing tag", `{"success":true}`, ErrMalformed},
		{"unknown tag", `{"msgType":"typing","username":"bob"}`, ErrUnknownType},
		{"wrong field type", `{"msgType":"messageAck","clientSideId":"X","seqN":"nine"}`, ErrMalformed},
		{"ack without id", `{"msgType":"messageAck","seqN":3,"timestamp":"t"}`, ErrMalformed},
		{"roster row without name", `{"msgType":"usersInChat","users":[{"online":true}]}`, ErrMalformed},
		{"presence without name", `{"msgType":"userJoinedOrLeft","seqN":1,"joined":true}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}
