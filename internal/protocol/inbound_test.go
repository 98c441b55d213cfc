package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		want        Inbound
		wantParse   bool
		wantUnknown bool
	}{
		{
			name: "Typing start",
			raw:  `{"type":"typing","conversationId":"c1","data":{"isTyping":true}}`,
			want: TypingFrame{ConversationID: "c1", IsTyping: true},
		},
		{
			name: "Typing stop",
			raw:  `{"type":"typing","conversationId":"c1","data":{"isTyping":false}}`,
			want: TypingFrame{ConversationID: "c1", IsTyping: false},
		},
		{
			name: "Read",
			raw:  `{"type":"read","conversationId":"c2","data":{}}`,
			want: ReadFrame{ConversationID: "c2"},
		},
		{
			name: "Join without data",
			raw:  `{"type":"join","conversationId":"c3"}`,
			want: JoinFrame{ConversationID: "c3"},
		},
		{
			name: "Leave",
			raw:  `{"type":"leave","conversationId":" c4 "}`,
			want: LeaveFrame{ConversationID: "c4"},
		},
		{
			name:      "Malformed JSON",
			raw:       `{"type":`,
			wantParse: true,
		},
		{
			name:      "Missing type",
			raw:       `{"conversationId":"c1"}`,
			wantParse: true,
		},
		{
			name:      "Missing conversation",
			raw:       `{"type":"read"}`,
			wantParse: true,
		},
		{
			name:      "Typing without isTyping",
			raw:       `{"type":"typing","conversationId":"c1","data":{}}`,
			wantParse: true,
		},
		{
			name:      "Typing with wrong data shape",
			raw:       `{"type":"typing","conversationId":"c1","data":{"isTyping":"yes"}}`,
			wantParse: true,
		},
		{
			name:        "Unknown type",
			raw:         `{"type":"dance","conversationId":"c1"}`,
			wantUnknown: true,
		},
		{
			name:        "Outbound-only type is unknown inbound",
			raw:         `{"type":"message","conversationId":"c1"}`,
			wantUnknown: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInbound([]byte(tt.raw))

			var pe *ParseError
			var ue *UnknownTypeError
			switch {
			case tt.wantParse:
				if !errors.As(err, &pe) {
					t.Fatalf("ParseInbound(%s) error = %v; want *ParseError", tt.raw, err)
				}
			case tt.wantUnknown:
				if !errors.As(err, &ue) {
					t.Fatalf("ParseInbound(%s) error = %v; want *UnknownTypeError", tt.raw, err)
				}
			default:
				if err != nil {
					t.Fatalf("ParseInbound(%s) unexpected error: %v", tt.raw, err)
				}
				if got != tt.want {
					t.Errorf("ParseInbound(%s) = %#v; want %#v", tt.raw, got, tt.want)
				}
			}
		})
	}
}

func TestErrorFrameShape(t *testing.T) {
	raw, err := json.Marshal(Error(CodeInvalidMessage, "bad frame"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Type  string `json:"type"`
		Error string `json:"error"`
		Data  struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Type != "error" || decoded.Data.Code != "INVALID_MESSAGE" || decoded.Error != "bad frame" {
		t.Errorf("unexpected error frame: %s", raw)
	}
}

func TestConnectedNeverNullConversations(t *testing.T) {
	raw, _ := json.Marshal(Connected("u1", nil))
	want := `{"type":"connected","data":{"userId":"u1","conversationIds":[]}}`
	if string(raw) != want {
		t.Errorf("Connected = %s; want %s", raw, want)
	}
}

func TestReadFrameCarriesConversation(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := Read("c1", "u1", at)
	if f.ConversationID != "c1" {
		t.Errorf("Read().ConversationID = %q; want c1", f.ConversationID)
	}
	data, ok := f.Data.(ReadData)
	if !ok || data.UserID != "u1" || !data.ReadAt.Equal(at) {
		t.Errorf("Read().Data = %#v", f.Data)
	}
}
