package telegram

import (
	"encoding/json"
	"testing"

	"github.com/mymmrac/telego"
)

func TestFromUpdate(t *testing.T) {
	raw := `{"update_id":1,"message":{"message_id":10,"date":0,
		"chat":{"id":-100,"type":"supergroup","title":"ModFi"},
		"from":{"id":7,"is_bot":false,"first_name":"Ann","username":"ann"},
		"text":"when launch?"}}`
	var u telego.Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatal(err)
	}

	m, ok := FromUpdate(u)
	if !ok {
		t.Fatal("FromUpdate reported no message")
	}
	if m.ChatID != -100 || m.ChatType != "supergroup" || m.MessageID != 10 || m.UserID != 7 || m.Text != "when launch?" {
		t.Errorf("FromUpdate() = %+v", m)
	}
	if m.IsPrivate() || m.DisplayName() != "ann" {
		t.Errorf("IsPrivate=%v DisplayName=%q", m.IsPrivate(), m.DisplayName())
	}
}

func TestFromUpdate_NoText(t *testing.T) {
	tests := []struct {
		name string
		u    telego.Update
	}{
		{"no message", telego.Update{UpdateID: 1}},
		{"no text", telego.Update{UpdateID: 2, Message: &telego.Message{MessageID: 1, Chat: telego.Chat{ID: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := FromUpdate(tt.u); ok {
				t.Error("expected no inbound message")
			}
		})
	}
}
