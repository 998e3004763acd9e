package setup

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/modbot/internal/store"
	"github.com/nextlevelbuilder/modbot/internal/store/sqlite"
	"github.com/nextlevelbuilder/modbot/internal/telegram"
)

type fakeMessenger struct {
	mu     sync.Mutex
	status string
	err    error
	sent   []telegram.OutgoingMessage
}

func (f *fakeMessenger) SendMessage(_ context.Context, msg telegram.OutgoingMessage) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return len(f.sent), nil
}

func (f *fakeMessenger) EditMessageText(context.Context, int64, int, string) error { return nil }
func (f *fakeMessenger) SendTyping(context.Context, int64) error                   { return nil }

func (f *fakeMessenger) GetChatMemberStatus(context.Context, int64, int64) (string, error) {
	return f.status, f.err
}

func (f *fakeMessenger) last(t *testing.T) telegram.OutgoingMessage {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no message sent")
	}
	return f.sent[len(f.sent)-1]
}

func newTestFlow(t *testing.T, status string) (*Flow, *fakeMessenger, *store.Stores) {
	t.Helper()
	stores, err := sqlite.NewStores(filepath.Join(t.TempDir(), "modbot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { stores.Close() })
	m := &fakeMessenger{status: status}
	return NewFlow(stores, m, "modfi_bot", "https://modfi.ai/setup"), m, stores
}

func groupMsg(text string) *telegram.InboundMessage {
	return &telegram.InboundMessage{
		ChatID: -100, ChatType: "supergroup", ChatTitle: "ModFi <Core>",
		MessageID: 5, UserID: 7, Username: "ann", Text: text,
	}
}

func TestHandleStart_Welcome(t *testing.T) {
	f, m, _ := newTestFlow(t, "member")
	if err := f.HandleStart(context.Background(), &telegram.InboundMessage{ChatID: 7, ChatType: "private", Text: "/start"}); err != nil {
		t.Fatal(err)
	}
	got := m.last(t)
	if !strings.Contains(got.Text, "Welcome to ModFi Bot") || len(got.Buttons) != 1 ||
		got.Buttons[0].URL != "https://t.me/modfi_bot?startgroup=true" {
		t.Errorf("welcome = %+v", got)
	}
}

func TestHandleSettings_PrivateChat(t *testing.T) {
	f, m, _ := newTestFlow(t, "creator")
	msg := groupMsg("/settings@modfi_bot")
	msg.ChatType = "private"
	if err := f.HandleSettings(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(m.last(t).Text, "must be used in a group") {
		t.Errorf("reply = %q", m.last(t).Text)
	}
}

func TestHandleSettings_NonAdmin(t *testing.T) {
	for _, tc := range []struct {
		status string
		err    error
	}{{"member", nil}, {"", errors.New("api down")}} {
		f, m, _ := newTestFlow(t, tc.status)
		m.err = tc.err
		if err := f.HandleSettings(context.Background(), groupMsg("/settings@modfi_bot")); err != nil {
			t.Fatal(err)
		}
		if m.last(t).Text != notAdminText {
			t.Errorf("status %q: reply = %q", tc.status, m.last(t).Text)
		}
	}
}

func TestSettingsThenStart_RedeemsToken(t *testing.T) {
	f, m, _ := newTestFlow(t, "administrator")
	ctx := context.Background()

	if err := f.HandleSettings(ctx, groupMsg("/settings@modfi_bot")); err != nil {
		t.Fatal(err)
	}
	btn := m.last(t).Buttons
	if len(btn) != 1 || !strings.HasPrefix(btn[0].URL, "https://t.me/modfi_bot?start=setup_") {
		t.Fatalf("settings buttons = %+v", btn)
	}
	if !strings.Contains(m.last(t).Text, "@ann, let's configure") {
		t.Errorf("settings text = %q", m.last(t).Text)
	}
	token := strings.TrimPrefix(btn[0].URL, "https://t.me/modfi_bot?start=setup_")

	dm := &telegram.InboundMessage{ChatID: 7, ChatType: "private", UserID: 7, Text: "/start setup_" + token}
	if err := f.HandleStart(ctx, dm); err != nil {
		t.Fatal(err)
	}
	got := m.last(t).Text
	if !strings.Contains(got, "Setup Link for ModFi &lt;Core&gt;") ||
		!strings.Contains(got, "https://modfi.ai/setup?token="+token) {
		t.Errorf("setup link message = %q", got)
	}

	// Past the TTL the same link reports expiry.
	f.now = func() time.Time { return time.Now().Add(TokenTTL + time.Minute) }
	if err := f.HandleStart(ctx, dm); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(m.last(t).Text, "Setup Link Expired") {
		t.Errorf("expired message = %q", m.last(t).Text)
	}
}

func TestHandleStart_UnknownToken(t *testing.T) {
	f, m, _ := newTestFlow(t, "member")
	if err := f.HandleStart(context.Background(), &telegram.InboundMessage{ChatID: 7, Text: "/start setup_nope"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(m.last(t).Text, "/settings@modfi_bot again") {
		t.Errorf("reply = %q", m.last(t).Text)
	}
}

func TestJanitor(t *testing.T) {
	_, _, stores := newTestFlow(t, "member")
	ctx := context.Background()
	if err := stores.Setup.CreateSetupSession(ctx, &store.SetupSession{
		Token: "old", TelegramUserID: 1, GroupChatID: -1, ExpiresAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	j, err := NewJanitor(stores.Setup, "0 * * * *")
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}
	n, err := j.PurgeOnce(ctx)
	if err != nil || n != 1 {
		t.Errorf("PurgeOnce = %d, %v, want 1", n, err)
	}

	if _, err := NewJanitor(stores.Setup, "not a cron"); err == nil {
		t.Error("expected invalid schedule error")
	}
}
