package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/modbot/internal/classify"
	"github.com/nextlevelbuilder/modbot/internal/contextcache"
	"github.com/nextlevelbuilder/modbot/internal/etiquette"
	"github.com/nextlevelbuilder/modbot/internal/providers"
	"github.com/nextlevelbuilder/modbot/internal/reply"
	"github.com/nextlevelbuilder/modbot/internal/routing"
	"github.com/nextlevelbuilder/modbot/internal/store"
	"github.com/nextlevelbuilder/modbot/internal/store/sqlite"
	"github.com/nextlevelbuilder/modbot/internal/telegram"
)

// --- fakes ---

type call struct {
	kind string // "send", "edit", "typing", "member"
	text string
	id   int
}

type fakeMessenger struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeMessenger) add(c call) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return len(f.calls)
}

func (f *fakeMessenger) SendMessage(_ context.Context, msg telegram.OutgoingMessage) (int, error) {
	return 1000 + f.add(call{kind: "send", text: msg.Text}), nil
}

func (f *fakeMessenger) EditMessageText(_ context.Context, _ int64, messageID int, text string) error {
	f.add(call{kind: "edit", text: text, id: messageID})
	return nil
}

func (f *fakeMessenger) SendTyping(context.Context, int64) error {
	f.add(call{kind: "typing"})
	return nil
}

func (f *fakeMessenger) GetChatMemberStatus(context.Context, int64, int64) (string, error) {
	f.add(call{kind: "member"})
	return "member", nil
}

func (f *fakeMessenger) byKind(kind string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeMessenger) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeProvider struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
}

func (p *fakeProvider) Chat(context.Context, providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &providers.ChatResponse{Content: p.content}, nil
}

func (p *fakeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, _ func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}

func (p *fakeProvider) DefaultModel() string { return "x-ai/grok-4-fast" }
func (p *fakeProvider) Name() string         { return "fake" }

type fakeTyping struct {
	mu            sync.Mutex
	starts, stops int
}

func (f *fakeTyping) Start(context.Context, int64) {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
}

func (f *fakeTyping) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

type fakeCommands struct {
	starts, settings int
}

func (f *fakeCommands) HandleStart(context.Context, *telegram.InboundMessage) error {
	f.starts++
	return nil
}

func (f *fakeCommands) HandleSettings(context.Context, *telegram.InboundMessage) error {
	f.settings++
	return nil
}

type failingGroups struct {
	store.GroupStore
}

func (failingGroups) UpsertGroup(context.Context, int64, string, string) (*store.Group, error) {
	return nil, errors.New("db unavailable")
}

// blockingMessages holds every insert until release is closed, then fails it.
type blockingMessages struct {
	store.MessageStore
	release chan struct{}
}

func (b blockingMessages) InsertMessage(context.Context, *store.ConversationMessage) error {
	<-b.release
	return errors.New("disk full")
}

// --- harness ---

type harness struct {
	d        *Dispatcher
	msg      *fakeMessenger
	provider *fakeProvider
	typing   *fakeTyping
	commands *fakeCommands
	stores   *store.Stores
	recorder *Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	stores, err := sqlite.NewStores(filepath.Join(t.TempDir(), "modbot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { stores.Close() })

	h := &harness{
		msg:      &fakeMessenger{},
		provider: &fakeProvider{content: "**Fees** are 0.3%"},
		typing:   &fakeTyping{},
		commands: &fakeCommands{},
		stores:   stores,
		recorder: NewRecorder(stores, time.Second),
	}
	t.Cleanup(func() { h.recorder.Close(context.Background()) })

	gen := reply.NewGenerator(stores.Groups,
		contextcache.New(true, 0, 0),
		routing.New(true, "x-ai/grok-4-fast", nil),
		h.provider,
		reply.Options{BotUsername: "modfi_bot", Temperature: 0.7})

	h.d = NewDispatcher(Deps{
		Classifier: classify.New("modfi_bot"),
		Etiquette:  etiquette.New(etiquette.Options{}),
		Replier:    gen,
		Commands:   h.commands,
		Messenger:  h.msg,
		Stores:     stores,
		Recorder:   h.recorder,
		NewTyping:  func() Indicator { return h.typing },
	}, Options{ComplexityThreshold: 1500})
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	if err := h.recorder.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func groupMessage(id int, text string) *telegram.InboundMessage {
	return &telegram.InboundMessage{
		ChatID: -100, ChatType: "supergroup", ChatTitle: "ModFi",
		MessageID: id, UserID: 7, Username: "ann", Text: text,
	}
}

// --- tests ---

func TestDispatch_QuestionGetsReply(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), groupMessage(1, "what are the fees?"))

	sends := h.msg.byKind("send")
	if len(sends) != 1 || sends[0].text != "<b>Fees</b> are 0.3%" {
		t.Fatalf("sends = %+v", sends)
	}
	if h.typing.starts == 0 || h.typing.stops == 0 {
		t.Errorf("typing starts=%d stops=%d", h.typing.starts, h.typing.stops)
	}

	h.drain(t)
	g, err := h.stores.Groups.GetGroupByChatID(context.Background(), -100)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := h.stores.Groups.FetchReplyData(context.Background(), g.ID, 10)
	if len(data.Messages) != 1 || data.Messages[0].MessageText != "what are the fees?" {
		t.Errorf("persisted messages = %+v", data.Messages)
	}
}

func TestDispatch_ChatterIsOnlyPersisted(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), groupMessage(1, "lol nice"))
	h.drain(t)

	if n := h.msg.total(); n != 0 {
		t.Errorf("outbound calls = %d, want 0", n)
	}
	if h.provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", h.provider.calls)
	}
	if _, err := h.stores.Groups.GetGroupByChatID(context.Background(), -100); err != nil {
		t.Errorf("message should still be persisted for context: %v", err)
	}
}

func TestDispatch_RateLimitedAfterReply(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), groupMessage(1, "what are the fees?"))
	h.d.Dispatch(context.Background(), groupMessage(2, "and the roadmap?"))

	if sends := h.msg.byKind("send"); len(sends) != 1 {
		t.Errorf("sends = %d, want second reply suppressed", len(sends))
	}
}

func TestDispatch_HumanMessageDefersNextReply(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), groupMessage(1, "gm all"))
	h.d.Dispatch(context.Background(), groupMessage(2, "is staking live?"))

	if h.provider.calls != 0 {
		t.Errorf("non-priority reply within the human deference window should be skipped")
	}

	h.d.Dispatch(context.Background(), groupMessage(3, "@modfi_bot is staking live?"))
	if h.provider.calls != 1 {
		t.Errorf("priority mention should bypass deference, provider calls = %d", h.provider.calls)
	}
}

func TestDispatch_BackendErrorSendsFallback(t *testing.T) {
	h := newHarness(t)
	h.provider.err = &providers.HTTPError{Status: http.StatusInternalServerError, Body: "boom"}
	h.d.Dispatch(context.Background(), groupMessage(1, "why is the bridge down?"))

	sends := h.msg.byKind("send")
	if len(sends) != 1 || sends[0].text != reply.FallbackReply {
		t.Errorf("sends = %+v, want fallback", sends)
	}
	if h.typing.stops == 0 {
		t.Error("typing indicator was not stopped")
	}
}

func TestDispatch_LongQuestionUsesPlaceholder(t *testing.T) {
	h := newHarness(t)
	text := strings.Repeat("a", 1599) + "?"
	h.d.Dispatch(context.Background(), groupMessage(1, text))

	sends := h.msg.byKind("send")
	edits := h.msg.byKind("edit")
	if len(sends) != 1 || sends[0].text != PlaceholderText {
		t.Fatalf("sends = %+v, want only the placeholder", sends)
	}
	if len(edits) != 1 || edits[0].text != "<b>Fees</b> are 0.3%" {
		t.Fatalf("edits = %+v, want final answer as an edit", edits)
	}

	// Placeholder is sent before the answer is delivered.
	h.msg.mu.Lock()
	defer h.msg.mu.Unlock()
	var sendIdx, editIdx int
	for i, c := range h.msg.calls {
		switch c.kind {
		case "send":
			sendIdx = i
		case "edit":
			editIdx = i
			if c.id != 1000+sendIdx+1 {
				t.Errorf("edited message %d, want placeholder id %d", c.id, 1000+sendIdx+1)
			}
		}
	}
	if sendIdx > editIdx {
		t.Error("placeholder must precede the edit")
	}
}

func TestDispatch_MentionOnlySendsHelp(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), groupMessage(1, "@modfi_bot"))

	sends := h.msg.byKind("send")
	if len(sends) != 1 || !strings.Contains(sends[0].text, "How can I help?") {
		t.Errorf("sends = %+v, want help text", sends)
	}
	if h.provider.calls != 0 {
		t.Error("help text must not call the backend")
	}
}

func TestDispatch_MentionGreeting(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), groupMessage(1, "gm @modfi_bot"))

	sends := h.msg.byKind("send")
	if len(sends) != 1 || sends[0].text != reply.GreetingReply {
		t.Errorf("sends = %+v, want greeting", sends)
	}
	if h.provider.calls != 0 {
		t.Error("greeting must not call the backend")
	}
}

func TestDispatch_Commands(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), &telegram.InboundMessage{ChatID: 7, ChatType: "private", UserID: 7, Text: "/start"})
	h.d.Dispatch(context.Background(), groupMessage(2, "/settings@modfi_bot"))

	if h.commands.starts != 1 || h.commands.settings != 1 {
		t.Errorf("starts=%d settings=%d, want 1/1", h.commands.starts, h.commands.settings)
	}
	if h.typing.stops == 0 {
		t.Error("typing should be stopped before handling settings")
	}
	if h.provider.calls != 0 {
		t.Error("commands must not call the backend")
	}
}

func TestDispatch_UpsertFailureSendsApology(t *testing.T) {
	h := newHarness(t)
	h.d.Stores = &store.Stores{
		Groups:   failingGroups{h.stores.Groups},
		Profiles: h.stores.Profiles,
		Messages: h.stores.Messages,
		Setup:    h.stores.Setup,
	}
	h.d.Dispatch(context.Background(), groupMessage(1, "why?"))

	sends := h.msg.byKind("send")
	if len(sends) != 1 || sends[0].text != reply.FallbackReply {
		t.Errorf("sends = %+v, want apology", sends)
	}
	if h.provider.calls != 0 {
		t.Error("backend should not be called when upserts fail")
	}
}

func TestDispatch_PersistenceFailureOnlyLogged(t *testing.T) {
	h := newHarness(t)
	stores := *h.stores
	release := make(chan struct{})
	stores.Messages = blockingMessages{MessageStore: h.stores.Messages, release: release}
	rec := NewRecorder(&stores, time.Second)
	logged := make(chan error, 4)
	rec.onError = func(err error) { logged <- err }
	h.d.Recorder = rec

	done := make(chan struct{})
	go func() {
		h.d.Dispatch(context.Background(), groupMessage(1, "what are the fees?"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch waited on the message insert")
	}

	if sends := h.msg.byKind("send"); len(sends) != 1 || sends[0].text != "<b>Fees</b> are 0.3%" {
		t.Fatalf("sends = %+v, want the reply despite the storage failure", sends)
	}

	close(release)
	if err := rec.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-logged:
		if !strings.Contains(err.Error(), "disk full") || !strings.Contains(err.Error(), "message 1") {
			t.Errorf("logged error = %v", err)
		}
	default:
		t.Fatal("insert failure never reached the error log")
	}
	if n := len(h.msg.byKind("send")); n != 1 {
		t.Errorf("sends = %d after the failure, want no extra messages", n)
	}
}

func TestDispatch_ConcurrentMentionsReplyOnce(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h.d.Dispatch(context.Background(), groupMessage(id, "@modfi_bot what are the fees?"))
		}(i)
	}
	wg.Wait()

	if sends := h.msg.byKind("send"); len(sends) != 1 {
		t.Errorf("sends = %d for concurrent mentions in one chat, want 1", len(sends))
	}
	h.provider.mu.Lock()
	defer h.provider.mu.Unlock()
	if h.provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", h.provider.calls)
	}
}

func TestHandler_NoTextIsAcknowledgedSilently(t *testing.T) {
	h := newHarness(t)
	srv := NewHandler(h.d, "", time.Second)

	for _, body := range []string{
		`{"update_id":1}`,
		`{"update_id":2,"message":{"message_id":1,"date":0,"chat":{"id":-100,"type":"group"}}}`,
		`not json`,
	} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body)))
		if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
			t.Errorf("body %q: status=%d body=%q", body, rec.Code, rec.Body.String())
		}
	}
	if n := h.msg.total(); n != 0 {
		t.Errorf("outbound calls = %d, want 0", n)
	}
}

func TestHandler_SecretMismatchDropped(t *testing.T) {
	h := newHarness(t)
	srv := NewHandler(h.d, "s3cret", time.Second)

	body := `{"update_id":1,"message":{"message_id":1,"date":0,"chat":{"id":-100,"type":"group"},"from":{"id":7,"is_bot":false,"first_name":"A"},"text":"why?"}}`
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	req.Header.Set(secretHeader, "wrong")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if h.provider.calls != 0 || h.msg.total() != 0 {
		t.Error("update with a bad secret must not be processed")
	}

	req = httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	req.Header.Set(secretHeader, "s3cret")
	srv.ServeHTTP(httptest.NewRecorder(), req)
	if h.provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 with the right secret", h.provider.calls)
	}
}

func TestHandler_RejectsGet(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	NewHandler(h.d, "", time.Second).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telegram/webhook", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
