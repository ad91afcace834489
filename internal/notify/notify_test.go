package notify

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dojibot/internal/watchlist"
	"dojibot/pkg/model"
)

func testSignal(dir model.Direction) model.Signal {
	kind := dir.ZoneKind()
	return model.Signal{
		ID:        "sig-1",
		Symbol:    "BTCUSDT",
		Timeframe: model.TF4h,
		CloseTime: time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC),
		Price:     42123.45678,
		Direction: dir,
		ConfluenceZone: model.Zone{
			Channel: model.Channel{Low: 41900, High: 42050, Strength: 64},
			Kind:    kind,
		},
		Metrics: model.SignalMetrics{BodyPct: 4.2, VolumeRatio: 0.7},
	}
}

func TestFormatSignal(t *testing.T) {
	long := FormatSignal(testSignal(model.Long))
	for _, want := range []string{
		"DOJI DETECTED",
		"<b>Token:</b> BTCUSDT",
		"🟢 <b>Reversal signal BUY/LONG</b>",
		"H4 (4 hours)",
		"02/01/2024 00:00:00",
		"Support zone:</b> 41900.0000 - 42050.0000",
		"$42123.4568",
	} {
		if !strings.Contains(long, want) {
			t.Errorf("Expected %q in message:\n%s", want, long)
		}
	}

	short := FormatSignal(testSignal(model.Short))
	if !strings.Contains(short, "🔴 <b>Reversal signal SELL/SHORT</b>") {
		t.Errorf("Expected short direction line:\n%s", short)
	}
	if !strings.Contains(short, "Resistance zone") {
		t.Errorf("Expected resistance zone line:\n%s", short)
	}
}

func TestFormatSignalEscapesSymbol(t *testing.T) {
	sig := testSignal(model.Long)
	sig.Symbol = "<X>"
	if msg := FormatSignal(sig); strings.Contains(msg, "<X>") {
		t.Errorf("Symbol not escaped:\n%s", msg)
	}
}

func TestFormatSymbols(t *testing.T) {
	if got := FormatSymbols(nil); got != "  (empty)" {
		t.Errorf("Unexpected empty rendering %q", got)
	}
	if got := FormatSymbols([]string{"BTCUSDT", "ETHUSDT"}); got != "  • BTCUSDT\n  • ETHUSDT" {
		t.Errorf("Unexpected rendering %q", got)
	}
}

type recordingNotifier struct {
	name string
	err  error

	mu  sync.Mutex
	got []model.Signal
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(ctx context.Context, sig model.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, sig)
	return r.err
}

func TestMultiNotify(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	bad := &recordingNotifier{name: "bad", err: errors.New("boom")}
	m := NewMulti(ok, bad, NewLog())

	if m.Name() != "multi(ok,bad,log)" {
		t.Errorf("Unexpected name %s", m.Name())
	}

	err := m.Notify(context.Background(), testSignal(model.Long))
	if err == nil {
		t.Fatal("Expected combined error")
	}
	if !strings.Contains(err.Error(), "1 of 3 notifiers failed") || !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("Unexpected error %v", err)
	}
	if len(ok.got) != 1 || len(bad.got) != 1 {
		t.Errorf("Every notifier should be tried: ok=%d bad=%d", len(ok.got), len(bad.got))
	}

	if err := NewMulti(ok).Notify(context.Background(), testSignal(model.Short)); err != nil {
		t.Errorf("Unexpected error %v", err)
	}
}

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbot.MessageConfig
	err     error
	updates chan tgbot.Update
	once    sync.Once
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbot.Update, 8)}
}

func (f *fakeBot) Send(c tgbot.Chattable) (tgbot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbot.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbot.Message{}, f.err
}

func (f *fakeBot) GetUpdatesChan(tgbot.UpdateConfig) tgbot.UpdatesChannel { return f.updates }

func (f *fakeBot) StopReceivingUpdates() { f.once.Do(func() { close(f.updates) }) }

func (f *fakeBot) messages() []tgbot.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbot.MessageConfig(nil), f.sent...)
}

func commandUpdate(chatID int64, text string) tgbot.Update {
	n := strings.IndexByte(text, ' ')
	if n < 0 {
		n = len(text)
	}
	return tgbot.Update{Message: &tgbot.Message{
		Text:     text,
		Chat:     &tgbot.Chat{ID: chatID},
		Entities: []tgbot.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}}
}

func newTestTelegram(t *testing.T, bot botAPI, adminChat int64) (*Telegram, *watchlist.FileStore) {
	t.Helper()
	store, err := watchlist.NewFileStore(filepath.Join(t.TempDir(), "symbols.json"), []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	status := func() BotStatus {
		return BotStatus{
			Timeframes:       []model.Timeframe{model.TF1h, model.TF4h},
			DojiThresholdPct: 10,
			VolumeRatio:      0.9,
			CachedSignals:    3,
			State:            "sleeping",
		}
	}
	return newTelegram(bot, -100123, adminChat, store, status), store
}

func TestTelegramNotify(t *testing.T) {
	bot := newFakeBot()
	tg, _ := newTestTelegram(t, bot, 0)

	if err := tg.Notify(context.Background(), testSignal(model.Long)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	sent := bot.messages()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(sent))
	}
	if sent[0].ChatID != -100123 || sent[0].ParseMode != tgbot.ModeHTML {
		t.Errorf("Unexpected message config %+v", sent[0])
	}

	bot.err = errors.New("network down")
	if err := tg.Notify(context.Background(), testSignal(model.Long)); err == nil {
		t.Error("Expected send error")
	}
}

func TestTelegramCommands(t *testing.T) {
	ctx := context.Background()
	tg, store := newTestTelegram(t, newFakeBot(), 0)

	tests := []struct {
		cmd, args string
		want      []string
	}{
		{"start", "", []string{"/add BTCUSDT"}},
		{"status", "", []string{"Watched symbols: 2", "1h, 4h", "Doji threshold: 10%", "Volume threshold: 90%", "Cached signals: 3"}},
		{"list", "", []string{"• BTCUSDT", "• ETHUSDT", "<b>Total:</b> 2"}},
		{"add", "", []string{"Usage: <code>/add BTCUSDT</code>"}},
		{"add", "solusdt", []string{"✅ Added SOLUSDT", "• SOLUSDT"}},
		{"add", "SOLUSDT", []string{"already in watchlist"}},
		{"add", "SOLBTC", []string{"invalid symbol"}},
		{"remove", "BTCUSDT", []string{"✅ Removed BTCUSDT"}},
		{"remove", "DOGEUSDT", []string{"not in watchlist"}},
		{"nope", "", []string{"Unknown command"}},
	}
	for _, tt := range tests {
		t.Run(tt.cmd+" "+tt.args, func(t *testing.T) {
			joined := strings.Join(tg.HandleCommand(ctx, tt.cmd, tt.args), "\n")
			for _, w := range tt.want {
				if !strings.Contains(joined, w) {
					t.Errorf("Expected %q in reply:\n%s", w, joined)
				}
			}
		})
	}

	got, _ := store.List(ctx)
	if strings.Join(got, ",") != "ETHUSDT,SOLUSDT" {
		t.Errorf("Unexpected watchlist %v", got)
	}
}

func TestTelegramCommandLoop(t *testing.T) {
	bot := newFakeBot()
	tg, _ := newTestTelegram(t, bot, 42)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tg.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tg.Start(ctx); err == nil {
		t.Error("Expected error on second Start")
	}

	bot.updates <- commandUpdate(7, "/list")
	bot.updates <- commandUpdate(42, "/add XRPUSDT")

	deadline := time.Now().Add(2 * time.Second)
	for len(bot.messages()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	tg.Stop()

	sent := bot.messages()
	if len(sent) != 2 {
		t.Fatalf("Expected 2 replies to the admin chat, got %d", len(sent))
	}
	for _, m := range sent {
		if m.ChatID != 42 {
			t.Errorf("Reply sent to chat %d", m.ChatID)
		}
	}
	if !strings.Contains(sent[0].Text, "Added XRPUSDT") {
		t.Errorf("Unexpected reply %q", sent[0].Text)
	}
}

type fakeExec struct {
	sql  []string
	args [][]any
	tag  string
	err  error
}

func (f *fakeExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag(f.tag), f.err
}

func TestJournalNotify(t *testing.T) {
	db := &fakeExec{tag: "INSERT 0 1"}
	j := &Journal{db: db}

	if err := j.migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(db.sql[0], "create table if not exists doji_signals") {
		t.Errorf("Unexpected migration %q", db.sql[0])
	}

	sig := testSignal(model.Short)
	if err := j.Notify(context.Background(), sig); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	args := db.args[1]
	if len(args) != 12 {
		t.Fatalf("Expected 12 args, got %d", len(args))
	}
	if args[0] != "sig-1" || args[1] != "BTCUSDT" || args[2] != "4h" || args[4] != "SHORT" || args[6] != "resistance" {
		t.Errorf("Unexpected args %v", args)
	}
	if !strings.Contains(db.sql[1], "on conflict do nothing") {
		t.Error("Insert should be idempotent")
	}

	db.err = errors.New("connection reset")
	if err := j.Notify(context.Background(), sig); err == nil {
		t.Error("Expected error")
	}
}
