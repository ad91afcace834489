package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"dojibot/internal/watchlist"
	"dojibot/pkg/logger"
	"dojibot/pkg/model"
)

// BotStatus is the runtime summary shown by /status
type BotStatus struct {
	Timeframes       []model.Timeframe
	DojiThresholdPct float64
	VolumeRatio      float64
	CachedSignals    int
	State            string
}

// botAPI is the subset of *tgbot.BotAPI used here
type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram posts signals to a channel and serves watchlist commands
type Telegram struct {
	bot       botAPI
	channelID int64
	adminChat int64
	store     watchlist.Store
	status    func() BotStatus

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

func NewTelegram(token string, channelID, adminChat int64, store watchlist.Store, status func() BotStatus) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login")
	}
	logger.Info("[TELEGRAM] Authorized as @%s", b.Self.UserName)
	return newTelegram(b, channelID, adminChat, store, status), nil
}

func newTelegram(bot botAPI, channelID, adminChat int64, store watchlist.Store, status func() BotStatus) *Telegram {
	if status == nil {
		status = func() BotStatus { return BotStatus{} }
	}
	return &Telegram{
		bot:       bot,
		channelID: channelID,
		adminChat: adminChat,
		store:     store,
		status:    status,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// SetStatusFunc replaces the /status source. Call before Start.
func (t *Telegram) SetStatusFunc(fn func() BotStatus) {
	if fn != nil {
		t.status = fn
	}
}

// Notify posts the HTML alert to the channel
func (t *Telegram) Notify(ctx context.Context, sig model.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbot.NewMessage(t.channelID, FormatSignal(sig))
	msg.ParseMode = tgbot.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrapf(err, "send %s %s", sig.Symbol, sig.Timeframe)
	}
	logger.Info("[TELEGRAM] Sent %s %s %s to channel", sig.Direction, sig.Symbol, sig.Timeframe)
	return nil
}

// Start long-polls for commands until ctx is done or Stop is called
func (t *Telegram) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("telegram command loop already running")
	}
	t.running = true
	t.mu.Unlock()

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}
	updates := t.bot.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, upd)
			}
		}
	}()
	logger.Info("[TELEGRAM] Command loop started")
	return nil
}

// Stop ends the update polling and waits for the loop to exit
func (t *Telegram) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	t.bot.StopReceivingUpdates()
	t.wg.Wait()
	logger.Info("[TELEGRAM] Command loop stopped")
}

func (t *Telegram) handleUpdate(ctx context.Context, upd tgbot.Update) {
	m := upd.Message
	if m == nil || m.Chat == nil || !m.IsCommand() {
		return
	}
	if t.adminChat != 0 && m.Chat.ID != t.adminChat {
		logger.Debug("[TELEGRAM] Ignoring /%s from chat %d", m.Command(), m.Chat.ID)
		return
	}

	for _, text := range t.HandleCommand(ctx, m.Command(), m.CommandArguments()) {
		reply := tgbot.NewMessage(m.Chat.ID, text)
		reply.ParseMode = tgbot.ModeHTML
		if _, err := t.bot.Send(reply); err != nil {
			logger.Warn("[TELEGRAM] Reply to /%s failed: %v", m.Command(), err)
		}
	}
}

// HandleCommand returns the HTML replies for a bot command
func (t *Telegram) HandleCommand(ctx context.Context, cmd, args string) []string {
	switch cmd {
	case "start", "help":
		return []string{helpText}
	case "status":
		return []string{t.statusText(ctx)}
	case "list":
		symbols, err := t.store.List(ctx)
		if err != nil {
			return []string{"❌ " + escape(err.Error())}
		}
		return []string{fmt.Sprintf("📊 <b>Watchlist:</b>\n\n%s\n\n<b>Total:</b> %d symbols",
			FormatSymbols(symbols), len(symbols))}
	case "add":
		return t.mutate(ctx, "add", args, t.store.Add)
	case "remove":
		return t.mutate(ctx, "remove", args, t.store.Remove)
	default:
		return []string{"❓ Unknown command. Send /start for help."}
	}
}

func (t *Telegram) mutate(ctx context.Context, verb, args string, op func(context.Context, string) error) []string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return []string{fmt.Sprintf("❌ Please give a symbol\n\n📝 Usage: <code>/%s BTCUSDT</code>", verb)}
	}

	sym := strings.ToUpper(fields[0])
	if err := op(ctx, sym); err != nil {
		logger.Info("[TELEGRAM] /%s %s refused: %v", verb, sym, err)
		return []string{"❌ " + escape(err.Error())}
	}

	done := "✅ Added " + escape(sym)
	if verb == "remove" {
		done = "✅ Removed " + escape(sym)
	}
	logger.Info("[TELEGRAM] Watchlist %s %s", verb, sym)

	replies := []string{done}
	if symbols, err := t.store.List(ctx); err == nil {
		replies = append(replies, "📊 <b>Updated watchlist:</b>\n\n"+FormatSymbols(symbols))
	}
	return replies
}

func (t *Telegram) statusText(ctx context.Context) string {
	st := t.status()

	watched := "?"
	if symbols, err := t.store.List(ctx); err == nil {
		watched = fmt.Sprint(len(symbols))
	}

	labels := make([]string, len(st.Timeframes))
	for i, tf := range st.Timeframes {
		labels[i] = tf.String()
	}

	var b strings.Builder
	b.WriteString("✅ <b>Bot is running</b>\n\n")
	if st.State != "" {
		fmt.Fprintf(&b, "⚙️ State: %s\n", escape(st.State))
	}
	fmt.Fprintf(&b, "📊 Watched symbols: %s\n", watched)
	fmt.Fprintf(&b, "⏱️ Timeframes: %s\n", strings.Join(labels, ", "))
	fmt.Fprintf(&b, "📏 Doji threshold: %g%%\n", st.DojiThresholdPct)
	fmt.Fprintf(&b, "📉 Volume threshold: %g%%\n", st.VolumeRatio*100)
	fmt.Fprintf(&b, "💾 Cached signals: %d", st.CachedSignals)
	return b.String()
}

const helpText = "🤖 <b>Doji Reversal Bot</b>\n\n" +
	"📊 Detects low-volume doji candles at support and resistance\n" +
	"🔔 Signals are posted to the channel automatically\n\n" +
	"<b>📋 Commands:</b>\n" +
	"/start - show this help\n" +
	"/status - bot status\n" +
	"/list - watched symbols\n" +
	"/add BTCUSDT - add a symbol\n" +
	"/remove BTCUSDT - remove a symbol"
