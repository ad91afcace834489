package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"dojibot/pkg/model"
)

// alertZone is the display offset used for close times in alerts (UTC+7)
var alertZone = time.FixedZone("UTC+7", 7*3600)

// FormatSignal renders a signal as a Telegram HTML message
func FormatSignal(sig model.Signal) string {
	emoji, text := "🟢", "Reversal signal BUY/LONG"
	if sig.Direction == model.Short {
		emoji, text = "🔴", "Reversal signal SELL/SHORT"
	}

	var b strings.Builder
	b.WriteString("👀 <b>DOJI DETECTED</b>\n")
	b.WriteString("━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "🔶 <b>Token:</b> %s\n", html.EscapeString(sig.Symbol))
	fmt.Fprintf(&b, "%s <b>%s</b>\n", emoji, text)
	fmt.Fprintf(&b, "⏰ <b>Timeframe:</b> %s\n", sig.Timeframe.Label())
	fmt.Fprintf(&b, "🕯 <b>Closed:</b> %s\n", sig.CloseTime.In(alertZone).Format("02/01/2006 15:04:05"))
	fmt.Fprintf(&b, "📐 <b>%s zone:</b> %.4f - %.4f\n", zoneTitle(sig.ConfluenceZone.Kind),
		sig.ConfluenceZone.Low, sig.ConfluenceZone.High)
	fmt.Fprintf(&b, "💰 <b>Confirmation price:</b> $%.4f", sig.Price)
	return b.String()
}

func zoneTitle(k model.ZoneKind) string {
	if k == model.Support {
		return "Support"
	}
	return "Resistance"
}

// FormatSymbols renders a watchlist as bullet lines
func FormatSymbols(symbols []string) string {
	if len(symbols) == 0 {
		return "  (empty)"
	}
	lines := make([]string, len(symbols))
	for i, s := range symbols {
		lines[i] = "  • " + html.EscapeString(s)
	}
	return strings.Join(lines, "\n")
}

func escape(s string) string { return html.EscapeString(s) }
