package bot

import (
	"fmt"
	"html"
	"strings"

	"coinwatch/internal/alerting"
	"coinwatch/internal/errs"
	"coinwatch/internal/fetcher"
	"coinwatch/internal/news"
	"coinwatch/internal/storage"
)

// maxListed caps the watch list shown in chat.
const maxListed = 20

const helpText = "Commands:\n" +
	"/start - open the menu\n" +
	"/price - check a price (pick a coin)\n" +
	"/fng - Fear & Greed index\n" +
	"/news - latest crypto news\n" +
	"/alert - add a price alert\n" +
	"/alerts - list your alerts\n"

func priceText(symbol string, q fetcher.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💰 <b>%s Price</b>\n", html.EscapeString(symbol))
	fmt.Fprintf(&b, "USD: <b>%s</b>\n", alerting.FormatUSD(q.PriceUSD))
	if q.HasAlt() {
		fmt.Fprintf(&b, "%s: <b>%s</b>\n", strings.ToUpper(q.AltCurrency), alerting.FormatAlt(q.PriceAlt, q.AltCurrency))
	}
	return b.String()
}

func sentimentText(r fetcher.SentimentReading) string {
	return fmt.Sprintf("😱 <b>Fear &amp; Greed Index</b>\nValue: <b>%d</b> (%s)\n", r.Value, html.EscapeString(r.Classification))
}

func newsText(items []news.Item) string {
	if len(items) == 0 {
		return "No crypto news from the current sources yet."
	}
	var b strings.Builder
	b.WriteString("📰 <b>Crypto News</b>\n")
	for i, it := range items {
		fmt.Fprintf(&b, "\n%d. <b>%s</b>\n   <i>%s</i>\n   %s\n", i+1,
			html.EscapeString(strings.TrimSpace(it.Title)),
			html.EscapeString(it.Source),
			html.EscapeString(it.Link))
	}
	return strings.TrimSpace(b.String())
}

func watchListText(watches []storage.Watch) string {
	if len(watches) == 0 {
		return "You have no alerts yet. Tap ⏰ Add price alert."
	}
	if len(watches) > maxListed {
		watches = watches[:maxListed]
	}
	lines := []string{"📌 <b>Your alerts</b>", ""}
	for _, w := range watches {
		status := "⚫ OFF"
		if w.Active {
			status = "🟢 ON"
		}
		lines = append(lines, fmt.Sprintf("#%d %s %s %s %s", w.ID, status, html.EscapeString(w.Symbol),
			strings.ToUpper(alerting.DirectionLabel(w.Direction)), alerting.FormatUSD(w.Target)))
	}
	return strings.Join(lines, "\n")
}

func createdText(w storage.Watch) string {
	return fmt.Sprintf("⏰ Alert #%d created!\n%s %s %s\n\nSend /alerts to see your list.",
		w.ID, html.EscapeString(w.Symbol), strings.ToUpper(alerting.DirectionLabel(w.Direction)), alerting.FormatUSD(w.Target))
}

func targetPrompt(symbol string, d storage.Direction) string {
	return fmt.Sprintf("✅ OK.\nNow type the <b>target price in USD</b> for %s (%s).\nExample: <code>42000</code>",
		html.EscapeString(symbol), alerting.DirectionLabel(d))
}

// failureText maps an error kind to a user-facing sentence.
func failureText(what string, err error) string {
	switch errs.KindOf(err) {
	case errs.ErrNotFound:
		return fmt.Sprintf("%s: not found.", what)
	case errs.ErrTransient:
		return fmt.Sprintf("%s: source unavailable, try again later.", what)
	case errs.ErrValidation:
		return fmt.Sprintf("%s: invalid input.", what)
	default:
		return fmt.Sprintf("%s: something went wrong, try again later.", what)
	}
}
