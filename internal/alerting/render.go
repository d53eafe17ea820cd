package alerting

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"coinwatch/internal/storage"
)

// Callback data understood by the chat layer.
const (
	CallbackDeactivatePrefix = "WATCH_OFF_"
	CallbackHome             = "BACK_HOME"
)

// ActionDeactivate labels the button that switches a watch off.
const ActionDeactivate = "deactivate"

// Action is a follow-up the recipient can take on a notification.
type Action struct {
	Label   string
	WatchID int64
}

// Message is a transport-neutral rendering of a notification.
type Message struct {
	Destination string
	Text        string
	Actions     []Action
}

// DeactivateCallback returns the callback data that deactivates watchID.
func DeactivateCallback(watchID int64) string {
	return CallbackDeactivatePrefix + strconv.FormatInt(watchID, 10)
}

// DirectionLabel is the human form of a watch direction.
func DirectionLabel(d storage.Direction) string {
	if d == storage.DirectionBelow {
		return "below"
	}
	return "above"
}

// Render produces the trigger notification text (Telegram HTML) and its actions.
func Render(note Notification) Message {
	var b strings.Builder
	b.WriteString("🚨 <b>ALERT TRIGGERED</b>\n")
	fmt.Fprintf(&b, "%s now:\n", html.EscapeString(note.Symbol))
	fmt.Fprintf(&b, "USD: <b>%s</b>\n", FormatUSD(note.Quote.PriceUSD))
	if note.Quote.HasAlt() {
		fmt.Fprintf(&b, "%s: <b>%s</b>\n", strings.ToUpper(note.Quote.AltCurrency), FormatAlt(note.Quote.PriceAlt, note.Quote.AltCurrency))
	}
	fmt.Fprintf(&b, "Target: <b>%s</b> (%s)\n", FormatUSD(note.Target), DirectionLabel(note.Direction))
	fmt.Fprintf(&b, "\nAlert #%d has been switched off.", note.WatchID)

	return Message{
		Destination: note.Destination,
		Text:        b.String(),
		Actions:     []Action{{Label: ActionDeactivate, WatchID: note.WatchID}},
	}
}
