package bot

import (
	"fmt"

	"coinwatch/internal/alerting"
	"coinwatch/internal/storage"
	"coinwatch/internal/telegram"
)

// Callback data.
const (
	cbMenuPrice     = "MENU_PRICE"
	cbMenuFNG       = "MENU_FNG"
	cbMenuNews      = "MENU_NEWS"
	cbMenuAddAlert  = "MENU_ADD_ALERT"
	cbMenuListAlert = "MENU_LIST_ALERT"
	cbPickPrefix    = "PICK_"
	cbShowPrice     = "SHOWPRICE_"
	cbMakeAlert     = "MAKEALERT_"
	cbDirPrefix     = "DIR_"
)

const coinsPerRow = 3

func button(text, data string) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: text, CallbackData: data}
}

func backRow(label string) []telegram.InlineKeyboardButton {
	return []telegram.InlineKeyboardButton{button(label, alerting.CallbackHome)}
}

func mainMenu() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{button("💰 Price", cbMenuPrice), button("😱 Fear & Greed", cbMenuFNG)},
		{button("📰 News", cbMenuNews), button("⏰ Add price alert", cbMenuAddAlert)},
		{button("📌 My alerts", cbMenuListAlert)},
	}}
}

func coinPicker(symbols []string) *telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton
	var row []telegram.InlineKeyboardButton
	for _, sym := range symbols {
		row = append(row, button(sym, cbPickPrefix+sym))
		if len(row) == coinsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, backRow("⬅️ Back"))
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func coinActions(symbol string) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{button("💰 Show price", cbShowPrice+symbol)},
		{button("⏰ Create price alert", cbMakeAlert+symbol)},
		backRow("⬅️ Back"),
	}}
}

func directionPicker(symbol string) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{button("📈 Alert when ABOVE", directionCallback(symbol, storage.DirectionAbove))},
		{button("📉 Alert when BELOW", directionCallback(symbol, storage.DirectionBelow))},
		backRow("⬅️ Cancel"),
	}}
}

func directionCallback(symbol string, d storage.Direction) string {
	return fmt.Sprintf("%s%s_%s", cbDirPrefix, symbol, d)
}

func cancelOnly() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{backRow("⬅️ Cancel")}}
}

// watchListKeyboard offers a switch-off button per active watch shown.
func watchListKeyboard(watches []storage.Watch) *telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton
	for _, w := range watches {
		if !w.Active {
			continue
		}
		rows = append(rows, []telegram.InlineKeyboardButton{
			button(fmt.Sprintf("🛑 Off #%d %s", w.ID, w.Symbol), alerting.DeactivateCallback(w.ID)),
		})
	}
	rows = append(rows, backRow("⬅️ Back"))
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}
