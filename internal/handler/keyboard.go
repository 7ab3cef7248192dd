package handler

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/yogev77/tophuman-sub001/internal/game"
)

// CallbackPool prefixes the data of a pool button: "pool:<kind>".
const CallbackPool = "pool:"

// BuildGamesPanel creates one pool button per kind, two per row.
func BuildGamesPanel(games []game.Game) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	var current []tele.Btn
	for i, g := range games {
		current = append(current, markup.Data(g.Name(), CallbackPool+g.Kind()))
		if len(current) == 2 || i == len(games)-1 {
			rows = append(rows, markup.Row(current...))
			current = nil
		}
	}
	markup.Inline(rows...)
	return markup
}

// ParseCallback strips the marker telebot prepends to callback data and
// returns the pool kind, if the data is a pool button.
func ParseCallback(data string) (kind string, ok bool) {
	data = strings.TrimPrefix(data, "\f")
	if !strings.HasPrefix(data, CallbackPool) {
		return "", false
	}
	kind = strings.TrimPrefix(data, CallbackPool)
	return kind, kind != ""
}

func formatGames(games []game.Game) string {
	var b strings.Builder
	b.WriteString("🎮 Games\n━━━━━━━━━━━━━━━\n")
	for _, g := range games {
		fmt.Fprintf(&b, "%s (%s) - %ds\n", g.Name(), g.Kind(), int(g.TimeLimit().Seconds()))
	}
	b.WriteString("━━━━━━━━━━━━━━━\nTap a game to see today's pool:")
	return b.String()
}
