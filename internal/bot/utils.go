package bot

import (
	"sort"
	"strconv"

	tgbotapi "github.com/matterbridge/telegram-bot-api/v6"
	"go.uber.org/zap"
)

// sendMessage sends any chattable, tolerating a nil API in tests
func (b *Bot) sendMessage(msg tgbotapi.Chattable) {
	if b.api == nil {
		return // For testing
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("Failed to send message", zap.Error(err))
	}
}

// sendText sends a plain text message to a chat
func (b *Bot) sendText(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

// sendTextInTopic sends a text message into a forum topic
func (b *Bot) sendTextInTopic(chatID int64, topicID int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.MessageThreadID = topicID
	b.sendMessage(msg)
}

// answerCallback acknowledges a callback query to remove the loading state
func (b *Bot) answerCallback(queryID string) {
	if b.api == nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(queryID, "")); err != nil {
		b.logger.Warn("Failed to answer callback query", zap.Error(err))
	}
}

// formatPrice renders a ruble amount without trailing zeros
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// leadingInt parses the numeric prefix of a size label, if any
func leadingInt(s string) (int, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}

// sortSizes deduplicates size labels and orders them with numeric
// prefixes first ("38" < "42" < "M" < "S" by label after numbers).
func sortSizes(sizes []string) []string {
	seen := make(map[string]bool, len(sizes))
	out := make([]string, 0, len(sizes))
	for _, s := range sizes {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ni, iok := leadingInt(out[i])
		nj, jok := leadingInt(out[j])
		switch {
		case iok && jok:
			if ni != nj {
				return ni < nj
			}
			return out[i] < out[j]
		case iok:
			return true
		case jok:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}
