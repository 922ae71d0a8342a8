package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/matterbridge/telegram-bot-api/v6"

	"shopbot/internal/models"
	"shopbot/internal/order"
)

// telegramNotifier delivers order engine notifications over Telegram.
// All methods tolerate a nil API so the engine can run in tests.
type telegramNotifier struct {
	bot *Bot
}

var _ order.Notifier = (*telegramNotifier)(nil)

func (n *telegramNotifier) NotifyUser(ctx context.Context, userID int64, text string) error {
	if n.bot.api == nil {
		return nil
	}
	if _, err := n.bot.api.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		return fmt.Errorf("failed to notify user %d: %w", userID, err)
	}
	return nil
}

// RequestDecision posts the order card with Approve/Reject buttons into
// the moderation topic and reports where it landed.
func (n *telegramNotifier) RequestDecision(ctx context.Context, o *models.Order, p *models.Product) (int, int, error) {
	if n.bot.api == nil {
		return 0, 0, nil
	}

	text := fmt.Sprintf("🔔 Новый заказ №%d\n👤 Покупатель: tg://user?id=%d\n\n%s",
		o.ID, o.UserID, order.Summary(o, p))

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", fmt.Sprintf("approve:%d", o.ID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("reject:%d", o.ID)),
		),
	)

	// Ruble orders carry a payment screenshot; the card is posted as
	// that photo so admins decide with the proof in front of them.
	var card tgbotapi.Chattable
	if o.ProofFileID != "" {
		photo := tgbotapi.NewPhoto(n.bot.cfg.ShopChatID, tgbotapi.FileID(o.ProofFileID))
		photo.Caption = text
		photo.MessageThreadID = n.bot.cfg.OrdersTopicID
		photo.ReplyMarkup = keyboard
		card = photo
	} else {
		msg := tgbotapi.NewMessage(n.bot.cfg.ShopChatID, text)
		msg.MessageThreadID = n.bot.cfg.OrdersTopicID
		msg.ReplyMarkup = keyboard
		card = msg
	}

	sent, err := n.bot.api.Send(card)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to post decision request for order %d: %w", o.ID, err)
	}
	return sent.MessageID, n.bot.cfg.OrdersTopicID, nil
}

// CloseDecision drops the buttons from the order card and replies with
// the resolution so the moderation topic keeps an audit trail.
func (n *telegramNotifier) CloseDecision(ctx context.Context, o *models.Order, resolution string) error {
	if n.bot.api == nil || o.AdminMsgID == 0 {
		return nil
	}

	edit := tgbotapi.NewEditMessageReplyMarkup(n.bot.cfg.ShopChatID, o.AdminMsgID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := n.bot.api.Request(edit); err != nil {
		return fmt.Errorf("failed to clear decision keyboard for order %d: %w", o.ID, err)
	}

	reply := tgbotapi.NewMessage(n.bot.cfg.ShopChatID, fmt.Sprintf("Заказ №%d: %s", o.ID, resolution))
	reply.MessageThreadID = o.AdminTopic
	reply.ReplyToMessageID = o.AdminMsgID
	if _, err := n.bot.api.Send(reply); err != nil {
		return fmt.Errorf("failed to post resolution for order %d: %w", o.ID, err)
	}
	return nil
}
