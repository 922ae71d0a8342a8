package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/matterbridge/telegram-bot-api/v6"
	"go.uber.org/zap"

	"shopbot/internal/storage"
)

// splitCallback separates the routing tag from its argument in data
// like "buy:42" or "approve:17". The tag set is closed; anything else
// is ignored by the dispatcher.
func splitCallback(data string) (tag, arg string) {
	if i := strings.IndexByte(data, ':'); i >= 0 {
		return data[:i], data[i+1:]
	}
	return data, ""
}

// dispatchCallback routes inline keyboard presses
func (b *Bot) dispatchCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	tag, arg := splitCallback(query.Data)

	switch tag {
	case "product":
		b.cbProduct(ctx, query, arg)
	case "back_to_catalog":
		b.showCatalog(ctx, query.Message.Chat.ID, query.From.ID)
	case "buy":
		b.cbBuy(ctx, query, arg)
	case "size":
		b.cbSize(ctx, query, arg)
	case "delivery":
		b.cbDelivery(ctx, query, arg)
	case "confirm_order":
		b.cbConfirmOrder(ctx, query)
	case "edit":
		b.cbEdit(ctx, query, arg)
	case "cancel_order":
		b.cbCancelOrder(query)
	case "approve":
		b.cbApprove(ctx, query, arg)
	case "reject":
		b.cbReject(ctx, query, arg)
	case "exchange_coin":
		b.cbExchangeCoin(ctx, query)
	case "how_to_get_coins":
		b.cbHowToGetCoins(query)
	case "check_subscription":
		b.cbCheckSubscription(ctx, query)
	case "add_review":
		b.cbAddReview(query)
	case "review_skip":
		b.cbReviewSkip(ctx, query)
	case "exclusive_yes", "exclusive_no":
		b.cbProductExclusive(ctx, query, tag == "exclusive_yes")
	default:
		b.logger.Debug("Unknown callback", zap.String("data", query.Data))
	}
}

func (b *Bot) cbProduct(ctx context.Context, query *tgbotapi.CallbackQuery, arg string) {
	productID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return
	}
	b.showProductCard(ctx, query.Message.Chat.ID, productID)
}

// cbExchangeCoin trades coins for a permanent discount. The debit is
// the atomic step; if the discount write then fails the coins are
// returned.
func (b *Bot) cbExchangeCoin(ctx context.Context, query *tgbotapi.CallbackQuery) {
	userID := query.From.ID
	chatID := query.Message.Chat.ID

	if err := b.db.Debit(ctx, userID, exchangeCoinCost); err != nil {
		if errors.Is(err, storage.ErrInsufficientBalance) {
			b.sendText(chatID, fmt.Sprintf("Недостаточно BS Coin: для обмена нужно %d.", exchangeCoinCost))
			return
		}
		b.logger.Error("Failed to debit coins for exchange", zap.Int64("user_id", userID), zap.Error(err))
		b.sendText(chatID, "Не удалось выполнить обмен, попробуйте позже.")
		return
	}

	if err := b.db.AddDiscount(ctx, userID, exchangeDiscountPt); err != nil {
		b.logger.Error("Failed to apply exchanged discount, refunding coins",
			zap.Int64("user_id", userID), zap.Error(err))
		if cerr := b.db.Credit(ctx, userID, exchangeCoinCost); cerr != nil {
			b.logger.Error("CRITICAL: refund after failed exchange also failed",
				zap.Int64("user_id", userID), zap.Int64("amount", exchangeCoinCost), zap.Error(cerr))
		}
		b.sendText(chatID, "Не удалось выполнить обмен, попробуйте позже.")
		return
	}

	b.sendText(chatID, fmt.Sprintf("💱 Обмен выполнен! Ваша скидка увеличена на %d%%.", exchangeDiscountPt))
}

func (b *Bot) cbHowToGetCoins(query *tgbotapi.CallbackQuery) {
	b.sendText(query.Message.Chat.ID, fmt.Sprintf(
		"❓ Как получить BS Coin:\n\n"+
			"🎁 Ежедневный бонус — +%d за возвращение после суток\n"+
			"🤝 Приглашение друга — +%d\n"+
			"🥇 Первый заказ — +%d\n"+
			"💬 Отзывы — достижение «Активный комментатор» дает +1%% к скидке",
		dailyBonusCoins, referralBonusCoins, firstOrderBonus))
}

func (b *Bot) cbCheckSubscription(ctx context.Context, query *tgbotapi.CallbackQuery) {
	chatID := query.Message.Chat.ID
	if !b.isSubscribed(query.From.ID) {
		b.sendText(chatID, "Подписка не найдена. Подпишитесь на канал и попробуйте снова.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, "✅ Спасибо за подписку! Добро пожаловать в магазин.")
	msg.ReplyMarkup = mainMenuKeyboard()
	b.sendMessage(msg)
}
