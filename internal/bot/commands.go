package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/matterbridge/telegram-bot-api/v6"
	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/storage"
)

// Persistent reply keyboard labels. They double as message routes, so
// changing a label here changes the button the bot reacts to.
const (
	menuCatalog   = "🛍️ Магазин"
	menuExclusive = "💎 Эксклюзив"
	menuProfile   = "👤 Профиль"
	menuInvite    = "🤝 Пригласить друга"
	menuReviews   = "⭐ Отзывы"
	menuSupport   = "📞 Поддержка"
)

const (
	dailyBonusCoins    = 10
	referralBonusCoins = 100
	exchangeCoinCost   = 500
	exchangeDiscountPt = 5
	firstOrderBonus    = 50
	commentatorAt      = 10

	achFirstOrder  = "first_order"
	achCommentator = "active_commentator"
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuCatalog),
			tgbotapi.NewKeyboardButton(menuExclusive),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuProfile),
			tgbotapi.NewKeyboardButton(menuInvite),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuReviews),
			tgbotapi.NewKeyboardButton(menuSupport),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// touchUser refreshes last-active and grants the daily bonus when the
// user comes back after a day away. Unregistered users are ignored
// until they /start.
func (b *Bot) touchUser(ctx context.Context, from *tgbotapi.User) {
	if from == nil {
		return
	}
	u, err := b.db.GetUser(ctx, from.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.logger.Warn("Failed to load user", zap.Int64("user_id", from.ID), zap.Error(err))
		}
		return
	}

	if time.Since(u.LastActive) > 24*time.Hour {
		if err := b.db.Credit(ctx, u.ID, dailyBonusCoins); err != nil {
			b.logger.Warn("Failed to credit daily bonus", zap.Int64("user_id", u.ID), zap.Error(err))
		} else {
			b.sendText(u.ID, fmt.Sprintf("🎁 Ежедневный бонус: +%d BS Coin!", dailyBonusCoins))
		}
	}

	if err := b.db.UpdateLastActive(ctx, u.ID, time.Now()); err != nil {
		b.logger.Warn("Failed to update last active", zap.Int64("user_id", u.ID), zap.Error(err))
	}
}

// isAdminUser checks both the static config list and the user record
func (b *Bot) isAdminUser(ctx context.Context, userID int64) bool {
	if b.cfg.IsAdmin(userID) {
		return true
	}
	u, err := b.db.GetUser(ctx, userID)
	return err == nil && u.IsAdmin
}

func (b *Bot) botUsername() string {
	if b.api == nil {
		return ""
	}
	return b.api.Self.UserName
}

// isSubscribed checks membership in the community channel. Errors fail
// open so a Telegram hiccup never locks customers out of the shop.
func (b *Bot) isSubscribed(userID int64) bool {
	if b.cfg.ChannelUsername == "" || b.api == nil {
		return true
	}
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: b.cfg.ChannelUsername,
			UserID:             userID,
		},
	})
	if err != nil {
		b.logger.Warn("Failed to check channel membership", zap.Int64("user_id", userID), zap.Error(err))
		return true
	}
	switch member.Status {
	case "creator", "administrator", "member":
		return true
	}
	return false
}

// requireSubscribed gates shop features behind the channel subscription.
// Admins skip the check.
func (b *Bot) requireSubscribed(ctx context.Context, chatID, userID int64) bool {
	if b.isAdminUser(ctx, userID) || b.isSubscribed(userID) {
		return true
	}

	msg := tgbotapi.NewMessage(chatID, "Для доступа к магазину подпишитесь на наш канал 👇")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📢 Подписаться",
				"https://t.me/"+strings.TrimPrefix(b.cfg.ChannelUsername, "@")),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Я подписался", "check_subscription"),
		),
	)
	b.sendMessage(msg)
	return false
}

// handleStart registers the user, applies referral and product deep
// links and shows the main menu.
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	args := message.CommandArguments()

	_, err := b.db.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		u := &models.User{
			ID:           userID,
			FirstName:    message.From.FirstName,
			LastName:     message.From.LastName,
			Username:     message.From.UserName,
			ReferralCode: fmt.Sprintf("ref_%d", userID),
			LastActive:   time.Now(),
		}
		if err := b.db.CreateUser(ctx, u); err != nil {
			b.logger.Error("Failed to register user", zap.Int64("user_id", userID), zap.Error(err))
			b.sendText(message.Chat.ID, "Не удалось зарегистрироваться, попробуйте позже.")
			return
		}
		b.logger.Info("User registered", zap.Int64("user_id", userID), zap.String("username", u.Username))

		if referrerID, ok := parseDeepLink(args, "ref_"); ok && referrerID != userID {
			b.applyReferral(ctx, referrerID, userID)
		}
	} else if err != nil {
		b.logger.Error("Failed to load user", zap.Int64("user_id", userID), zap.Error(err))
	}

	if !b.requireSubscribed(ctx, message.Chat.ID, userID) {
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID,
		"Добро пожаловать в магазин! 🛍️\n\nВыбирайте товары, копите BS Coin и обменивайте их на скидки и эксклюзивы.")
	msg.ReplyMarkup = mainMenuKeyboard()
	b.sendMessage(msg)

	if productID, ok := parseDeepLink(args, "product_"); ok {
		b.showProductCard(ctx, message.Chat.ID, productID)
	}
}

// parseDeepLink extracts the numeric id from a /start payload like
// "ref_123" or "product_42".
func parseDeepLink(args, prefix string) (int64, bool) {
	if !strings.HasPrefix(args, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args, prefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (b *Bot) applyReferral(ctx context.Context, referrerID, refereeID int64) {
	if _, err := b.db.GetUser(ctx, referrerID); err != nil {
		return // unknown or stale referral code
	}
	if err := b.db.AddReferral(ctx, referrerID, refereeID); err != nil {
		b.logger.Warn("Failed to record referral",
			zap.Int64("referrer_id", referrerID), zap.Int64("referee_id", refereeID), zap.Error(err))
		return
	}
	if err := b.db.Credit(ctx, referrerID, referralBonusCoins); err != nil {
		b.logger.Error("Failed to credit referral bonus", zap.Int64("referrer_id", referrerID), zap.Error(err))
		return
	}
	b.sendText(referrerID, fmt.Sprintf("🤝 По вашей ссылке пришел новый покупатель! +%d BS Coin", referralBonusCoins))
}

func (b *Bot) handleCatalog(ctx context.Context, message *tgbotapi.Message) {
	b.showCatalog(ctx, message.Chat.ID, message.From.ID)
}

func (b *Bot) showCatalog(ctx context.Context, chatID, userID int64) {
	if !b.requireSubscribed(ctx, chatID, userID) {
		return
	}

	products, err := b.db.ListProducts(ctx, 50)
	if err != nil {
		b.logger.Error("Failed to list products", zap.Error(err))
		b.sendText(chatID, "Не удалось загрузить каталог, попробуйте позже.")
		return
	}
	if len(products) == 0 {
		b.sendText(chatID, "Каталог пока пуст.")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(products))
	for _, p := range products {
		label := fmt.Sprintf("%s — %s ₽", p.Name, formatPrice(p.Price))
		if p.IsExclusive {
			label = fmt.Sprintf("%s — %d 💎", p.Name, p.CoinPrice)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("product:%d", p.ID)),
		))
	}

	msg := tgbotapi.NewMessage(chatID, "🛍️ Каталог:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.sendMessage(msg)
}

func (b *Bot) handleExclusive(ctx context.Context, message *tgbotapi.Message) {
	if !b.requireSubscribed(ctx, message.Chat.ID, message.From.ID) {
		return
	}

	products, err := b.db.ListExclusiveProducts(ctx, 50)
	if err != nil {
		b.logger.Error("Failed to list exclusive products", zap.Error(err))
		b.sendText(message.Chat.ID, "Не удалось загрузить эксклюзивы, попробуйте позже.")
		return
	}
	if len(products) == 0 {
		b.sendText(message.Chat.ID, "Эксклюзивных товаров сейчас нет. Загляните позже!")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(products))
	for _, p := range products {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s — %d 💎", p.Name, p.CoinPrice),
				fmt.Sprintf("product:%d", p.ID),
			),
		))
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, "💎 Эксклюзивные товары за BS Coin:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.sendMessage(msg)
}

// showProductCard sends the product photo and description with a buy
// button. Only sizes that are actually in stock are listed.
func (b *Bot) showProductCard(ctx context.Context, chatID int64, productID int64) {
	p, err := b.db.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.sendText(chatID, "Товар не найден. Возможно, он уже распродан.")
			return
		}
		b.logger.Error("Failed to load product", zap.Int64("product_id", productID), zap.Error(err))
		b.sendText(chatID, "Не удалось загрузить товар, попробуйте позже.")
		return
	}

	variations, err := b.db.ListVariations(ctx, productID)
	if err != nil {
		b.logger.Error("Failed to load variations", zap.Int64("product_id", productID), zap.Error(err))
		b.sendText(chatID, "Не удалось загрузить товар, попробуйте позже.")
		return
	}

	var inStock []string
	for _, v := range variations {
		if v.Quantity > 0 {
			inStock = append(inStock, v.Size)
		}
	}
	inStock = sortSizes(inStock)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n%s\n\n", p.Name, p.Description)
	if p.IsExclusive {
		fmt.Fprintf(&sb, "💎 Цена: %d BS Coin\n", p.CoinPrice)
	} else {
		fmt.Fprintf(&sb, "💰 Цена: %s ₽\n", formatPrice(p.Price))
	}
	if len(inStock) == 0 {
		sb.WriteString("\n😔 Все размеры распроданы.")
	} else {
		fmt.Fprintf(&sb, "📏 Размеры в наличии: %s", strings.Join(inStock, ", "))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛒 Купить", fmt.Sprintf("buy:%d", p.ID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ К каталогу", "back_to_catalog"),
		),
	)

	if p.PhotoID != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(p.PhotoID))
		photo.Caption = sb.String()
		photo.ReplyMarkup = keyboard
		b.sendMessage(photo)
		return
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = keyboard
	b.sendMessage(msg)
}

func (b *Bot) handleProfile(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	u, err := b.db.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.sendText(message.Chat.ID, "Вы еще не зарегистрированы. Отправьте /start.")
			return
		}
		b.logger.Error("Failed to load user", zap.Int64("user_id", userID), zap.Error(err))
		b.sendText(message.Chat.ID, "Не удалось загрузить профиль, попробуйте позже.")
		return
	}

	referrals, err := b.db.CountReferrals(ctx, userID)
	if err != nil {
		b.logger.Warn("Failed to count referrals", zap.Int64("user_id", userID), zap.Error(err))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 %s\n\n", strings.TrimSpace(u.FirstName+" "+u.LastName))
	fmt.Fprintf(&sb, "💰 BS Coin: %d\n", u.Coins)
	fmt.Fprintf(&sb, "🏷 Скидка: %d%%\n", u.Discount)
	fmt.Fprintf(&sb, "📦 Заказов: %d\n", u.Orders)
	fmt.Fprintf(&sb, "🤝 Приглашено друзей: %d\n", referrals)

	if len(u.Achievements) > 0 {
		sb.WriteString("\n🏆 Достижения:\n")
		for _, a := range u.Achievements {
			fmt.Fprintf(&sb, "  %s\n", achievementTitle(a))
		}
	}

	orders, err := b.db.ListOrdersByUser(ctx, userID, 5)
	if err != nil {
		b.logger.Warn("Failed to list user orders", zap.Int64("user_id", userID), zap.Error(err))
	} else if len(orders) > 0 {
		sb.WriteString("\n🧾 Последние заказы:\n")
		for _, o := range orders {
			fmt.Fprintf(&sb, "  №%d — %s\n", o.ID, orderStatusTitle(o.Status))
		}
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, sb.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("💱 %d монет → %d%% скидка", exchangeCoinCost, exchangeDiscountPt),
				"exchange_coin",
			),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❓ Как получить монеты", "how_to_get_coins"),
		),
	)
	b.sendMessage(msg)
}

func achievementTitle(name string) string {
	switch name {
	case achFirstOrder:
		return "🥇 Первый заказ"
	case achCommentator:
		return "💬 Активный комментатор (+1% к скидке)"
	default:
		return name
	}
}

// orderStatusTitle renders a stored status for the profile view.
// Rejected statuses carry the reason after a colon.
func orderStatusTitle(status string) string {
	if strings.HasPrefix(status, models.StatusRejected) {
		return "❌ отклонен"
	}
	switch status {
	case models.StatusPending:
		return "⏳ ждет подтверждения"
	case models.StatusConfirmed:
		return "✅ подтвержден"
	case models.StatusPaid:
		return "💳 оплачен"
	case models.StatusShipped:
		return "🚚 отправлен"
	case models.StatusDelivered:
		return "📬 доставлен"
	default:
		return status
	}
}

func (b *Bot) handleRef(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	referrals, err := b.db.CountReferrals(ctx, userID)
	if err != nil {
		b.logger.Warn("Failed to count referrals", zap.Int64("user_id", userID), zap.Error(err))
	}

	link := fmt.Sprintf("https://t.me/%s?start=ref_%d", b.botUsername(), userID)
	b.sendText(message.Chat.ID, fmt.Sprintf(
		"🤝 Ваша реферальная ссылка:\n%s\n\nЗа каждого друга вы получите %d BS Coin.\nУже приглашено: %d",
		link, referralBonusCoins, referrals))
}

func (b *Bot) handleReviews(ctx context.Context, message *tgbotapi.Message) {
	reviews, err := b.db.ListReviews(ctx, 5)
	if err != nil {
		b.logger.Error("Failed to list reviews", zap.Error(err))
		b.sendText(message.Chat.ID, "Не удалось загрузить отзывы, попробуйте позже.")
		return
	}

	var sb strings.Builder
	if len(reviews) == 0 {
		sb.WriteString("Отзывов пока нет. Будьте первым!")
	} else {
		sb.WriteString("⭐ Отзывы покупателей:\n\n")
		for _, r := range reviews {
			fmt.Fprintf(&sb, "— %s:\n%s\n\n", r.Author, r.Text)
		}
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, sb.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Оставить отзыв", "add_review"),
		),
	)
	b.sendMessage(msg)
}

func (b *Bot) handleSupport(message *tgbotapi.Message) {
	b.sendText(message.Chat.ID,
		"📞 Поддержка\n\nПо вопросам заказов и доставки напишите нам, и мы ответим в течение дня.")
}

// handleCancel aborts the current flow, if any
func (b *Bot) handleCancel(message *tgbotapi.Message) {
	b.flows.Clear(message.From.ID)
	msg := tgbotapi.NewMessage(message.Chat.ID, "Действие отменено.")
	msg.ReplyMarkup = mainMenuKeyboard()
	b.sendMessage(msg)
}
