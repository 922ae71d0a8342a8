package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/matterbridge/telegram-bot-api/v6"
	"go.uber.org/zap"

	"shopbot/internal/flow"
	"shopbot/internal/models"
	"shopbot/internal/order"
)

// cbApprove confirms an order. The engine guarantees the decision is
// applied at most once even if two admins race on the button.
func (b *Bot) cbApprove(ctx context.Context, query *tgbotapi.CallbackQuery, arg string) {
	if !b.isAdminUser(ctx, query.From.ID) {
		return
	}
	orderID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return
	}

	if _, err := b.engine.Approve(ctx, orderID); err != nil {
		if errors.Is(err, order.ErrAlreadyDecided) {
			b.sendTextInTopic(query.Message.Chat.ID, query.Message.MessageThreadID,
				fmt.Sprintf("Заказ №%d уже обработан.", orderID))
			return
		}
		b.logger.Error("Failed to approve order", zap.Int64("order_id", orderID), zap.Error(err))
		b.sendTextInTopic(query.Message.Chat.ID, query.Message.MessageThreadID,
			fmt.Sprintf("Не удалось подтвердить заказ №%d, попробуйте еще раз.", orderID))
	}
}

// cbReject asks the admin for a reason in private chat; the refund
// happens only after the reason arrives.
func (b *Bot) cbReject(ctx context.Context, query *tgbotapi.CallbackQuery, arg string) {
	if !b.isAdminUser(ctx, query.From.ID) {
		return
	}
	orderID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return
	}

	o, err := b.db.GetOrder(ctx, orderID)
	if err != nil {
		b.logger.Error("Failed to load order for rejection", zap.Int64("order_id", orderID), zap.Error(err))
		return
	}
	if o.Decided() {
		b.sendTextInTopic(query.Message.Chat.ID, query.Message.MessageThreadID,
			fmt.Sprintf("Заказ №%d уже обработан.", orderID))
		return
	}

	b.flows.Set(query.From.ID, &flow.RejectionPrompt{OrderID: orderID})
	b.sendText(query.From.ID, fmt.Sprintf("Введите причину отклонения заказа №%d:", orderID))
}

// continueRejection receives the typed reason and finishes the rejection
func (b *Bot) continueRejection(ctx context.Context, message *tgbotapi.Message, st *flow.RejectionPrompt) {
	chatID := message.Chat.ID
	reason := strings.TrimSpace(message.Text)
	if reason == "" {
		b.sendText(chatID, "Причина не может быть пустой. Введите причину отклонения:")
		return
	}

	b.flows.Clear(message.From.ID)

	if _, err := b.engine.Reject(ctx, st.OrderID, reason); err != nil {
		if errors.Is(err, order.ErrAlreadyDecided) {
			b.sendText(chatID, fmt.Sprintf("Заказ №%d уже обработан.", st.OrderID))
			return
		}
		b.logger.Error("Failed to reject order", zap.Int64("order_id", st.OrderID), zap.Error(err))
		b.sendText(chatID, fmt.Sprintf("Не удалось отклонить заказ №%d, попробуйте еще раз.", st.OrderID))
		return
	}
	b.sendText(chatID, fmt.Sprintf("❌ Заказ №%d отклонен.", st.OrderID))
}

func (b *Bot) handleAdmin(ctx context.Context, message *tgbotapi.Message) {
	if !b.isAdminUser(ctx, message.From.ID) {
		return
	}
	b.sendText(message.Chat.ID, `Команды администратора:

/add_product - добавить товар в каталог
/add_post - опубликовать пост в канале
/clear_products - очистить каталог
/add_coins <user_id> <amount> - начислить BS Coin
/set_discount <user_id> <percent> - установить скидку
/user_info <user_id> - информация о покупателе
/set_status <order_id> <paid|shipped|delivered> - обновить статус заказа`)
}

func (b *Bot) handleClearProducts(ctx context.Context, message *tgbotapi.Message) {
	if !b.isAdminUser(ctx, message.From.ID) {
		return
	}
	if err := b.db.ClearAllProducts(ctx); err != nil {
		b.logger.Error("Failed to clear catalog", zap.Error(err))
		b.sendText(message.Chat.ID, "Не удалось очистить каталог.")
		return
	}
	b.logger.Info("Catalog cleared", zap.Int64("admin_id", message.From.ID))
	b.sendText(message.Chat.ID, "🗑 Каталог очищен.")
}

func (b *Bot) handleAddCoins(ctx context.Context, message *tgbotapi.Message) {
	if !b.isAdminUser(ctx, message.From.ID) {
		return
	}
	userID, amount, ok := parseTwoInts(message.CommandArguments())
	if !ok || amount <= 0 {
		b.sendText(message.Chat.ID, "Использование: /add_coins <user_id> <amount>")
		return
	}
	if err := b.db.Credit(ctx, userID, amount); err != nil {
		b.logger.Error("Failed to credit coins", zap.Int64("user_id", userID), zap.Error(err))
		b.sendText(message.Chat.ID, "Не удалось начислить монеты.")
		return
	}
	b.sendText(message.Chat.ID, fmt.Sprintf("💰 Пользователю %d начислено %d BS Coin.", userID, amount))
	b.sendText(userID, fmt.Sprintf("🎉 Вам начислено %d BS Coin!", amount))
}

func (b *Bot) handleSetDiscount(ctx context.Context, message *tgbotapi.Message) {
	if !b.isAdminUser(ctx, message.From.ID) {
		return
	}
	userID, percent, ok := parseTwoInts(message.CommandArguments())
	if !ok || percent < 0 || percent > 100 {
		b.sendText(message.Chat.ID, "Использование: /set_discount <user_id> <percent>")
		return
	}
	if err := b.db.SetDiscount(ctx, userID, int(percent)); err != nil {
		b.logger.Error("Failed to set discount", zap.Int64("user_id", userID), zap.Error(err))
		b.sendText(message.Chat.ID, "Не удалось установить скидку.")
		return
	}
	b.sendText(message.Chat.ID, fmt.Sprintf("🏷 Скидка пользователя %d установлена: %d%%.", userID, percent))
	b.sendText(userID, fmt.Sprintf("🏷 Ваша скидка теперь %d%%!", percent))
}

func (b *Bot) handleUserInfo(ctx context.Context, message *tgbotapi.Message) {
	if !b.isAdminUser(ctx, message.From.ID) {
		return
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(message.CommandArguments()), 10, 64)
	if err != nil {
		b.sendText(message.Chat.ID, "Использование: /user_info <user_id>")
		return
	}
	u, err := b.db.GetUser(ctx, userID)
	if err != nil {
		b.sendText(message.Chat.ID, fmt.Sprintf("Пользователь %d не найден.", userID))
		return
	}
	referrals, _ := b.db.CountReferrals(ctx, userID)

	b.sendText(message.Chat.ID, fmt.Sprintf(
		"👤 %s %s (@%s)\nID: %d\n💰 BS Coin: %d\n🏷 Скидка: %d%%\n📦 Заказов: %d\n💬 Отзывов: %d\n🤝 Рефералов: %d\n🏆 Достижений: %d\n🕐 Активность: %s",
		u.FirstName, u.LastName, u.Username, u.ID, u.Coins, u.Discount,
		u.Orders, u.Comments, referrals, len(u.Achievements),
		u.LastActive.Format("2006-01-02 15:04")))
}

// handleSetStatus relabels a confirmed order (paid, shipped, delivered)
// and tells the buyer.
func (b *Bot) handleSetStatus(ctx context.Context, message *tgbotapi.Message) {
	if !b.isAdminUser(ctx, message.From.ID) {
		return
	}
	parts := strings.Fields(message.CommandArguments())
	if len(parts) != 2 {
		b.sendText(message.Chat.ID, "Использование: /set_status <order_id> <paid|shipped|delivered>")
		return
	}
	orderID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		b.sendText(message.Chat.ID, "Использование: /set_status <order_id> <paid|shipped|delivered>")
		return
	}

	var label string
	switch strings.ToLower(parts[1]) {
	case "paid":
		label = models.StatusPaid
	case "shipped":
		label = models.StatusShipped
	case "delivered":
		label = models.StatusDelivered
	default:
		b.sendText(message.Chat.ID, "Статус должен быть paid, shipped или delivered.")
		return
	}

	o, err := b.engine.SetStatus(ctx, orderID, label)
	if err != nil {
		b.logger.Error("Failed to set order status", zap.Int64("order_id", orderID), zap.Error(err))
		b.sendText(message.Chat.ID, fmt.Sprintf("Не удалось обновить заказ №%d.", orderID))
		return
	}
	b.sendText(message.Chat.ID, fmt.Sprintf("📦 Заказ №%d: статус обновлен на %s.", o.ID, label))
}

func parseTwoInts(args string) (int64, int64, bool) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err1 := strconv.ParseInt(parts[0], 10, 64)
	b, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return a, b, true
}

// handleAddProduct starts the product creation flow
func (b *Bot) handleAddProduct(ctx context.Context, message *tgbotapi.Message) {
	if !b.isAdminUser(ctx, message.From.ID) {
		return
	}
	b.flows.Set(message.From.ID, &flow.ProductCreation{Step: flow.ProductStepPhoto})
	b.sendText(message.Chat.ID, "📷 Пришлите фото товара:")
}

func (b *Bot) continueProductCreation(ctx context.Context, message *tgbotapi.Message, st *flow.ProductCreation) {
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)

	switch st.Step {
	case flow.ProductStepPhoto:
		if len(message.Photo) == 0 {
			b.sendText(chatID, "📷 Пришлите фото товара:")
			return
		}
		st.PhotoID = message.Photo[len(message.Photo)-1].FileID
		st.Step = flow.ProductStepName
		b.sendText(chatID, "Введите название товара:")

	case flow.ProductStepName:
		if text == "" {
			b.sendText(chatID, "Введите название товара:")
			return
		}
		st.Name = text
		st.Step = flow.ProductStepDescription
		b.sendText(chatID, "Введите описание товара:")

	case flow.ProductStepDescription:
		if text == "" {
			b.sendText(chatID, "Введите описание товара:")
			return
		}
		st.Description = text
		st.Step = flow.ProductStepPrice
		b.sendText(chatID, "Введите цену в рублях:")

	case flow.ProductStepPrice:
		price, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
		if err != nil || price <= 0 {
			b.sendText(chatID, "Введите цену числом, например 4990:")
			return
		}
		st.Price = price
		st.Step = flow.ProductStepExclusive
		msg := tgbotapi.NewMessage(chatID, "Это эксклюзивный товар за BS Coin?")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("💎 Да", "exclusive_yes"),
				tgbotapi.NewInlineKeyboardButtonData("Нет", "exclusive_no"),
			),
		)
		b.sendMessage(msg)

	case flow.ProductStepExclusive:
		b.sendText(chatID, "Выберите вариант кнопкой выше 👆")

	case flow.ProductStepCoinPrice:
		coins, err := strconv.ParseInt(text, 10, 64)
		if err != nil || coins <= 0 {
			b.sendText(chatID, "Введите цену в BS Coin целым числом, например 500:")
			return
		}
		st.CoinPrice = coins
		st.Step = flow.ProductStepSizes
		b.sendText(chatID, "Введите размеры и количество в формате 42:3, 43:1")

	case flow.ProductStepSizes:
		sizes, err := parseSizes(text)
		if err != nil {
			b.sendText(chatID, "Не удалось разобрать размеры. Формат: 42:3, 43:1")
			return
		}
		st.Sizes = sizes
		b.createProduct(ctx, chatID, message.From.ID, st)
	}
}

func (b *Bot) cbProductExclusive(ctx context.Context, query *tgbotapi.CallbackQuery, exclusive bool) {
	st, ok := b.flows.Get(query.From.ID).(*flow.ProductCreation)
	if !ok || st.Step != flow.ProductStepExclusive {
		return
	}
	chatID := query.Message.Chat.ID

	st.IsExclusive = exclusive
	if exclusive {
		st.Step = flow.ProductStepCoinPrice
		b.sendText(chatID, "Введите цену в BS Coin:")
		return
	}
	st.Step = flow.ProductStepSizes
	b.sendText(chatID, "Введите размеры и количество в формате 42:3, 43:1")
}

// parseSizes reads "42:3, 43:1" style input into size quantities
func parseSizes(text string) (map[string]int, error) {
	out := make(map[string]int)
	for _, part := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == '\n' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		size, qtyStr, found := strings.Cut(part, ":")
		if !found {
			return nil, fmt.Errorf("missing quantity in %q", part)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(qtyStr))
		if err != nil || qty < 0 {
			return nil, fmt.Errorf("bad quantity in %q", part)
		}
		out[strings.TrimSpace(size)] = qty
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sizes given")
	}
	return out, nil
}

func (b *Bot) createProduct(ctx context.Context, chatID, adminID int64, st *flow.ProductCreation) {
	p := &models.Product{
		Name:        st.Name,
		Description: st.Description,
		Price:       st.Price,
		CoinPrice:   st.CoinPrice,
		PhotoID:     st.PhotoID,
		IsExclusive: st.IsExclusive,
		IsAvailable: true,
	}
	id, err := b.db.CreateProduct(ctx, p)
	if err != nil {
		b.logger.Error("Failed to create product", zap.String("name", st.Name), zap.Error(err))
		b.sendText(chatID, "Не удалось сохранить товар, попробуйте еще раз.")
		return
	}
	p.ID = id

	for size, qty := range st.Sizes {
		if _, err := b.db.CreateVariation(ctx, &models.Variation{
			ProductID: id,
			Size:      size,
			Quantity:  qty,
		}); err != nil {
			b.logger.Error("Failed to create variation",
				zap.Int64("product_id", id), zap.String("size", size), zap.Error(err))
		}
	}

	b.flows.Clear(adminID)
	b.logger.Info("Product created",
		zap.Int64("product_id", id), zap.String("name", p.Name), zap.Int64("admin_id", adminID))
	b.sendText(chatID, fmt.Sprintf("✅ Товар «%s» добавлен в каталог (№%d).", p.Name, id))

	b.publishProduct(p)
}

// publishProduct posts the new product into the shop topic with a deep
// link button that opens the bot on this product.
func (b *Bot) publishProduct(p *models.Product) {
	if b.cfg.ShopChatID == 0 || b.api == nil {
		return
	}

	caption := fmt.Sprintf("%s\n\n%s\n\n💰 %s ₽", p.Name, p.Description, formatPrice(p.Price))
	if p.IsExclusive {
		caption = fmt.Sprintf("%s\n\n%s\n\n💎 %d BS Coin", p.Name, p.Description, p.CoinPrice)
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🛒 Купить",
				fmt.Sprintf("https://t.me/%s?start=product_%d", b.botUsername(), p.ID)),
		),
	)

	if p.PhotoID != "" {
		photo := tgbotapi.NewPhoto(b.cfg.ShopChatID, tgbotapi.FileID(p.PhotoID))
		photo.Caption = caption
		photo.MessageThreadID = b.cfg.ShopTopicID
		photo.ReplyMarkup = keyboard
		b.sendMessage(photo)
		return
	}
	msg := tgbotapi.NewMessage(b.cfg.ShopChatID, caption)
	msg.MessageThreadID = b.cfg.ShopTopicID
	msg.ReplyMarkup = keyboard
	b.sendMessage(msg)
}

// handleAddPost starts the channel post flow
func (b *Bot) handleAddPost(ctx context.Context, message *tgbotapi.Message) {
	if !b.isAdminUser(ctx, message.From.ID) {
		return
	}
	b.flows.Set(message.From.ID, &flow.PostCreation{})
	b.sendText(message.Chat.ID, "✍️ Введите текст поста:")
}

func (b *Bot) continuePost(ctx context.Context, message *tgbotapi.Message, st *flow.PostCreation) {
	chatID := message.Chat.ID

	if !st.AwaitingPhoto {
		text := strings.TrimSpace(message.Text)
		if text == "" {
			b.sendText(chatID, "✍️ Введите текст поста:")
			return
		}
		st.Text = text
		st.AwaitingPhoto = true
		b.sendText(chatID, "Прикрепите фото или отправьте «-», чтобы опубликовать без фото.")
		return
	}

	if len(message.Photo) > 0 {
		st.PhotoID = message.Photo[len(message.Photo)-1].FileID
	} else if strings.TrimSpace(message.Text) != "-" {
		b.sendText(chatID, "Прикрепите фото или отправьте «-».")
		return
	}

	b.flows.Clear(message.From.ID)
	if b.cfg.ShopChatID == 0 {
		b.sendText(chatID, "Канал магазина не настроен.")
		return
	}

	if st.PhotoID != "" {
		photo := tgbotapi.NewPhoto(b.cfg.ShopChatID, tgbotapi.FileID(st.PhotoID))
		photo.Caption = st.Text
		photo.MessageThreadID = b.cfg.ShopTopicID
		b.sendMessage(photo)
	} else {
		b.sendTextInTopic(b.cfg.ShopChatID, b.cfg.ShopTopicID, st.Text)
	}
	b.sendText(chatID, "📣 Пост опубликован.")
}
