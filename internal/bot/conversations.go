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
	"shopbot/internal/storage"
)

var deliveryMethods = []struct{ key, label string }{
	{"cdek", "СДЭК"},
	{"post", "Почта России"},
	{"boxberry", "Boxberry"},
	{"other", "Другой способ"},
}

func deliveryLabel(key string) string {
	for _, m := range deliveryMethods {
		if m.key == key {
			return m.label
		}
	}
	return key
}

func deliveryKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(deliveryMethods))
	for _, m := range deliveryMethods {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(m.label, "delivery:"+m.key),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func validPhone(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 10 && digits <= 15
}

// cbBuy starts the order placement flow for a product
func (b *Bot) cbBuy(ctx context.Context, query *tgbotapi.CallbackQuery, arg string) {
	productID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return
	}
	chatID := query.Message.Chat.ID
	userID := query.From.ID

	p, err := b.db.GetProduct(ctx, productID)
	if err != nil {
		b.sendText(chatID, "Товар не найден. Возможно, он уже распродан.")
		return
	}

	if p.IsExclusive {
		u, err := b.db.GetUser(ctx, userID)
		if err != nil {
			b.sendText(chatID, "Вы еще не зарегистрированы. Отправьте /start.")
			return
		}
		// Gate on the cheapest in-stock size so a variation-level
		// coin price never blocks a buyer who can afford one.
		need := cheapestCoinPrice(ctx, b.db, p)
		if u.Coins < need {
			b.sendText(chatID, fmt.Sprintf(
				"Недостаточно BS Coin: нужно %d, у вас %d.\nНакопить монеты помогут ежедневные бонусы и приглашения друзей.",
				need, u.Coins))
			return
		}
	}

	b.flows.Set(userID, &flow.OrderPlacement{Step: flow.StepSelectSize, ProductID: productID})
	b.sendSizeKeyboard(ctx, chatID, productID)
}

func (b *Bot) sendSizeKeyboard(ctx context.Context, chatID, productID int64) {
	variations, err := b.db.ListVariations(ctx, productID)
	if err != nil {
		b.logger.Error("Failed to load variations", zap.Int64("product_id", productID), zap.Error(err))
		b.sendText(chatID, "Не удалось загрузить размеры, попробуйте позже.")
		return
	}

	var sizes []string
	for _, v := range variations {
		if v.Quantity > 0 {
			sizes = append(sizes, v.Size)
		}
	}
	sizes = sortSizes(sizes)
	if len(sizes) == 0 {
		b.sendText(chatID, "😔 Все размеры распроданы.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, s := range sizes {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(s, "size:"+s))
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	msg := tgbotapi.NewMessage(chatID, "📏 Выберите размер:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.sendMessage(msg)
}

func (b *Bot) cbSize(ctx context.Context, query *tgbotapi.CallbackQuery, size string) {
	st, ok := b.flows.Get(query.From.ID).(*flow.OrderPlacement)
	if !ok {
		return
	}
	b.acceptSize(ctx, query.Message.Chat.ID, query.From.ID, st, size)
}

// cheapestCoinPrice returns the lowest coin price among in-stock
// sizes, falling back to the product-level price.
func cheapestCoinPrice(ctx context.Context, db storage.Storage, p *models.Product) int64 {
	variations, err := db.ListVariations(ctx, p.ID)
	if err != nil {
		return p.CoinPrice
	}
	need := int64(0)
	for i := range variations {
		if variations[i].Quantity <= 0 {
			continue
		}
		_, coins := order.Quote(p, &variations[i])
		if need == 0 || coins < need {
			need = coins
		}
	}
	if need == 0 {
		return p.CoinPrice
	}
	return need
}

func (b *Bot) acceptSize(ctx context.Context, chatID, userID int64, st *flow.OrderPlacement, size string) {
	v, err := b.db.GetVariation(ctx, st.ProductID, size)
	if err != nil || v.Quantity <= 0 {
		b.sendText(chatID, "Этот размер недоступен. Выберите другой из списка.")
		return
	}

	// Size-level coin prices override the product's, so the balance
	// is rechecked against the exact size the buyer picked.
	if p, perr := b.db.GetProduct(ctx, st.ProductID); perr == nil && p.IsExclusive {
		if u, uerr := b.db.GetUser(ctx, userID); uerr == nil {
			if _, coins := order.Quote(p, v); u.Coins < coins {
				b.sendText(chatID, fmt.Sprintf(
					"Для этого размера нужно %d BS Coin, у вас %d. Выберите другой размер:", coins, u.Coins))
				return
			}
		}
	}

	st.Size = size
	if st.Editing == "size" {
		st.Editing = ""
		b.showOrderReview(ctx, chatID, userID, st)
		return
	}
	st.Step = flow.StepCity
	b.sendText(chatID, "🏙️ Введите ваш город:")
}

// continueOrder advances the placement flow on a plain message
func (b *Bot) continueOrder(ctx context.Context, message *tgbotapi.Message, st *flow.OrderPlacement) {
	chatID := message.Chat.ID
	userID := message.From.ID
	text := strings.TrimSpace(message.Text)

	switch st.Step {
	case flow.StepSelectSize:
		b.acceptSize(ctx, chatID, userID, st, text)

	case flow.StepCity:
		if text == "" {
			b.sendText(chatID, "🏙️ Введите ваш город:")
			return
		}
		st.City = text
		st.Step = flow.StepAddress
		b.sendText(chatID, "📍 Введите адрес доставки:")

	case flow.StepAddress:
		if text == "" {
			b.sendText(chatID, "📍 Введите адрес доставки:")
			return
		}
		st.Address = text
		st.Step = flow.StepFullName
		b.sendText(chatID, "👤 Введите ФИО получателя:")

	case flow.StepFullName:
		if text == "" {
			b.sendText(chatID, "👤 Введите ФИО получателя:")
			return
		}
		st.FullName = text
		st.Step = flow.StepPhone
		b.sendText(chatID, "📞 Введите номер телефона:")

	case flow.StepPhone:
		if !validPhone(text) {
			b.sendText(chatID, "Номер выглядит неполным. Введите телефон в формате +7XXXXXXXXXX:")
			return
		}
		st.Phone = text
		st.Step = flow.StepDelivery
		msg := tgbotapi.NewMessage(chatID, "🚚 Выберите способ доставки:")
		msg.ReplyMarkup = deliveryKeyboard()
		b.sendMessage(msg)

	case flow.StepDelivery:
		b.sendText(chatID, "Выберите способ доставки кнопкой выше 👆")

	case flow.StepCustomDelivery:
		if text == "" {
			b.sendText(chatID, "🚚 Опишите желаемый способ доставки:")
			return
		}
		st.Delivery = text
		b.afterDelivery(ctx, chatID, userID, st)

	case flow.StepPaymentProof:
		if len(message.Photo) == 0 {
			b.sendText(chatID, "Пришлите, пожалуйста, скриншот перевода (фото).")
			return
		}
		st.ProofFileID = message.Photo[len(message.Photo)-1].FileID
		b.showOrderReview(ctx, chatID, userID, st)

	case flow.StepReview:
		b.showOrderReview(ctx, chatID, userID, st)

	case flow.StepEditing:
		b.applyEdit(ctx, chatID, userID, st, text)
	}
}

func (b *Bot) cbDelivery(ctx context.Context, query *tgbotapi.CallbackQuery, arg string) {
	st, ok := b.flows.Get(query.From.ID).(*flow.OrderPlacement)
	if !ok || (st.Step != flow.StepDelivery && st.Editing != "delivery") {
		return
	}
	chatID := query.Message.Chat.ID

	if arg == "other" {
		st.Step = flow.StepCustomDelivery
		b.sendText(chatID, "🚚 Опишите желаемый способ доставки:")
		return
	}
	st.Delivery = deliveryLabel(arg)
	b.afterDelivery(ctx, chatID, query.From.ID, st)
}

// afterDelivery decides whether a payment proof is still needed.
// Coin-priced products are paid from the ledger at commit time, so they
// go straight to the review step.
func (b *Bot) afterDelivery(ctx context.Context, chatID, userID int64, st *flow.OrderPlacement) {
	if st.Editing == "delivery" {
		st.Editing = ""
	}
	if st.ProofFileID != "" {
		b.showOrderReview(ctx, chatID, userID, st)
		return
	}

	p, err := b.db.GetProduct(ctx, st.ProductID)
	if err != nil {
		b.logger.Error("Failed to load product mid-flow", zap.Int64("product_id", st.ProductID), zap.Error(err))
		b.sendText(chatID, "Не удалось оформить заказ, попробуйте позже.")
		return
	}
	if p.IsExclusive {
		b.showOrderReview(ctx, chatID, userID, st)
		return
	}

	st.Step = flow.StepPaymentProof
	b.sendText(chatID, fmt.Sprintf(
		"💳 К оплате: %s ₽\n\nПереведите сумму по реквизитам из закрепленного сообщения канала и пришлите скриншот перевода.",
		formatPrice(b.quoteFor(ctx, userID, st))))
}

// quoteFor computes the amount the buyer will actually be charged,
// including the personal discount.
func (b *Bot) quoteFor(ctx context.Context, userID int64, st *flow.OrderPlacement) float64 {
	p, err := b.db.GetProduct(ctx, st.ProductID)
	if err != nil {
		return 0
	}
	v, err := b.db.GetVariation(ctx, st.ProductID, st.Size)
	if err != nil {
		return p.Price
	}
	rubles, _ := order.Quote(p, v)
	if u, err := b.db.GetUser(ctx, userID); err == nil {
		rubles = order.ApplyDiscount(rubles, u.Discount)
	}
	return rubles
}

// showOrderReview renders the collected order for final confirmation
func (b *Bot) showOrderReview(ctx context.Context, chatID, userID int64, st *flow.OrderPlacement) {
	p, err := b.db.GetProduct(ctx, st.ProductID)
	if err != nil {
		b.logger.Error("Failed to load product mid-flow", zap.Int64("product_id", st.ProductID), zap.Error(err))
		b.sendText(chatID, "Не удалось оформить заказ, попробуйте позже.")
		return
	}

	st.Step = flow.StepReview
	preview := &models.Order{
		Size:     st.Size,
		City:     st.City,
		Address:  st.Address,
		FullName: st.FullName,
		Phone:    st.Phone,
		Delivery: st.Delivery,
	}
	if p.IsExclusive {
		if v, err := b.db.GetVariation(ctx, st.ProductID, st.Size); err == nil {
			_, preview.CoinPrice = order.Quote(p, v)
		} else {
			preview.CoinPrice = p.CoinPrice
		}
	} else {
		preview.Price = b.quoteFor(ctx, userID, st)
	}

	msg := tgbotapi.NewMessage(chatID, "Проверьте заказ:\n\n"+order.Summary(preview, p)+"\n\nВсе верно?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", "confirm_order"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Изменить", "edit:"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", "cancel_order"),
		),
	)
	b.sendMessage(msg)
}

func (b *Bot) cbEdit(ctx context.Context, query *tgbotapi.CallbackQuery, field string) {
	st, ok := b.flows.Get(query.From.ID).(*flow.OrderPlacement)
	if !ok {
		return
	}
	chatID := query.Message.Chat.ID
	userID := query.From.ID

	switch field {
	case "":
		msg := tgbotapi.NewMessage(chatID, "Что изменить?")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📏 Размер", "edit:size"),
				tgbotapi.NewInlineKeyboardButtonData("🏙️ Город", "edit:city"),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📍 Адрес", "edit:address"),
				tgbotapi.NewInlineKeyboardButtonData("👤 ФИО", "edit:name"),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📞 Телефон", "edit:phone"),
				tgbotapi.NewInlineKeyboardButtonData("🚚 Доставка", "edit:delivery"),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "edit:back"),
			),
		)
		b.sendMessage(msg)
	case "back":
		b.showOrderReview(ctx, chatID, userID, st)
	case "size":
		st.Editing = "size"
		st.Step = flow.StepSelectSize
		b.sendSizeKeyboard(ctx, chatID, st.ProductID)
	case "delivery":
		st.Editing = "delivery"
		st.Step = flow.StepDelivery
		msg := tgbotapi.NewMessage(chatID, "🚚 Выберите способ доставки:")
		msg.ReplyMarkup = deliveryKeyboard()
		b.sendMessage(msg)
	case "city", "address", "name", "phone":
		st.Editing = field
		st.Step = flow.StepEditing
		b.sendText(chatID, editPrompt(field))
	}
}

func editPrompt(field string) string {
	switch field {
	case "city":
		return "🏙️ Введите новый город:"
	case "address":
		return "📍 Введите новый адрес:"
	case "name":
		return "👤 Введите новое ФИО:"
	case "phone":
		return "📞 Введите новый телефон:"
	}
	return "Введите новое значение:"
}

func (b *Bot) applyEdit(ctx context.Context, chatID, userID int64, st *flow.OrderPlacement, text string) {
	if text == "" {
		b.sendText(chatID, editPrompt(st.Editing))
		return
	}
	switch st.Editing {
	case "city":
		st.City = text
	case "address":
		st.Address = text
	case "name":
		st.FullName = text
	case "phone":
		if !validPhone(text) {
			b.sendText(chatID, "Номер выглядит неполным. Введите телефон в формате +7XXXXXXXXXX:")
			return
		}
		st.Phone = text
	}
	st.Editing = ""
	b.showOrderReview(ctx, chatID, userID, st)
}

// cbConfirmOrder commits the collected order through the engine
func (b *Bot) cbConfirmOrder(ctx context.Context, query *tgbotapi.CallbackQuery) {
	userID := query.From.ID
	chatID := query.Message.Chat.ID

	st, ok := b.flows.Get(userID).(*flow.OrderPlacement)
	if !ok || st.Step != flow.StepReview {
		return
	}

	o, err := b.engine.Place(ctx, order.PlaceInput{
		UserID:      userID,
		ProductID:   st.ProductID,
		Size:        st.Size,
		City:        st.City,
		Address:     st.Address,
		FullName:    st.FullName,
		Phone:       st.Phone,
		Delivery:    st.Delivery,
		ProofFileID: st.ProofFileID,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInsufficientStock):
			// Someone else took the last unit. Send the buyer back to
			// size selection instead of dropping the whole flow.
			st.Size = ""
			st.Step = flow.StepSelectSize
			b.sendText(chatID, "😔 К сожалению, этот размер только что закончился. Выберите другой:")
			b.sendSizeKeyboard(ctx, chatID, st.ProductID)
		case errors.Is(err, storage.ErrInsufficientBalance):
			b.flows.Clear(userID)
			b.sendText(chatID, "Недостаточно BS Coin для покупки.\nНакопить монеты помогут ежедневные бонусы и приглашения друзей.")
		default:
			b.logger.Error("Failed to place order", zap.Int64("user_id", userID), zap.Error(err))
			b.sendText(chatID, "Не удалось оформить заказ, попробуйте еще раз чуть позже.")
		}
		return
	}

	b.flows.Clear(userID)
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"✅ Заказ №%d оформлен!\nМы сообщим, когда администратор подтвердит его.", o.ID))
	msg.ReplyMarkup = mainMenuKeyboard()
	b.sendMessage(msg)

	b.afterOrderPlaced(ctx, userID)
}

// afterOrderPlaced updates gamification counters once the order row is
// safely committed. Failures here never affect the order itself.
func (b *Bot) afterOrderPlaced(ctx context.Context, userID int64) {
	if err := b.db.IncrementOrders(ctx, userID); err != nil {
		b.logger.Warn("Failed to bump order counter", zap.Int64("user_id", userID), zap.Error(err))
	}

	awarded, err := b.db.AddAchievement(ctx, userID, achFirstOrder)
	if err != nil {
		b.logger.Warn("Failed to check first order achievement", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if !awarded {
		return
	}
	if err := b.db.Credit(ctx, userID, firstOrderBonus); err != nil {
		b.logger.Error("Failed to credit first order bonus", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	b.sendText(userID, fmt.Sprintf("🥇 Достижение «Первый заказ»: +%d BS Coin!", firstOrderBonus))
}

func (b *Bot) cbCancelOrder(query *tgbotapi.CallbackQuery) {
	b.flows.Clear(query.From.ID)
	msg := tgbotapi.NewMessage(query.Message.Chat.ID, "Заказ отменен.")
	msg.ReplyMarkup = mainMenuKeyboard()
	b.sendMessage(msg)
}

// cbAddReview starts the review flow
func (b *Bot) cbAddReview(query *tgbotapi.CallbackQuery) {
	b.flows.Set(query.From.ID, &flow.ReviewAuthoring{})
	b.sendText(query.Message.Chat.ID, "✍️ Напишите ваш отзыв:")
}

func (b *Bot) continueReview(ctx context.Context, message *tgbotapi.Message, st *flow.ReviewAuthoring) {
	chatID := message.Chat.ID

	if !st.AwaitingPhoto {
		text := strings.TrimSpace(message.Text)
		if text == "" {
			b.sendText(chatID, "✍️ Напишите ваш отзыв:")
			return
		}
		st.Text = text
		st.AwaitingPhoto = true
		msg := tgbotapi.NewMessage(chatID, "Прикрепите фото к отзыву или нажмите «Пропустить».")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("⏭ Пропустить", "review_skip"),
			),
		)
		b.sendMessage(msg)
		return
	}

	if len(message.Photo) == 0 {
		b.sendText(chatID, "Прикрепите фото или нажмите «Пропустить».")
		return
	}
	st.PhotoID = message.Photo[len(message.Photo)-1].FileID
	b.finalizeReview(ctx, chatID, message.From, st)
}

func (b *Bot) cbReviewSkip(ctx context.Context, query *tgbotapi.CallbackQuery) {
	st, ok := b.flows.Get(query.From.ID).(*flow.ReviewAuthoring)
	if !ok || !st.AwaitingPhoto {
		return
	}
	b.finalizeReview(ctx, query.Message.Chat.ID, query.From, st)
}

func (b *Bot) finalizeReview(ctx context.Context, chatID int64, from *tgbotapi.User, st *flow.ReviewAuthoring) {
	userID := from.ID
	author := from.FirstName
	if u, err := b.db.GetUser(ctx, userID); err == nil && u.FirstName != "" {
		author = u.FirstName
	}

	if _, err := b.db.CreateReview(ctx, &models.Review{
		UserID:   userID,
		Text:     st.Text,
		PhotoURL: st.PhotoID,
		Author:   author,
	}); err != nil {
		b.logger.Error("Failed to save review", zap.Int64("user_id", userID), zap.Error(err))
		b.sendText(chatID, "Не удалось сохранить отзыв, попробуйте позже.")
		return
	}
	b.flows.Clear(userID)
	b.sendText(chatID, "⭐ Спасибо за отзыв!")

	b.bumpCommentCount(ctx, userID)
}

// bumpCommentCount credits one comment toward the commentator
// achievement and applies its discount the first time the bar is hit.
func (b *Bot) bumpCommentCount(ctx context.Context, userID int64) {
	if err := b.db.IncrementComments(ctx, userID); err != nil {
		b.logger.Warn("Failed to bump comment counter", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	u, err := b.db.GetUser(ctx, userID)
	if err != nil || u.Comments < commentatorAt {
		return
	}
	awarded, err := b.db.AddAchievement(ctx, userID, achCommentator)
	if err != nil || !awarded {
		return
	}
	if err := b.db.AddDiscount(ctx, userID, 1); err != nil {
		b.logger.Error("Failed to apply commentator discount", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	b.sendText(userID, "💬 Достижение «Активный комментатор»: ваша скидка увеличена на 1%!")
}

// countTopicComment records a message posted in a shop discussion
// topic by a registered user. Bots and strangers are ignored.
func (b *Bot) countTopicComment(ctx context.Context, from *tgbotapi.User) {
	if from == nil || from.IsBot {
		return
	}
	if _, err := b.db.GetUser(ctx, from.ID); err != nil {
		return
	}
	b.bumpCommentCount(ctx, from.ID)
}
