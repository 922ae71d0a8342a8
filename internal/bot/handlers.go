package bot

import (
	"context"

	tgbotapi "github.com/matterbridge/telegram-bot-api/v6"
	"go.uber.org/zap"

	"shopbot/internal/flow"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			if message.Chat != nil {
				b.sendText(message.Chat.ID, "Произошла ошибка при обработке запроса. Попробуйте еще раз.")
			}
		}
	}()

	// Only private chats drive conversations. Messages in the shop
	// chat's discussion topics still count toward the commentator
	// achievement before being dropped.
	if message.Chat == nil || !message.Chat.IsPrivate() {
		if message.Chat != nil && message.Chat.ID == b.cfg.ShopChatID && message.MessageThreadID != 0 {
			b.countTopicComment(context.Background(), message.From)
		}
		return
	}

	userID := message.From.ID
	ctx := context.Background()

	b.touchUser(ctx, message.From)

	// A command or a persistent-menu button always interrupts
	// whatever flow is in progress.
	if state := b.flows.Get(userID); state != nil {
		if message.IsCommand() || isMenuButton(message.Text) {
			b.flows.Clear(userID)
		} else {
			b.handleFlow(ctx, message, state)
			return
		}
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	b.handleMenuButton(ctx, message)
}

// handleFlow routes a non-command message to the flow the user is in
func (b *Bot) handleFlow(ctx context.Context, message *tgbotapi.Message, state flow.State) {
	switch st := state.(type) {
	case *flow.OrderPlacement:
		b.continueOrder(ctx, message, st)
	case *flow.ProductCreation:
		b.continueProductCreation(ctx, message, st)
	case *flow.ReviewAuthoring:
		b.continueReview(ctx, message, st)
	case *flow.PostCreation:
		b.continuePost(ctx, message, st)
	case *flow.RejectionPrompt:
		b.continueRejection(ctx, message, st)
	default:
		b.logger.Warn("Unknown flow state, dropping it", zap.Int64("user_id", message.From.ID))
		b.flows.Clear(message.From.ID)
	}
}

// handleCommand dispatches a bot command
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(ctx, message)
	case "catalog":
		b.handleCatalog(ctx, message)
	case "exclusive":
		b.handleExclusive(ctx, message)
	case "profile":
		b.handleProfile(ctx, message)
	case "ref":
		b.handleRef(ctx, message)
	case "reviews":
		b.handleReviews(ctx, message)
	case "support":
		b.handleSupport(message)
	case "cancel":
		b.handleCancel(message)
	case "admin":
		b.handleAdmin(ctx, message)
	case "add_product":
		b.handleAddProduct(ctx, message)
	case "add_post":
		b.handleAddPost(ctx, message)
	case "clear_products":
		b.handleClearProducts(ctx, message)
	case "add_coins":
		b.handleAddCoins(ctx, message)
	case "set_discount":
		b.handleSetDiscount(ctx, message)
	case "user_info":
		b.handleUserInfo(ctx, message)
	case "set_status":
		b.handleSetStatus(ctx, message)
	default:
		b.sendText(message.Chat.ID, "Неизвестная команда. Используйте /start для списка команд.")
	}
}

// handleMenuButton maps the persistent reply keyboard to commands
func isMenuButton(text string) bool {
	switch text {
	case menuCatalog, menuExclusive, menuProfile, menuInvite, menuReviews, menuSupport:
		return true
	}
	return false
}

func (b *Bot) handleMenuButton(ctx context.Context, message *tgbotapi.Message) {
	switch message.Text {
	case menuCatalog:
		b.handleCatalog(ctx, message)
	case menuExclusive:
		b.handleExclusive(ctx, message)
	case menuProfile:
		b.handleProfile(ctx, message)
	case menuInvite:
		b.handleRef(ctx, message)
	case menuReviews:
		b.handleReviews(ctx, message)
	case menuSupport:
		b.handleSupport(message)
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()
	b.answerCallback(query.ID)
	b.dispatchCallback(ctx, query)
}
