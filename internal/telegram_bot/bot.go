package telegram_bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"spam-moderator/internal/config"
	"spam-moderator/internal/models"
	"spam-moderator/internal/moderation"
	"spam-moderator/internal/vote"
)

// botAPI is the subset of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot moderates group chats and learns from chat commands and votes.
type Bot struct {
	api       botAPI
	selfID    int64
	moderator *moderation.Moderator
	votes     *vote.Manager
	history   *chatHistory
	logger    *zap.Logger
}

// NewBot creates a new Telegram bot instance. It returns nil when the bot is disabled.
func NewBot(cfg *config.Config, moderator *moderation.Moderator, logger *zap.Logger) (*Bot, error) {
	if !cfg.Telegram.Enabled || cfg.Telegram.Token == "" {
		logger.Info("Telegram bot is disabled (telegram.enabled=false or token is empty)")
		return nil, nil
	}

	botLogger := logger.Named("telegram")
	if err := tgbotapi.SetLogger(zap.NewStdLog(botLogger)); err != nil {
		return nil, fmt.Errorf("failed to set Telegram logger: %w", err)
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}
	api.Debug = cfg.Telegram.Debug

	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	return newBot(api, api.Self.ID, moderator, cfg.Telegram, botLogger), nil
}

func newBot(api botAPI, selfID int64, moderator *moderation.Moderator, cfg config.Telegram, logger *zap.Logger) *Bot {
	b := &Bot{
		api:       api,
		selfID:    selfID,
		moderator: moderator,
		history:   newChatHistory(cfg.HistorySize),
		logger:    logger,
	}
	b.votes = vote.NewManager(cfg.VoteTimeout, b.onVoteResolved, logger)
	return b
}

// Start begins listening for updates from Telegram
func (b *Bot) Start(ctx context.Context) error {
	if b == nil {
		return nil // Bot is disabled
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.api.StopReceivingUpdates()
			b.votes.Stop()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.votes.Stop()
				return nil
			}
			b.handleUpdate(update)
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(update.Message)
	}
}

// handleMessage processes incoming messages
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if message.IsCommand() {
		b.handleCommand(message)
		return
	}

	fromSelf := message.From != nil && message.From.ID == b.selfID
	text := messageText(message)
	if !fromSelf && text != "" {
		b.history.add(message.Chat.ID, historyEntry{MessageID: message.MessageID, Text: text})
	}

	decision := b.moderator.Inspect(message.Chat.ID, fromSelf, text)
	switch decision.Action {
	case moderation.ActionDelete:
		b.deleteSpam(message, decision.Text)
	case moderation.ActionVote:
		b.openVote(message, decision.Text)
	}
}

func (b *Bot) handleCommand(message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStartCommand(message)
	case "help":
		b.handleHelpCommand(message)
	case "spam":
		b.handleSpamCommand(message)
	case "ham":
		b.handleHamCommand(message)
	case "classify":
		b.handleClassifyCommand(message)
	case "accuracy":
		b.handleAccuracyCommand(message)
	case "mode":
		b.handleModeCommand(message)
	default:
		b.reply(message, "Unknown command. Use /help to see what I can do.")
	}
}

// deleteSpam removes a spam message in active mode. The message is added to the dataset
// as spam whether or not the deletion succeeded.
func (b *Bot) deleteSpam(message *tgbotapi.Message, text string) {
	_, err := b.api.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID))
	switch {
	case err == nil:
		b.history.remove(message.Chat.ID, message.MessageID)
		b.sendMessage(message.Chat.ID, "Spam message detected! Don't worry, I've already taken care of it.")
	case isNotFound(err):
		b.sendMessage(message.Chat.ID, "Spam message detected! But someone was quicker than me and deleted it first.")
	default:
		b.logger.Warn("Failed to delete spam message",
			zap.Int64("chat_id", message.Chat.ID),
			zap.Int("message_id", message.MessageID),
			zap.Error(err))
		b.reply(message, "Message detected as spam! Sadly I don't have permission to delete it. Please contact an administrator!")
	}

	if err := b.moderator.RecordFeedback(text, models.Spam, models.SourceAuto); err != nil {
		b.logger.Error("Failed to learn from deleted spam", zap.Error(err))
	}
}

func isNotFound(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400 && strings.Contains(strings.ToLower(apiErr.Message), "not found")
	}
	return false
}

// openVote asks the chat whether a suspicious message is spam.
func (b *Bot) openVote(message *tgbotapi.Message, text string) {
	poll := b.votes.Open(message.Chat.ID, message.MessageID, text)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚫 It's spam", voteData(poll.ID, models.Spam)),
			tgbotapi.NewInlineKeyboardButtonData("✅ It's NOT spam", voteData(poll.ID, models.Ham)),
		),
	)

	msg := tgbotapi.NewMessage(message.Chat.ID,
		"⏳ Wait a sec! According to my machine learning model this message looks rather sus. "+
			"Please help me classify it as spam or ham (i.e. not spam).")
	msg.ReplyToMessageID = message.MessageID
	msg.ReplyMarkup = keyboard

	sent, err := b.api.Send(msg)
	if err != nil {
		b.logger.Error("Failed to send vote prompt", zap.Int64("chat_id", message.Chat.ID), zap.Error(err))
		b.votes.Cancel(poll.ID)
		return
	}
	poll.SetPromptMessageID(sent.MessageID)
}

func voteData(pollID string, label models.Label) string {
	return "vote:" + pollID + ":" + label.String()
}

// handleCallbackQuery processes callback queries from inline buttons
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	b.logger.Debug("Received callback query",
		zap.String("data", query.Data),
		zap.Int64("user_id", query.From.ID),
	)

	// Parse callback data: "vote:<poll_id>:spam" or "vote:<poll_id>:ham"
	parts := strings.Split(query.Data, ":")
	if len(parts) != 3 || parts[0] != "vote" {
		b.logger.Warn("Failed to parse callback data: invalid format", zap.String("data", query.Data))
		b.answerCallback(query, "Sorry, I couldn't process that.")
		return
	}

	label, err := models.ParseLabel(parts[2])
	if err != nil {
		b.answerCallback(query, "Sorry, I couldn't process that.")
		return
	}

	result, err := b.votes.Vote(parts[1], query.From.ID, label)
	if err != nil {
		b.answerCallback(query, "This vote is already closed, thanks anyway!")
		return
	}

	switch result {
	case vote.Registered:
		b.answerCallback(query, "Thanks for your vote! You voted for: "+strings.ToUpper(label.String()))
	case vote.AlreadyVoted:
		b.answerCallback(query, "Your vote was already registered, thanks for the feedback!")
	default:
		b.answerCallback(query, "This vote is already closed, thanks anyway!")
	}
}

// onVoteResolved runs when a poll times out.
func (b *Bot) onVoteResolved(p *vote.Poll, res vote.Resolution) {
	var text string
	switch res.Outcome {
	case vote.OutcomeNoVotes:
		text = "🤷 Unable to learn. This message looked rather sus to me, but nobody confirmed it, " +
			"so I couldn't improve my model. Maybe next time."
	case vote.OutcomeTie:
		text = "🤷 Unable to learn. This message looked rather sus to me, but the votes were tied, " +
			"so I couldn't improve my model. Maybe next time."
	default:
		label, _ := res.Outcome.Label()
		verdict := "spam!"
		if label == models.Ham {
			verdict = "ham (i.e. not spam)!"
		}
		text = fmt.Sprintf("🙏 Thanks for the help! Members classified this message as %s "+
			"Thanks to your feedback my model is now even better.", verdict)

		if err := b.moderator.RecordFeedback(p.Text, label, models.SourceVote); err != nil {
			b.logger.Error("Failed to learn from vote", zap.String("poll_id", p.ID), zap.Error(err))
		}
	}

	if prompt := p.PromptMessageID(); prompt != 0 {
		// edited text without a markup drops the buttons
		if _, err := b.api.Send(tgbotapi.NewEditMessageText(p.ChatID, prompt, text)); err != nil {
			b.logger.Error("Failed to edit vote prompt", zap.Error(err))
		}
		return
	}
	b.sendMessage(p.ChatID, text)
}

// handleStartCommand handles the /start command
func (b *Bot) handleStartCommand(message *tgbotapi.Message) {
	name := "there"
	if message.From != nil && message.From.FirstName != "" {
		name = message.From.FirstName
	}
	b.reply(message, fmt.Sprintf(
		"👋 Hello, %s!\n\n"+
			"I keep this chat free of spam with a machine learning model that learns from your feedback.\n\n"+
			"Use /help to see the available commands.",
		name,
	))
}

// handleHelpCommand handles the /help command
func (b *Bot) handleHelpCommand(message *tgbotapi.Message) {
	helpText := "📚 Help:\n\n" +
		"/spam - reply to a message to add it to my dataset as spam\n" +
		"/ham N - add the last N messages of this chat to my dataset as ham (or reply to a message)\n" +
		"/classify - reply to a message and I'll tell you whether it's spam\n" +
		"/accuracy - show my current classification accuracy\n" +
		"/mode [passive|active|learn] - show or change my operating mode\n" +
		"/help - this help"
	b.reply(message, helpText)
}

func (b *Bot) handleSpamCommand(message *tgbotapi.Message) {
	target := message.ReplyToMessage
	if target == nil {
		b.reply(message, "Help me learn! Reply to a spam message with /spam so I can add it to my dataset.")
		return
	}

	text := messageText(target)
	if text == "" {
		b.reply(message, "Oops, that message has no text I could learn from.")
		return
	}

	if err := b.moderator.RecordFeedback(text, models.Spam, models.SourceCommand); err != nil {
		b.reply(message, "Oops, something went wrong while updating my dataset.")
		return
	}
	b.history.remove(message.Chat.ID, target.MessageID)
	b.reply(message, "Thank you for helping me learn! The message was added to my dataset as spam.")
}

func (b *Bot) handleHamCommand(message *tgbotapi.Message) {
	if target := message.ReplyToMessage; target != nil {
		text := messageText(target)
		if text == "" {
			b.reply(message, "Oops, that message has no text I could learn from.")
			return
		}
		if err := b.moderator.RecordFeedback(text, models.Ham, models.SourceCommand); err != nil {
			b.reply(message, "Oops, something went wrong while updating my dataset.")
			return
		}
		b.reply(message, "Thank you for helping me learn! The message was added to my dataset as ham.")
		return
	}

	n, err := strconv.Atoi(strings.TrimSpace(message.CommandArguments()))
	if err != nil || n < 1 {
		b.reply(message, "Help me learn! Send /ham N with the number of recent messages I should add to my dataset as ham.")
		return
	}

	entries := b.history.last(message.Chat.ID, n)
	added := 0
	for _, e := range entries {
		if err := b.moderator.RecordFeedback(e.Text, models.Ham, models.SourceCommand); err != nil {
			b.logger.Error("Failed to add ham message", zap.Int("message_id", e.MessageID), zap.Error(err))
			continue
		}
		added++
	}

	b.reply(message, fmt.Sprintf("Thank you for helping me learn! %d messages were added to my dataset as ham.", added))
}

func (b *Bot) handleClassifyCommand(message *tgbotapi.Message) {
	target := message.ReplyToMessage
	if target == nil {
		b.reply(message, "Reply to a message with /classify and I'll tell you whether it's ham or spam.")
		return
	}

	if b.moderator.Classify(messageText(target)).IsSpam() {
		b.reply(message, "This message is pretty sus... It's spam!")
		return
	}
	b.reply(message, "This message looks fine to me, it's ham!")
}

func (b *Bot) handleAccuracyCommand(message *tgbotapi.Message) {
	b.reply(message, fmt.Sprintf(
		"My ham or spam classification accuracy is %.2f %% (based on my test dataset)",
		b.moderator.CurrentAccuracy(),
	))
}

func (b *Bot) handleModeCommand(message *tgbotapi.Message) {
	arg := strings.ToLower(strings.TrimSpace(message.CommandArguments()))
	if arg == "" {
		b.reply(message, fmt.Sprintf(
			"I'm currently operating in %s mode.\n"+
				"Send /mode again with one of the following to change it:\n"+
				"- passive - I won't classify any messages.\n"+
				"- active - I'll classify every new message and delete it if it's spam.\n"+
				"- learn - I'll classify new messages and ask for feedback on the suspicious ones.",
			b.moderator.Mode(),
		))
		return
	}

	mode, err := models.ParseMode(arg)
	if err != nil {
		b.reply(message, fmt.Sprintf("Invalid mode provided: %s!", arg))
		return
	}
	if err := b.moderator.SetMode(mode); err != nil {
		b.logger.Error("Failed to change mode", zap.Error(err))
		b.reply(message, "Oops, I couldn't save the new mode.")
		return
	}
	b.reply(message, fmt.Sprintf("Ok, now I'll operate in %s mode!", mode))
}

// messageText returns the text of a message, or the caption of a media message.
func messageText(message *tgbotapi.Message) string {
	if message.Text != "" {
		return message.Text
	}
	return message.Caption
}

func (b *Bot) reply(message *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send reply", zap.Int64("chat_id", message.Chat.ID), zap.Error(err))
	}
}

func (b *Bot) answerCallback(query *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, text)); err != nil {
		b.logger.Error("Failed to send callback response", zap.Error(err))
	}
}

// sendMessage is a helper to send a simple text message
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
