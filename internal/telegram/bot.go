package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camilorivas/mayordomo/internal/agent"
	"github.com/camilorivas/mayordomo/internal/schedule"
)

// SessionStore defines DB operations needed by the bot.
type SessionStore interface {
	GetSessionID(chatID string) (string, error)
	SetSessionID(chatID, sessionID string) error
	ClearSession(chatID string) error
}

// AgentInvoker sends a chat message through the hosted agent.
type AgentInvoker interface {
	Invoke(ctx context.Context, chatID, message, sessionID string) (*agent.Reply, error)
	IsConfigured() bool
}

const (
	updateTimeoutSeconds = 60
	replyTimeout         = 120 * time.Second
	stopWaitTimeout      = 5 * time.Second

	// apiClientTimeout bounds every Bot API HTTP call. It must stay above the
	// long-poll update timeout and below the scheduler's per-delivery timeout,
	// so a hung connection surfaces as a delivery failure instead of stalling
	// the tick loop.
	apiClientTimeout = 75 * time.Second

	greeting = "Hola! I'm Mayordomo, your personal assistant.\n\n" +
		"Ask me anything, or tell me what to remind you about - one-time or recurring. " +
		"Use /reset to start a fresh conversation."

	sessionLimitNotice = "This conversation got too long for me to keep in memory, " +
		"so I've started a fresh one. Please send your message again."
)

// Bot is the Telegram front end. It relays chat messages to the agent,
// carrying each chat's session token, and delivers scheduled reminders.
type Bot struct {
	api   *tgbotapi.BotAPI
	agent AgentInvoker
	db    SessionStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBot creates a Telegram bot from a bot token.
func NewBot(token string, agentClient AgentInvoker, db SessionStore) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{
		Timeout: apiClientTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		api:    api,
		agent:  agentClient,
		db:     db,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins the long-poll update loop.
func (b *Bot) Start() error {
	fmt.Printf("Telegram: authorized as @%s\n", b.api.Self.UserName)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = updateTimeoutSeconds
	updates := b.api.GetUpdatesChan(updateConfig)

	b.wg.Add(1)
	go b.updateLoop(updates)

	return nil
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop() {
	fmt.Println("Telegram: stopping...")
	b.cancel()
	b.api.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		fmt.Println("Telegram: stopped")
	case <-time.After(stopWaitTimeout):
		fmt.Printf("Telegram: stop timed out after %v; continuing shutdown\n", stopWaitTimeout)
	}
}

func (b *Bot) updateLoop(updates tgbotapi.UpdatesChannel) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(update.Message)
		}
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return
	}

	if b.agent == nil || !b.agent.IsConfigured() {
		b.send(msg.Chat.ID, "I'm not connected to my brain right now. Please try again later.")
		return
	}

	// Let the user see we're working on it.
	if _, err := b.api.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		fmt.Printf("Telegram: failed to send typing action: %v\n", err)
	}

	sessionID, err := b.db.GetSessionID(chatID)
	if err != nil {
		fmt.Printf("Telegram: failed to load session for chat %s: %v\n", chatID, err)
	}

	ctx, cancelReply := context.WithTimeout(b.ctx, replyTimeout)
	defer cancelReply()

	reply, err := b.agent.Invoke(ctx, chatID, text, sessionID)
	if err != nil {
		if errors.Is(err, agent.ErrSessionLimit) {
			if clearErr := b.db.ClearSession(chatID); clearErr != nil {
				fmt.Printf("Telegram: failed to clear session for chat %s: %v\n", chatID, clearErr)
			}
			b.send(msg.Chat.ID, sessionLimitNotice)
			return
		}

		fmt.Printf("Telegram: agent call failed for chat %s: %v\n", chatID, err)
		b.send(msg.Chat.ID, "Something went wrong on my end. Please try again.")
		return
	}

	if reply.SessionID != sessionID {
		if err := b.db.SetSessionID(chatID, reply.SessionID); err != nil {
			fmt.Printf("Telegram: failed to store session for chat %s: %v\n", chatID, err)
		}
	}

	for _, part := range schedule.SplitParts(reply.Text) {
		b.send(msg.Chat.ID, part)
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	switch msg.Command() {
	case "start":
		b.send(msg.Chat.ID, greeting)
	case "reset":
		if err := b.db.ClearSession(chatID); err != nil {
			fmt.Printf("Telegram: failed to clear session for chat %s: %v\n", chatID, err)
			b.send(msg.Chat.ID, "I couldn't reset the conversation. Please try again.")
			return
		}
		b.send(msg.Chat.ID, "Fresh start. What can I do for you?")
	default:
		b.send(msg.Chat.ID, "I don't know that command. Just talk to me in plain language.")
	}
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		fmt.Printf("Telegram: failed to send message to chat %d: %v\n", chatID, err)
	}
}

// Deliver sends reminder text to a chat. It implements the scheduler's
// delivery interface; chat IDs are stored as strings. The call is bounded by
// the context: a send still in flight when the context expires counts as a
// delivery failure.
func (b *Bot) Deliver(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}

	err = sendBounded(ctx, func() error {
		_, err := b.api.Send(tgbotapi.NewMessage(id, text))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to deliver to chat %s: %w", chatID, err)
	}
	return nil
}

// sendBounded runs send and gives up as soon as the context expires. The
// abandoned call terminates on its own via the API client's HTTP timeout,
// so the goroutine does not leak indefinitely.
func sendBounded(ctx context.Context, send func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- send()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
