package gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram caps messages at 4096 characters.
const telegramLimit = 4000

// TelegramMessenger carries reviews and queries over a single Telegram chat.
type TelegramMessenger struct {
	Bot *tgbotapi.BotAPI
	// ChatID is the operator chat. Zero binds to the first chat that writes.
	ChatID int64

	mu      sync.Mutex
	updates tgbotapi.UpdatesChannel
}

func NewTelegramMessenger(token string, chatID int64) (*TelegramMessenger, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	return &TelegramMessenger{
		Bot:     bot,
		ChatID:  chatID,
		updates: bot.GetUpdatesChan(u),
	}, nil
}

func (tg *TelegramMessenger) Receive(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case update, ok := <-tg.updates:
			if !ok {
				return "", io.EOF
			}
			if update.Message == nil {
				continue
			}
			if update.Message.Chat.ID != tg.bind(update.Message.Chat.ID) {
				log.Printf("[Telegram] ignoring message from chat %d", update.Message.Chat.ID)
				continue
			}

			log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)
			return update.Message.Text, nil
		}
	}
}

// bind returns the operator chat, adopting id when none is bound yet.
func (tg *TelegramMessenger) bind(id int64) int64 {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.ChatID == 0 && id != 0 {
		tg.ChatID = id
		log.Printf("[Telegram] bound to chat %d", id)
	}
	return tg.ChatID
}

func (tg *TelegramMessenger) Send(ctx context.Context, text string) error {
	chatID := tg.bind(0)
	if chatID == 0 {
		return fmt.Errorf("telegram chat not bound yet")
	}
	for _, chunk := range splitMessage(text, telegramLimit) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if _, err := tg.Bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramMessenger) Close() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
