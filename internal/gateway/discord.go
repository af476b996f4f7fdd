package gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Discord caps messages at 2000 characters.
const discordLimit = 1900

// DiscordMessenger carries reviews and queries over one Discord channel.
type DiscordMessenger struct {
	Session   *discordgo.Session
	ChannelID string

	incoming  chan string
	closeOnce sync.Once
}

func NewDiscordMessenger(token, channelID string) (*DiscordMessenger, error) {
	if channelID == "" {
		return nil, fmt.Errorf("discord channel_id is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	d := &DiscordMessenger{
		Session:   s,
		ChannelID: channelID,
		incoming:  make(chan string, 16),
	}

	s.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent
	s.AddHandler(d.onMessage)
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("failed to open discord session: %w", err)
	}

	log.Printf("Authorized on account %s", s.State.User.Username)
	return d, nil
}

func (d *DiscordMessenger) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.ChannelID != d.ChannelID {
		return
	}
	log.Printf("[%s] %s", m.Author.Username, m.Content)
	select {
	case d.incoming <- m.Content:
	default:
		log.Printf("[Discord] dropping message, reader is busy")
	}
}

func (d *DiscordMessenger) Receive(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text, ok := <-d.incoming:
		if !ok {
			return "", io.EOF
		}
		return text, nil
	}
}

func (d *DiscordMessenger) Send(ctx context.Context, text string) error {
	for _, chunk := range splitMessage(text, discordLimit) {
		if _, err := d.Session.ChannelMessageSend(d.ChannelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiscordMessenger) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.Session.Close()
	})
	return err
}
