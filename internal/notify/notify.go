// Package notify delivers fire-and-forget user notifications. Delivery is
// never guaranteed and failures never bubble into the calling operation.
package notify

import (
	"context"
	"sync"

	"curbly/internal/config"
	"curbly/internal/domain"
	"curbly/internal/models"
	"curbly/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the process log. Default backend and
// the stand-in for tests.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(userID, message string) {
	n.logger.Info().Str("user_id", userID).Msg(message)
}

// TelegramNotifier pushes notifications through a Telegram bot. User chat
// IDs are looked up from the users collection and cached; users without a
// linked chat fall through to the ops channel.
type TelegramNotifier struct {
	bot       *tgbotapi.BotAPI
	docs      domain.DocumentStore
	opsChatID int64
	silent    bool
	logger    *zerolog.Logger

	mu     sync.RWMutex
	chatID map[string]int64
}

func NewTelegramNotifier(cfg config.NotifyConfig, docs domain.DocumentStore, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = cfg.Debug

	return &TelegramNotifier{
		bot:       bot,
		docs:      docs,
		opsChatID: cfg.OpsChatID,
		silent:    cfg.SilentMode,
		logger:    logger,
		chatID:    make(map[string]int64),
	}, nil
}

func (n *TelegramNotifier) Notify(userID, message string) {
	chatID := n.resolveChat(userID)
	if chatID == 0 {
		chatID = n.opsChatID
	}
	if chatID == 0 {
		return
	}

	msg := tgbotapi.NewMessage(chatID, message)
	msg.DisableNotification = n.silent
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn().Err(err).Str("user_id", userID).Msg("telegram notify failed")
	}
}

func (n *TelegramNotifier) resolveChat(userID string) int64 {
	n.mu.RLock()
	id, ok := n.chatID[userID]
	n.mu.RUnlock()
	if ok {
		return id
	}

	docs, err := n.docs.Query(context.Background(), models.CollectionUsers, domain.Filter{"uid": userID})
	if err != nil || len(docs) == 0 {
		return 0
	}
	var user models.User
	if err := store.Decode(docs[0], &user); err != nil {
		return 0
	}

	n.mu.Lock()
	n.chatID[userID] = user.TelegramChatID
	n.mu.Unlock()
	return user.TelegramChatID
}
