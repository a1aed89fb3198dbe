// Package notify отправляет операторам короткие уведомления о расчётах.
// Доставка не влияет на сами операции: ошибки только логируются.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Notifier — получатель уведомлений после COMMIT.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Nop — уведомления выключены.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}

// Telegram рассылает уведомление всем операторам в личку.
type Telegram struct {
	api         *tgbotapi.BotAPI
	operatorIDs []int64
}

// NewTelegram авторизуется по токену бота.
func NewTelegram(token string, operatorIDs []int64, debug bool) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	api.Debug = debug
	log.Infof("Уведомления операторам от имени @%s", api.Self.UserName)
	return &Telegram{api: api, operatorIDs: operatorIDs}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) {
	for _, id := range t.operatorIDs {
		if ctx.Err() != nil {
			return
		}
		msg := tgbotapi.NewMessage(id, text)
		if _, err := t.api.Send(msg); err != nil {
			log.WithError(err).WithField("operator_id", id).Warn("Не удалось отправить уведомление")
		}
	}
}
