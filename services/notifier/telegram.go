package notifier

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/user"
)

// sender is the part of *tgbotapi.BotAPI used to deliver notifications.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type telegramChannel struct {
	bot    sender
	logger core.Logger
}

var _ notification.Channel = (*telegramChannel)(nil)

// NewTelegramChannel sends notifications to the users that linked a Telegram chat.
func NewTelegramChannel(token string, logger core.Logger) (notification.Channel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to telegram")
	}
	return &telegramChannel{bot: bot, logger: logger}, nil
}

func (ch *telegramChannel) Deliver(usr user.User, notif notification.Notification) {
	if usr.TelegramChatID == 0 {
		return
	}
	go func() {
		if _, err := ch.bot.Send(tgbotapi.NewMessage(usr.TelegramChatID, notif.Message)); err != nil {
			ch.logger.Error("sending telegram notification", err, usr)
		}
	}()
}

// Channels returns the delivery channels enabled by conf.
// Email is always on; Telegram needs a bot token.
func Channels(conf *core.Config, mailSvc core.EmailService, logger core.Logger) []notification.Channel {
	channels := []notification.Channel{NewEmailChannel(mailSvc)}
	if conf.TelegramBotToken == "" || conf.TestMode {
		return channels
	}
	tg, err := NewTelegramChannel(conf.TelegramBotToken, logger)
	if err != nil {
		logger.Error("telegram notifications disabled", err)
		return channels
	}
	return append(channels, tg)
}
