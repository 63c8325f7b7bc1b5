package notifier

import (
	"net/mail"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/user"
)

type emailChannel struct {
	mailSvc core.EmailService
}

var _ notification.Channel = (*emailChannel)(nil)

// NewEmailChannel emails notifications to the users having an email address.
func NewEmailChannel(mailSvc core.EmailService) notification.Channel {
	return &emailChannel{mailSvc: mailSvc}
}

func (ch *emailChannel) Deliver(usr user.User, notif notification.Notification) {
	if usr.Email == "" {
		return
	}
	ch.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "New notification",
		TemplateName: "notification",
		TemplateData: map[string]string{
			"Name":    usr.DisplayName(),
			"Message": notif.Message,
		},
	})
}
