package telegram

import (
	"context"
	"fmt"
	"time"

	"activity_scraper/internal/domain/acquisition"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// MessageSender is implemented by TelebotAdapter.
type MessageSender interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// FailureAlerter tells the admin chat about failed cycles.
type FailureAlerter struct {
	sender  MessageSender
	adminID int64
	logger  *logrus.Entry
}

func NewFailureAlerter(sender MessageSender, adminID int64, logger *logrus.Entry) *FailureAlerter {
	return &FailureAlerter{sender: sender, adminID: adminID, logger: logger}
}

// NotifyCycleFailure sends the alert. Delivery problems are logged, never returned.
func (a *FailureAlerter) NotifyCycleFailure(_ context.Context, cycle int, err error) {
	text := FormatFailure(cycle, err, time.Now())
	if sendErr := a.sender.SendMessage(a.adminID, text, nil); sendErr != nil {
		a.logger.WithError(sendErr).WithField("cycle", cycle).Warn("Failed to send failure alert")
	}
}

func FormatFailure(cycle int, err error, at time.Time) string {
	return fmt.Sprintf("Scrape cycle %d failed at %s\nKind: %s\nError: %v",
		cycle, at.Format("2006-01-02 15:04:05"), acquisition.KindOf(err), err)
}
