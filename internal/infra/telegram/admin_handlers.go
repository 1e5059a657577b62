package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"activity_scraper/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// StatusProvider exposes the scheduler snapshot.
type StatusProvider interface {
	Status() scheduler.Status
}

// ActivityCounter reports how many activities are stored.
type ActivityCounter interface {
	CountActivities(ctx context.Context) (int, error)
}

// RegisterAdminHandlers registers /status and /help. Only the admin gets answers.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, status StatusProvider, counter ActivityCounter, adminTelegramID int64, baseLogger *logrus.Entry) {
	b.Handle("/status", func(c telebot.Context) error {
		return handleStatus(ctx, c, status, counter, adminTelegramID, baseLogger)
	})
	b.Handle("/help", func(c telebot.Context) error {
		return handleHelp(c, adminTelegramID, baseLogger)
	})
}

func handleStatus(ctx context.Context, c telebot.Context, status StatusProvider, counter ActivityCounter, adminTelegramID int64, baseLogger *logrus.Entry) error {
	handlerLogger := baseLogger.WithFields(logrus.Fields{
		"handler":   "/status",
		"sender_id": c.Sender().ID,
	})
	handlerLogger.Info("Command received")

	if c.Sender().ID != adminTelegramID {
		handlerLogger.Warn("Unauthorized access attempt")
		return c.Send("You are not allowed to use this command.")
	}

	count, err := counter.CountActivities(ctx)
	if err != nil {
		handlerLogger.WithError(err).Error("Failed to count activities")
		count = -1
	}
	return c.Send(FormatStatus(status.Status(), count))
}

func handleHelp(c telebot.Context, adminTelegramID int64, baseLogger *logrus.Entry) error {
	baseLogger.WithFields(logrus.Fields{"handler": "/help", "sender_id": c.Sender().ID}).Info("Command received")
	if c.Sender().ID != adminTelegramID {
		return c.Send("No commands are available for you.")
	}
	return c.Send("/status - show scraper status and stored activity count\n/help - show this message")
}

// FormatStatus renders a scheduler snapshot. A negative count means it is unknown.
func FormatStatus(st scheduler.Status, count int) string {
	var b strings.Builder
	state := "stopped"
	if st.Running {
		state = "running"
	}
	fmt.Fprintf(&b, "Scheduler: %s\n", state)
	fmt.Fprintf(&b, "Runs: %d total, %d ok, %d failed, %d cancelled\n", st.TotalRuns, st.SuccessfulRuns, st.FailedRuns, st.CancelledRuns)
	fmt.Fprintf(&b, "Last run: %s (fetched %d)\n", formatTime(st.LastRunTime), st.LastFetched)
	fmt.Fprintf(&b, "Next run: %s\n", formatTime(st.NextRunTime))
	if st.LastError != "" {
		fmt.Fprintf(&b, "Last error (%s): %s\n", st.LastFailureKind, st.LastError)
	}
	if count >= 0 {
		fmt.Fprintf(&b, "Stored activities: %d", count)
	} else {
		b.WriteString("Stored activities: unknown")
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}
