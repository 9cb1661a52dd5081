package app

import (
	"errors"
	"time"

	appLog "eventmap/internal/log"
)

// Level is the severity of a user-facing notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warning"
	LevelError Level = "error"
)

// Notification is the last message shown to the user.
type Notification struct {
	Message string    `json:"message"`
	Level   Level     `json:"level"`
	At      time.Time `json:"at"`
}

// Notifier receives user-facing status messages and the busy indicator.
type Notifier interface {
	Notify(message string, level Level)
	SetBusy(busy bool)
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(message string, level Level) {
	switch level {
	case LevelWarn:
		appLog.Warn(message)
	case LevelError:
		appLog.Error("notification", errors.New(message))
	default:
		appLog.Info(message)
	}
}

func (LogNotifier) SetBusy(busy bool) {
	appLog.Debug("busy", "busy", busy)
}
