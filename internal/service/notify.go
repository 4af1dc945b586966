package service

import "log/slog"

// Navigator receives the location the caller should move to
type Navigator interface {
	Navigate(location string)
}

// Notifier shows short user-facing confirmations
type Notifier interface {
	Success(message string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(location string)

func (f NavigatorFunc) Navigate(location string) { f(location) }

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(message string)

func (f NotifierFunc) Success(message string) { f(message) }

// LogNavigator records redirects in the log; used where no view layer exists
type LogNavigator struct{}

func (LogNavigator) Navigate(location string) {
	slog.Debug("navigate", slog.String("location", location))
}

// LogNotifier writes notifications to the log
type LogNotifier struct{}

func (LogNotifier) Success(message string) {
	slog.Info(message)
}
