// Package notify delivers short user-facing notifications about generation
// outcomes. Notifications are fire-and-forget: delivery failures are logged,
// never returned.
package notify

import (
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// Severity distinguishes informational notifications from failures.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Notification is one message shown to the user.
type Notification struct {
	Title       string
	Description string
	Severity    Severity
}

// Notifier is the notification surface.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(Notification)

// Notify calls f(n).
func (f Func) Notify(n Notification) { f(n) }

// Generated is sent when an attempt produces an image.
func Generated() Notification {
	return Notification{
		Title:       "Image generated successfully!",
		Description: "Your generated image is ready.",
		Severity:    SeverityInfo,
	}
}

// NoImageSelected is sent when generate is triggered without an upload.
func NoImageSelected() Notification {
	return Notification{
		Title:       "No image selected",
		Description: "Please upload an image first",
		Severity:    SeverityError,
	}
}

// GenerationFailed is sent when an attempt fails for reason.
func GenerationFailed(reason string) Notification {
	return Notification{
		Title:       "Generation failed",
		Description: reason,
		Severity:    SeverityError,
	}
}

// ReadFailed is sent when the uploaded file could not be encoded.
func ReadFailed(reason string) Notification {
	return Notification{
		Title:       "Error",
		Description: reason,
		Severity:    SeverityError,
	}
}

// AddedToGallery is sent after a gallery append.
func AddedToGallery() Notification {
	return Notification{
		Title:       "Saved to gallery",
		Description: "Your image was added to the gallery.",
		Severity:    SeverityInfo,
	}
}

// SaveFailed is sent when a download or gallery save fails.
func SaveFailed(reason string) Notification {
	return Notification{
		Title:       "Save failed",
		Description: reason,
		Severity:    SeverityError,
	}
}

// NoResult is sent when download or save is requested before any success.
func NoResult() Notification {
	return Notification{
		Title:       "No generated image",
		Description: "Generate an image first",
		Severity:    SeverityError,
	}
}

// Saved is sent after an image has been written to location.
func Saved(location string) Notification {
	return Notification{
		Title:       "Image saved",
		Description: location,
		Severity:    SeverityInfo,
	}
}

// LogNotifier writes notifications to the global zerolog logger.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notification) {
	evt := log.Info()
	if n.Severity == SeverityError {
		evt = log.Error()
	}
	evt.Str("title", n.Title).Msg(n.Description)
}

// DesktopNotifier shows notifications through the OS notification center.
type DesktopNotifier struct {
	notify func(text string, options ...zenity.Option) error
}

// NewDesktopNotifier returns a notifier backed by zenity.
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{notify: zenity.Notify}
}

func (d *DesktopNotifier) Notify(n Notification) {
	icon := zenity.InfoIcon
	if n.Severity == SeverityError {
		icon = zenity.ErrorIcon
	}
	text := n.Title
	if n.Description != "" {
		text = n.Title + "\n" + n.Description
	}
	if err := d.notify(text, zenity.Title("Beybladez"), icon); err != nil {
		log.Debug().Err(err).Str("title", n.Title).Msg("Desktop notification not delivered")
	}
}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}
