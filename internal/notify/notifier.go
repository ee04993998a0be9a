// Package notify delivers risk notifications. Every message goes to the
// owning user's Telegram chat; operator channels (Discord, an operator
// Telegram chat) receive a mirror filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.UserNotifier = (*Notifier)(nil)

// ErrNoUserChannel is returned by NotifyUser when no per-user sender is
// configured, so the message could not reach the user.
var ErrNoUserChannel = errors.New("notify: no user channel configured")

// Message is a single notification. ChatID is the destination chat for
// per-user channels and is ignored by webhook senders. Event is the risk
// event type, empty for operator broadcasts.
type Message struct {
	ChatID int64
	Event  string
	Title  string
	Body   string
}

// Text renders the message as plain text.
func (m Message) Text() string {
	if m.Title == "" {
		return m.Body
	}
	if m.Body == "" {
		return m.Title
	}
	return m.Title + "\n\n" + m.Body
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier routes notifications to the user's channel and to operators.
type Notifier struct {
	user      Sender
	operators []Sender
	events    map[string]bool // operator event filter
	logger    *slog.Logger
}

// NewNotifier creates a Notifier. user may be nil when no per-user channel is
// configured. Only events listed in events are mirrored to operators; an
// empty list mirrors everything.
func NewNotifier(user Sender, operators []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		user:      user,
		operators: operators,
		events:    allowed,
		logger:    logger.With(slog.String("component", "notifier")),
	}
}

// NotifyUser sends the message to userID's chat and mirrors it to operators
// when event passes the filter. Failures of individual senders do not stop
// delivery to the rest; they are returned joined. Without a user sender the
// result wraps ErrNoUserChannel.
func (n *Notifier) NotifyUser(ctx context.Context, userID int64, event, title, body string) error {
	msg := Message{ChatID: userID, Event: event, Title: title, Body: body}

	var errs []error
	if n.user == nil {
		n.logger.WarnContext(ctx, "user notification dropped",
			slog.Int64("user_id", userID),
			slog.String("event", event),
		)
		errs = append(errs, ErrNoUserChannel)
	} else if err := n.send(ctx, n.user, msg); err != nil {
		errs = append(errs, err)
	}

	if n.mirrored(event) {
		mirror := msg
		mirror.Body = fmt.Sprintf("user %d\n%s", userID, body)
		errs = append(errs, n.dispatch(ctx, n.operators, mirror)...)
	} else {
		n.logger.DebugContext(ctx, "event not mirrored",
			slog.String("event", event),
		)
	}

	return joinErrors(errs)
}

// NotifyAll sends a notification to every operator sender regardless of
// event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, body string) error {
	return joinErrors(n.dispatch(ctx, n.operators, Message{Title: title, Body: body}))
}

func (n *Notifier) mirrored(event string) bool {
	if len(n.operators) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

func (n *Notifier) dispatch(ctx context.Context, senders []Sender, msg Message) []error {
	var errs []error
	for _, s := range senders {
		if err := n.send(ctx, s, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (n *Notifier) send(ctx context.Context, s Sender, msg Message) error {
	if err := s.Send(ctx, msg); err != nil {
		n.logger.ErrorContext(ctx, "sender failed",
			slog.String("sender", s.Name()),
			slog.Int64("chat_id", msg.ChatID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	n.logger.DebugContext(ctx, "notification sent",
		slog.String("sender", s.Name()),
		slog.String("title", msg.Title),
	)
	return nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
}
