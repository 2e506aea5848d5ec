// Package gateway is the boundary to the chat transport. Everything behind
// Gateway is opaque to the moderation workflow.
package gateway

import (
	"context"
	"errors"
	"strings"
)

// ErrMediaUnavailable is returned when a media ref cannot be resolved to a URL.
var ErrMediaUnavailable = errors.New("media unavailable")

// Identity is the sender snapshot carried by every inbound event.
type Identity struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// FullName joins first and last name, skipping empty parts.
func (i Identity) FullName() string {
	return strings.TrimSpace(strings.Join([]string{i.FirstName, i.LastName}, " "))
}

// Button is an inline action. Exactly one of Token or URL is set.
type Button struct {
	Label string
	Token string
	URL   string
}

// Sender pushes messages to a recipient.
type Sender interface {
	SendText(ctx context.Context, recipient int64, text string, buttons []Button) error
	SendMedia(ctx context.Context, recipient int64, mediaRef, caption string, buttons []Button) error
}

// MediaResolver turns an opaque media ref into a fetchable URL.
type MediaResolver interface {
	ResolveMediaURL(ctx context.Context, mediaRef string) (string, error)
}

// Gateway is the full messaging contract consumed by the bot.
type Gateway interface {
	Sender
	MediaResolver
	// AnswerAction acknowledges an action invocation, optionally as an alert.
	AnswerAction(ctx context.Context, invocationID, text string, alert bool) error
}

// Event is one of TextMessage, MediaMessage, ActionInvocation or Command.
type Event interface {
	Sender() Identity
}

type TextMessage struct {
	From Identity
	Text string
}

type MediaMessage struct {
	From     Identity
	Caption  string
	MediaRef string
}

type ActionInvocation struct {
	From  Identity
	ID    string
	Token string
}

type Command struct {
	From Identity
	Name string
	Args string
}

func (e TextMessage) Sender() Identity      { return e.From }
func (e MediaMessage) Sender() Identity     { return e.From }
func (e ActionInvocation) Sender() Identity { return e.From }
func (e Command) Sender() Identity          { return e.From }

// ParseCommand splits "/name@bot args" into name and trimmed args.
// ok is false when text does not start with a slash.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text, " ")
	if nl := strings.IndexByte(head, '\n'); nl >= 0 {
		rest = head[nl+1:] + " " + rest
		head = head[:nl]
	}
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}
