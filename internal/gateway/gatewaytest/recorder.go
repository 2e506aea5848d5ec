// Package gatewaytest provides an in-memory gateway that records traffic.
package gatewaytest

import (
	"context"
	"errors"
	"sync"

	"github.com/d60-Lab/district-feed/internal/gateway"
)

var ErrSendFailed = errors.New("gatewaytest: send failed")

// Sent is one recorded outbound message.
type Sent struct {
	Recipient int64
	Text      string
	MediaRef  string
	Buttons   []gateway.Button
}

// Answer is one recorded action acknowledgment.
type Answer struct {
	InvocationID string
	Text         string
	Alert        bool
}

// Recorder implements gateway.Gateway.
type Recorder struct {
	mu        sync.Mutex
	sent      []Sent
	answers   []Answer
	attempts  int
	failSends int
	mediaURLs map[string]string
}

func New() *Recorder {
	return &Recorder{mediaURLs: map[string]string{}}
}

func (r *Recorder) SendText(ctx context.Context, recipient int64, text string, buttons []gateway.Button) error {
	return r.record(Sent{Recipient: recipient, Text: text, Buttons: buttons})
}

func (r *Recorder) SendMedia(ctx context.Context, recipient int64, mediaRef, caption string, buttons []gateway.Button) error {
	return r.record(Sent{Recipient: recipient, Text: caption, MediaRef: mediaRef, Buttons: buttons})
}

func (r *Recorder) ResolveMediaURL(ctx context.Context, mediaRef string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	url, ok := r.mediaURLs[mediaRef]
	if !ok {
		return "", gateway.ErrMediaUnavailable
	}
	return url, nil
}

func (r *Recorder) AnswerAction(ctx context.Context, invocationID, text string, alert bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, Answer{InvocationID: invocationID, Text: text, Alert: alert})
	return nil
}

func (r *Recorder) record(s Sent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.failSends != 0 {
		if r.failSends > 0 {
			r.failSends--
		}
		return ErrSendFailed
	}
	r.sent = append(r.sent, s)
	return nil
}

// Sent returns delivered messages in order.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// SentTo returns delivered messages for one recipient.
func (r *Recorder) SentTo(recipient int64) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.Recipient == recipient {
			out = append(out, s)
		}
	}
	return out
}

func (r *Recorder) Answers() []Answer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Answer(nil), r.answers...)
}

// Attempts counts every send call, failed or not.
func (r *Recorder) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// SetFailSends makes the next n sends fail; a negative n fails every send.
func (r *Recorder) SetFailSends(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSends = n
}

func (r *Recorder) SetMediaURL(mediaRef, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mediaURLs[mediaRef] = url
}
