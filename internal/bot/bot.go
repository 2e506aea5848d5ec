// Package bot routes inbound gateway events to the moderation workflow and
// replies to the people who sent them.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/district-feed/internal/gateway"
	"github.com/d60-Lab/district-feed/internal/model"
	"github.com/d60-Lab/district-feed/internal/notify"
	"github.com/d60-Lab/district-feed/internal/service"
	"github.com/d60-Lab/district-feed/pkg/logger"
)

const (
	msgNoAccess     = "No access."
	msgNoPending    = "No posts awaiting review."
	msgStorageRetry = "Could not save your post, please try again later."
	msgPendingRetry = "Could not load pending posts, please try again later."
	msgSingleEmpty  = "Write some text or attach a photo."
	msgCaptionHint  = "Start the caption with a submission command, e.g. /sendnews."

	answerNoAccess      = "No access"
	answerInvalidID     = "Invalid id"
	answerUnknownAction = "Unknown action"
	answerNotFound      = "Not found"
	answerApproved      = "Approved"
	answerRejected      = "Rejected"
	answerFailed        = "Something went wrong, try again"
)

// Reviewer delivers the /pending batch synchronously.
type Reviewer interface {
	DeliverBatch(ctx context.Context, msgs []notify.Message) (int, error)
}

type Options struct {
	AdminID int64
	// Categories empty means a single-category deployment.
	Categories   []model.Category
	WebAppURL    string
	PendingLimit int
}

type Bot struct {
	gw         gateway.Gateway
	moderation service.ModerationService
	reviewer   Reviewer
	opts       Options
	// submission command name -> category
	commands map[string]model.Category
}

func New(gw gateway.Gateway, moderation service.ModerationService, reviewer Reviewer, opts Options) *Bot {
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = 10
	}
	commands := make(map[string]model.Category, len(opts.Categories))
	for _, c := range opts.Categories {
		commands[submitCommand(c)] = c
	}
	return &Bot{gw: gw, moderation: moderation, reviewer: reviewer, opts: opts, commands: commands}
}

func submitCommand(c model.Category) string { return "send" + string(c) }

func (b *Bot) singleCategory() bool { return len(b.commands) == 0 }

func (b *Bot) privileged(id gateway.Identity) bool { return id.ID == b.opts.AdminID }

// Run handles each event on its own goroutine until events is closed or ctx
// is done, then waits for in-flight handlers. Accepted events run to
// completion even after ctx is cancelled.
func (b *Bot) Run(ctx context.Context, events <-chan gateway.Event) {
	hctx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer b.recoverEvent(ev)
				b.Handle(hctx, ev)
			}()
		}
	}
}

func (b *Bot) recoverEvent(ev gateway.Event) {
	if r := recover(); r != nil {
		logger.Error("event handler panicked", zap.Int64("sender", ev.Sender().ID), zap.Any("panic", r))
		sentry.CurrentHub().Recover(r)
	}
}

func (b *Bot) Handle(ctx context.Context, ev gateway.Event) {
	switch e := ev.(type) {
	case gateway.Command:
		b.handleCommand(ctx, e)
	case gateway.TextMessage:
		b.handleText(ctx, e)
	case gateway.MediaMessage:
		b.handleMedia(ctx, e)
	case gateway.ActionInvocation:
		b.handleAction(ctx, e)
	default:
		logger.Debug("ignoring unsupported event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (b *Bot) handleCommand(ctx context.Context, cmd gateway.Command) {
	switch cmd.Name {
	case "start", "help":
		b.reply(ctx, cmd.From.ID, b.usage(), gateway.Button{Label: "Open district feed", URL: b.opts.WebAppURL})
		return
	case "pending":
		b.listPending(ctx, cmd.From)
		return
	}
	if category, ok := b.commands[cmd.Name]; ok {
		b.submit(ctx, cmd.From, category, cmd.Args, "")
		return
	}
	// unknown commands get the same answer as forbidden ones
	b.reply(ctx, cmd.From.ID, msgNoAccess)
}

func (b *Bot) handleText(ctx context.Context, msg gateway.TextMessage) {
	if !b.singleCategory() {
		logger.Debug("ignoring plain text in multi-category mode", zap.Int64("sender", msg.From.ID))
		return
	}
	b.submit(ctx, msg.From, "", msg.Text, "")
}

func (b *Bot) handleMedia(ctx context.Context, msg gateway.MediaMessage) {
	name, args, isCommand := gateway.ParseCommand(msg.Caption)
	if isCommand {
		if category, ok := b.commands[name]; ok {
			b.submit(ctx, msg.From, category, args, msg.MediaRef)
			return
		}
	}
	if b.singleCategory() {
		b.submit(ctx, msg.From, "", msg.Caption, msg.MediaRef)
		return
	}
	b.reply(ctx, msg.From.ID, msgCaptionHint)
}

func (b *Bot) submit(ctx context.Context, from gateway.Identity, category model.Category, text, mediaRef string) {
	post, err := b.moderation.Submit(ctx, service.SubmitParams{
		Category: category,
		Text:     text,
		Author: model.Author{
			UserID:   from.ID,
			Name:     from.FullName(),
			Username: from.Username,
		},
		MediaRef:   mediaRef,
		Privileged: b.privileged(from),
	})
	switch {
	case errors.Is(err, service.ErrValidation):
		b.reply(ctx, from.ID, b.emptySubmissionHint(category))
		return
	case err != nil:
		b.reply(ctx, from.ID, msgStorageRetry)
		return
	}

	if post.Status == model.StatusApproved {
		b.reply(ctx, from.ID, fmt.Sprintf("Published (as admin), id=%d.", post.ID))
		return
	}
	b.reply(ctx, from.ID, fmt.Sprintf("Sent for review, id=%d.", post.ID))
}

func (b *Bot) listPending(ctx context.Context, from gateway.Identity) {
	posts, err := b.moderation.ListPending(ctx, b.opts.PendingLimit, b.privileged(from))
	switch {
	case errors.Is(err, service.ErrForbidden):
		b.reply(ctx, from.ID, msgNoAccess)
		return
	case err != nil:
		b.reply(ctx, from.ID, msgPendingRetry)
		return
	}
	if len(posts) == 0 {
		b.reply(ctx, from.ID, msgNoPending)
		return
	}

	delivered, err := b.reviewer.DeliverBatch(ctx, notify.RenderPendingBatch(posts, from.ID))
	if err != nil {
		logger.Warn("pending batch partially delivered",
			zap.Int("delivered", delivered),
			zap.Int("total", len(posts)),
			zap.Error(err),
		)
	}
}

func (b *Bot) handleAction(ctx context.Context, inv gateway.ActionInvocation) {
	if !b.privileged(inv.From) {
		b.answer(ctx, inv.ID, answerNoAccess, true)
		return
	}

	token, err := model.ParseActionToken(inv.Token)
	if err != nil {
		logger.Debug("rejecting action token", zap.String("token", inv.Token), zap.Error(err))
		if errors.Is(err, model.ErrUnknownAction) {
			b.answer(ctx, inv.ID, answerUnknownAction, false)
			return
		}
		b.answer(ctx, inv.ID, answerInvalidID, false)
		return
	}

	d, err := b.moderation.Decide(ctx, service.DecideParams{
		PostID:     token.PostID,
		Action:     token.Action,
		ActorID:    inv.From.ID,
		Privileged: true,
	})
	switch {
	case errors.Is(err, service.ErrNotFound):
		b.answer(ctx, inv.ID, answerNotFound, false)
		return
	case errors.Is(err, service.ErrForbidden):
		b.answer(ctx, inv.ID, answerNoAccess, true)
		return
	case errors.Is(err, service.ErrValidation):
		b.answer(ctx, inv.ID, answerUnknownAction, false)
		return
	case err != nil:
		b.answer(ctx, inv.ID, answerFailed, false)
		return
	}

	if !d.Applied {
		b.answer(ctx, inv.ID, "Already "+string(d.Post.Status), false)
		return
	}
	if d.Post.Status == model.StatusApproved {
		b.answer(ctx, inv.ID, answerApproved, false)
		return
	}
	b.answer(ctx, inv.ID, answerRejected, false)
}

func (b *Bot) usage() string {
	var s strings.Builder
	s.WriteString("District feed: news / business / services.\n\n")
	if b.singleCategory() {
		s.WriteString("Subscribers: send a message or a photo to propose a post\n")
	} else {
		cmds := make([]string, 0, len(b.opts.Categories))
		for _, c := range b.opts.Categories {
			cmds = append(cmds, "/"+submitCommand(c))
		}
		s.WriteString("Subscribers: " + strings.Join(cmds, ", ") + "\n")
	}
	s.WriteString("Admin: /pending")
	return s.String()
}

func (b *Bot) emptySubmissionHint(category model.Category) string {
	if category == "" {
		return msgSingleEmpty
	}
	return fmt.Sprintf("Write text after the command. Example: /%s The entrance door was fixed.", submitCommand(category))
}

func (b *Bot) reply(ctx context.Context, to int64, text string, buttons ...gateway.Button) {
	if err := b.gw.SendText(ctx, to, text, buttons); err != nil {
		logger.Warn("reply failed", zap.Int64("recipient", to), zap.Error(err))
	}
}

func (b *Bot) answer(ctx context.Context, invocationID, text string, alert bool) {
	if err := b.gw.AnswerAction(ctx, invocationID, text, alert); err != nil {
		logger.Warn("answering action failed", zap.String("invocation", invocationID), zap.Error(err))
	}
}
