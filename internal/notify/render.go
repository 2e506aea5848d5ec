package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/d60-Lab/district-feed/internal/gateway"
	"github.com/d60-Lab/district-feed/internal/model"
)

// Message is a rendered outbound notification. A non-empty MediaRef sends
// Text as the media caption.
type Message struct {
	Recipient int64
	Text      string
	MediaRef  string
	Buttons   []gateway.Button
}

// ReviewButtons offers exactly approve and reject, each carrying the post id.
func ReviewButtons(postID int64) []gateway.Button {
	return []gateway.Button{
		{Label: "✅ Approve", Token: model.NewActionToken(model.ActionApprove, postID).String()},
		{Label: "❌ Reject", Token: model.NewActionToken(model.ActionReject, postID).String()},
	}
}

// RenderPending builds the admin review message for a newly pending post.
func RenderPending(post *model.Post, recipient int64) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "New post awaiting review #%d\n", post.ID)
	if post.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", post.Category)
	}
	fmt.Fprintf(&b, "Author: %s\n", authorLine(post.Author))
	if post.Text != "" {
		b.WriteString("\n")
		b.WriteString(post.Text)
	}
	return reviewMessage(post, recipient, b.String())
}

// RenderPendingBatch renders each post of a /pending listing.
func RenderPendingBatch(posts []*model.Post, recipient int64) []Message {
	out := make([]Message, 0, len(posts))
	for _, p := range posts {
		var b strings.Builder
		fmt.Fprintf(&b, "#%d", p.ID)
		if p.Category != "" {
			fmt.Fprintf(&b, " [%s]", p.Category)
		}
		fmt.Fprintf(&b, " from %s", authorLine(p.Author))
		if p.Text != "" {
			b.WriteString("\n\n")
			b.WriteString(p.Text)
		}
		out = append(out, reviewMessage(p, recipient, b.String()))
	}
	return out
}

// RenderDecision confirms a resolved post back to whoever decided it.
func RenderDecision(post *model.Post, recipient int64) Message {
	var text string
	switch post.Status {
	case model.StatusApproved:
		text = fmt.Sprintf("Post #%d approved and published to the feed.", post.ID)
	case model.StatusRejected:
		text = fmt.Sprintf("Post #%d rejected and removed from the review queue.", post.ID)
	default:
		text = fmt.Sprintf("Post #%d is still pending.", post.ID)
	}
	return Message{Recipient: recipient, Text: text}
}

func reviewMessage(post *model.Post, recipient int64, text string) Message {
	return Message{
		Recipient: recipient,
		Text:      text,
		MediaRef:  post.MediaRef,
		Buttons:   ReviewButtons(post.ID),
	}
}

// authorLine: "A B @ab (42)"
func authorLine(a model.Author) string {
	parts := make([]string, 0, 3)
	if a.Name != "" {
		parts = append(parts, a.Name)
	}
	if a.Username != "" {
		parts = append(parts, "@"+a.Username)
	}
	parts = append(parts, "("+strconv.FormatInt(a.UserID, 10)+")")
	return strings.Join(parts, " ")
}
