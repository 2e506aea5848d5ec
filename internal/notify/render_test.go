package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/district-feed/internal/model"
)

func samplePost() *model.Post {
	return &model.Post{
		ID:       17,
		Category: model.CategoryNews,
		Text:     "Door fixed",
		Author:   model.Author{UserID: 42, Name: "A B", Username: "ab"},
		Status:   model.StatusPending,
		Origin:   model.OriginUser,
	}
}

func TestRenderPending(t *testing.T) {
	msg := RenderPending(samplePost(), 1)

	assert.Equal(t, int64(1), msg.Recipient)
	assert.Equal(t, "New post awaiting review #17\nCategory: news\nAuthor: A B @ab (42)\n\nDoor fixed", msg.Text)
	assert.Empty(t, msg.MediaRef)

	require.Len(t, msg.Buttons, 2)
	assert.Equal(t, "approve:17", msg.Buttons[0].Token)
	assert.Equal(t, "reject:17", msg.Buttons[1].Token)
	for _, b := range msg.Buttons {
		tok, err := model.ParseActionToken(b.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(17), tok.PostID)
	}
}

func TestRenderPendingWithMediaNoCategory(t *testing.T) {
	p := samplePost()
	p.Category = ""
	p.Text = ""
	p.MediaRef = "photo-1"

	msg := RenderPending(p, 1)
	assert.Equal(t, "photo-1", msg.MediaRef)
	assert.Equal(t, "New post awaiting review #17\nAuthor: A B @ab (42)\n", msg.Text)
	assert.NotContains(t, msg.Text, "Category")
}

func TestRenderPendingBatch(t *testing.T) {
	p2 := samplePost()
	p2.ID = 18
	p2.Category = ""
	p2.Author = model.Author{UserID: 7, Name: "C"}

	msgs := RenderPendingBatch([]*model.Post{samplePost(), p2}, 1)
	require.Len(t, msgs, 2)
	assert.Equal(t, "#17 [news] from A B @ab (42)\n\nDoor fixed", msgs[0].Text)
	assert.Equal(t, "#18 from C (7)\n\nDoor fixed", msgs[1].Text)
	assert.Equal(t, "approve:18", msgs[1].Buttons[0].Token)

	assert.Empty(t, RenderPendingBatch(nil, 1))
}

func TestRenderDecision(t *testing.T) {
	p := samplePost()
	p.Status = model.StatusApproved
	assert.Contains(t, RenderDecision(p, 1).Text, "published")

	p.Status = model.StatusRejected
	msg := RenderDecision(p, 1)
	assert.Contains(t, msg.Text, "removed from the review queue")
	assert.Empty(t, msg.Buttons)
}
