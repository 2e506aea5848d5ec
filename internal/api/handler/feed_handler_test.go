package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/district-feed/internal/model"
	"github.com/d60-Lab/district-feed/internal/service"
)

type stubFeed struct {
	items    []service.FeedItem
	err      error
	got      model.Category
	mediaURL string
	mediaErr error
}

func (s *stubFeed) MediaURL(ctx context.Context, postID int64) (string, error) {
	return s.mediaURL, s.mediaErr
}

func (s *stubFeed) List(ctx context.Context, category model.Category) ([]service.FeedItem, error) {
	s.got = category
	return s.items, s.err
}

func newTestRouter(feed service.FeedService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(feed)
	r := gin.New()
	r.GET("/api/posts", h.ListPosts)
	r.GET("/api/media/:id", h.Media)
	r.GET("/health", h.Health)
	return r
}

type postsBody struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    struct {
		Posts []map[string]any `json:"posts"`
	} `json:"data"`
}

func TestListPosts(t *testing.T) {
	feed := &stubFeed{items: []service.FeedItem{{
		ID:        7,
		Category:  model.CategoryNews,
		Text:      "Door fixed",
		Author:    service.FeedAuthor{Name: "A B"},
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		MediaURL:  "https://files.example/p.jpg",
	}}}
	r := newTestRouter(feed)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/posts?category=news", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.CategoryNews, feed.got)

	var body postsBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.OK)
	require.Len(t, body.Data.Posts, 1)
	p := body.Data.Posts[0]
	assert.EqualValues(t, 7, p["id"])
	assert.Equal(t, "Door fixed", p["text"])
	assert.Equal(t, "https://files.example/p.jpg", p["mediaUrl"])
	assert.Equal(t, map[string]any{"name": "A B"}, p["author"])
}

func TestListPostsWithoutCategory(t *testing.T) {
	feed := &stubFeed{}
	r := newTestRouter(feed)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.Category(""), feed.got)
}

func TestListPostsUnknownCategory(t *testing.T) {
	r := newTestRouter(&stubFeed{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/posts?category=sports", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body postsBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.OK)
	assert.Equal(t, "unknown category", body.Message)
}

func TestListPostsStorageError(t *testing.T) {
	r := newTestRouter(&stubFeed{err: errors.New("db locked")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db locked")
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(&stubFeed{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"data":{"status":"ok"}}`, w.Body.String())
}

func TestMediaProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/p.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer upstream.Close()

	r := newTestRouter(&stubFeed{mediaURL: upstream.URL + "/file/p.jpg"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/media/3", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg-bytes", w.Body.String())

	r = newTestRouter(&stubFeed{mediaURL: upstream.URL + "/file/gone.jpg"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/media/3", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMediaNotFoundAndInvalid(t *testing.T) {
	r := newTestRouter(&stubFeed{mediaErr: service.ErrNotFound})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/media/3", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/media/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
