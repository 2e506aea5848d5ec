package handler

import (
	"net/http"
	"time"

	"github.com/d60-Lab/district-feed/internal/service"
)

// Handler HTTP 处理器，只读访问 feed
type Handler struct {
	feedService service.FeedService
	mediaClient *http.Client
}

func NewHandler(feedService service.FeedService) *Handler {
	return &Handler{
		feedService: feedService,
		mediaClient: &http.Client{Timeout: 30 * time.Second},
	}
}
