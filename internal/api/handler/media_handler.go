package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/district-feed/internal/service"
	"github.com/d60-Lab/district-feed/pkg/logger"
	"github.com/d60-Lab/district-feed/pkg/response"
)

// Media 代理已发布帖子的图片，不向客户端暴露网关地址
// @Summary 帖子图片
// @Tags feed
// @Produce image/jpeg
// @Param id path int true "帖子ID"
// @Success 200 {file} binary
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/media/{id} [get]
func (h *Handler) Media(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid id")
		return
	}

	url, err := h.feedService.MediaURL(c.Request.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		response.NotFound(c, "media not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, url, nil)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	resp, err := h.mediaClient.Do(req)
	if err != nil {
		response.InternalError(c, fmt.Errorf("fetching media: %w", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Warn("media upstream returned non-200", zap.Int64("post_id", id), zap.Int("status", resp.StatusCode))
		response.NotFound(c, "media not found")
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, resp.ContentLength, contentType, resp.Body, nil)
}
