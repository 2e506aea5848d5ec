package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/district-feed/internal/model"
	"github.com/d60-Lab/district-feed/internal/service"
	"github.com/d60-Lab/district-feed/pkg/response"
)

// ListPosts 已发布帖子列表
// @Summary 公开 feed
// @Description 最新的已发布帖子，按创建时间倒序，最多 100 条
// @Tags feed
// @Produce json
// @Param category query string false "分类" Enums(news, biz, svc)
// @Success 200 {object} response.Response{data=PostsResponse}
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	category, ok := model.ParseCategory(c.Query("category"))
	if !ok {
		response.BadRequest(c, "unknown category")
		return
	}
	items, err := h.feedService.List(c.Request.Context(), category)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, PostsResponse{Posts: items})
}

type PostsResponse struct {
	Posts []service.FeedItem `json:"posts"`
}

// Health 存活检查
// @Summary 健康检查
// @Tags system
// @Produce json
// @Success 200 {object} response.Response
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
