package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/d60-Lab/feedcore/pkg/response"
)

type createPostRequest struct {
	AuthorID string `json:"author_id" binding:"required"`
	Payload  string `json:"payload" binding:"required,max=4096"`
	Locale   string `json:"locale"`
}

// CreatePost 发帖：事务内落地并发布创建事件，扇出异步进行
// @Summary 发布帖子
// @Tags 帖子
// @Accept json
// @Produce json
// @Param request body createPostRequest true "帖子内容"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 400 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	postID, err := h.publisher.Publish(c.Request.Context(), req.AuthorID, req.Payload, req.Locale)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"post_id": postID})
}

// GetPost 按 id 读帖（读计数 +1）
// @Summary 查询帖子
// @Tags 帖子
// @Param post_id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	id := c.Param("post_id")
	post, err := h.posts.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "post not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	_ = h.posts.IncrView(c.Request.Context(), id)
	response.Success(c, post)
}

// LikePost 点赞（engagement 计数只增）
// @Summary 点赞
// @Tags 帖子
// @Param post_id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{post_id}/like [post]
func (h *Handler) LikePost(c *gin.Context) {
	if err := h.posts.IncrLike(c.Request.Context(), c.Param("post_id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}
