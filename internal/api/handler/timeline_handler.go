package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/feedcore/pkg/response"
)

// GetTimeline 读个人时间线：push 条目 + 读时拉取合并，排序后返回。
// 截止时间内未凑齐的来源以 partial 标记，不算错误。
// @Summary 查询时间线
// @Tags 时间线
// @Param user_id path string true "用户ID"
// @Param cursor query string false "分页游标"
// @Param limit query int false "条数" default(20)
// @Success 200 {object} response.Response{data=service.TimelineResult}
// @Failure 400 {object} response.Response
// @Router /api/v1/timelines/{user_id} [get]
func (h *Handler) GetTimeline(c *gin.Context) {
	userID := c.Param("user_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	cursor := c.Query("cursor")

	res, err := h.assembler.GetTimeline(c.Request.Context(), userID, cursor, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, res)
}

// GetTrending 查询热点词
// @Summary 查询热点词 top-N
// @Tags 热点
// @Param locale query string false "地区分区" default(global)
// @Param n query int false "返回条数"
// @Success 200 {object} response.Response
// @Router /api/v1/trending [get]
func (h *Handler) GetTrending(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("n", "0"))
	terms, err := h.trending.Top(c.Request.Context(), c.Query("locale"), n)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"terms": terms})
}
