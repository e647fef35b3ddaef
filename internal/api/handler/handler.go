package handler

import (
	"github.com/d60-Lab/feedcore/internal/repository"
	"github.com/d60-Lab/feedcore/internal/service"
)

// Handler 聚合 API 依赖
type Handler struct {
	relService service.RelationshipService
	publisher  *service.Publisher
	posts      repository.PostRepository
	assembler  *service.Assembler
	trending   *service.TrendingEngine
}

func New(rel service.RelationshipService, publisher *service.Publisher, posts repository.PostRepository, assembler *service.Assembler, trending *service.TrendingEngine) *Handler {
	return &Handler{
		relService: rel,
		publisher:  publisher,
		posts:      posts,
		assembler:  assembler,
		trending:   trending,
	}
}
