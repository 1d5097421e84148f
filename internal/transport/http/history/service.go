package history

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"formula-ocr-server/internal/domain/history/store"
	"formula-ocr-server/internal/platform/logging"
	httptransport "formula-ocr-server/internal/transport/http"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// Service exposes recognition history over HTTP.
type Service struct {
	store  store.Store
	logger *logging.Logger
}

func NewService(s store.Store, logger *logging.Logger) *Service {
	return &Service{store: s, logger: logger}
}

// Register 注册历史记录路由
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) {
	router.GET("/recognitions", s.handleList)
	router.GET("/recognitions/:id", s.handleGet)
	s.logger.InfoTag("HTTP", "历史记录路由注册完成")
}

// handleList 列出最近的识别记录
// @Summary 最近的识别记录
// @Tags History
// @Produce json
// @Param limit query int false "返回条数 (1-200)"
// @Success 200 {object} httptransport.APIResponse
// @Router /recognitions [get]
func (s *Service) handleList(c *gin.Context) {
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httptransport.RespondError(c, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	records, err := s.store.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.ErrorTag("历史", "读取识别记录失败: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to load history", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, records, "")
}

// handleGet 按 ID 查询识别记录
// @Summary 查询单条识别记录
// @Tags History
// @Produce json
// @Param id path string true "记录ID"
// @Success 200 {object} httptransport.APIResponse
// @Failure 404 {object} httptransport.APIResponse
// @Router /recognitions/{id} [get]
func (s *Service) handleGet(c *gin.Context) {
	record, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			httptransport.RespondError(c, http.StatusNotFound, "record not found", nil)
			return
		}
		s.logger.ErrorTag("历史", "读取识别记录失败: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to load record", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, record, "")
}
