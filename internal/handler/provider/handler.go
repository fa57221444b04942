package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/internal/model"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

type Service interface {
	Create(ctx context.Context, req *model.CreateProviderRequest) (*model.Provider, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Provider, error)
	List(ctx context.Context, specialization string) ([]*model.Provider, error)
}

type Summarizer interface {
	Summary(ctx context.Context, providerID uuid.UUID, date time.Time) (*model.ProviderDaySummary, error)
}

type NotificationLister interface {
	List(ctx context.Context, providerID uuid.UUID, limit int) ([]*model.Notification, error)
}

type Handler struct {
	service       Service
	summaries     Summarizer
	notifications NotificationLister
}

func NewHandler(service Service, summaries Summarizer, notifications NotificationLister) *Handler {
	return &Handler{
		service:       service,
		summaries:     summaries,
		notifications: notifications,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	providers := r.Group("/providers")
	{
		providers.POST("", h.CreateProvider)
		providers.GET("", h.ListProviders)
		providers.GET("/:id", h.GetProvider)
		providers.GET("/:id/notifications", h.ListNotifications)
		providers.GET("/:id/summary/:date", h.GetSummary)
	}
}

func (h *Handler) CreateProvider(c *gin.Context) {
	var req model.CreateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	provider, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, provider)
}

func (h *Handler) ListProviders(c *gin.Context) {
	providers, err := h.service.List(c.Request.Context(), c.Query("specialization"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, providers)
}

func (h *Handler) GetProvider(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	provider, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, provider)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid limit", err))
			return
		}
		limit = n
	}

	notifications, err := h.notifications.List(c.Request.Context(), id, limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, notifications)
}

func (h *Handler) GetSummary(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	date, err := model.ParseDate(c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	summary, err := h.summaries.Summary(c.Request.Context(), id, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, summary)
}
