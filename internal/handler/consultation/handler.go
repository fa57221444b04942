package consultation

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/internal/model"
	svc "github.com/jwalitptl/consult-api/internal/service/consultation"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

type Service interface {
	Book(ctx context.Context, in svc.BookInput) (*model.Consultation, error)
	Reschedule(ctx context.Context, id uuid.UUID, in svc.RescheduleInput) (*model.Consultation, error)
	MarkMissed(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
	Cancel(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error)
	List(ctx context.Context, filters *model.ConsultationFilters) ([]*model.Consultation, error)
	AttachDocument(ctx context.Context, consultationID uuid.UUID, documentType, documentURL string) (*model.PatientDocument, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	consultations := r.Group("/consultations")
	{
		consultations.POST("", h.BookConsultation)
		consultations.GET("", h.ListConsultations)
		consultations.GET("/:id", h.GetConsultation)
		consultations.PUT("/:id", h.RescheduleConsultation)
		consultations.DELETE("/:id", h.CancelConsultation)
		consultations.PUT("/:id/missed", h.MarkMissed)
		consultations.PUT("/:id/status", h.UpdateStatus)
		consultations.POST("/:id/documents", h.AttachDocument)
	}
}

func (h *Handler) BookConsultation(c *gin.Context) {
	var req model.BookConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	date, err := model.ParseDate(req.Date)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	consultation, err := h.service.Book(c.Request.Context(), svc.BookInput{
		PatientID:      req.PatientID,
		Specialization: strings.TrimSpace(req.Specialization),
		Date:           date,
		Time:           req.Time,
		Priority:       req.Priority,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, consultation)
}

func (h *Handler) ListConsultations(c *gin.Context) {
	filters := &model.ConsultationFilters{}

	var ok bool
	if filters.ProviderID, ok = handler.QueryUUID(c, "provider_id"); !ok {
		return
	}
	if filters.PatientID, ok = handler.QueryUUID(c, "patient_id"); !ok {
		return
	}
	if raw := c.Query("date"); raw != "" {
		date, err := model.ParseDate(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
			return
		}
		filters.Date = &date
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status, err := model.ParseConsultationStatus(strings.TrimSpace(s))
			if err != nil {
				httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
				return
			}
			filters.Statuses = append(filters.Statuses, status)
		}
	}

	consultations, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, consultations)
}

func (h *Handler) GetConsultation(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	consultation, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, consultation)
}

func (h *Handler) RescheduleConsultation(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req model.RescheduleConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	consultation, err := h.service.Reschedule(c.Request.Context(), id, svc.RescheduleInput{
		Date:     date,
		Time:     req.Time,
		Priority: req.Priority,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, consultation)
}

func (h *Handler) MarkMissed(c *gin.Context) {
	h.apply(c, h.service.MarkMissed)
}

func (h *Handler) CancelConsultation(c *gin.Context) {
	h.apply(c, h.service.Cancel)
}

// UpdateStatus moves a consultation to one of the terminal statuses.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req model.UpdateConsultationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	status, err := model.ParseConsultationStatus(req.Status)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	switch status {
	case model.ConsultationStatusCompleted:
		h.apply(c, h.service.MarkCompleted)
	case model.ConsultationStatusCanceled:
		h.apply(c, h.service.Cancel)
	case model.ConsultationStatusMissed:
		h.apply(c, h.service.MarkMissed)
	default:
		httputil.RespondWithError(c, apperrors.BadRequest("status must be Completed, Canceled or Missed", nil))
	}
}

func (h *Handler) AttachDocument(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req model.AttachDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	doc, err := h.service.AttachDocument(c.Request.Context(), id, req.DocumentType, req.DocumentURL)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, doc)
}

func (h *Handler) apply(c *gin.Context, op func(context.Context, uuid.UUID) (*model.Consultation, error)) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	consultation, err := op(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, consultation)
}
