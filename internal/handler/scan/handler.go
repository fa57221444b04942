package scan

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"

	"github.com/jwalitptl/consult-api/internal/service/scanner"
	"github.com/jwalitptl/consult-api/pkg/httputil"
)

type Scanner interface {
	Reminders(ctx context.Context, now time.Time) (*scanner.Result, error)
	LicenseExpiry(ctx context.Context, now time.Time) (*scanner.Result, error)
}

// Handler triggers scans on demand. The periodic runs live in the worker.
type Handler struct {
	scanner Scanner
	now     func() time.Time
}

func NewHandler(s Scanner, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{scanner: s, now: now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	scans := r.Group("/scans")
	{
		scans.POST("/reminders", h.run(h.scanner.Reminders))
		scans.POST("/licenses", h.run(h.scanner.LicenseExpiry))
	}
}

type response struct {
	*scanner.Result
	Errors []string `json:"errors,omitempty"`
}

func (h *Handler) run(scan func(context.Context, time.Time) (*scanner.Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := scan(c.Request.Context(), h.now())
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		out := response{Result: res}
		if res.Err != nil {
			_ = c.Error(res.Err)
			for _, e := range multierr.Errors(res.Err) {
				out.Errors = append(out.Errors, e.Error())
			}
		}
		httputil.RespondWithSuccess(c, out)
	}
}
