package auditlog

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/pagination"
	"github.com/eventflow/backend/pkg/response"
)

// Reader is the read side of the audit log.
type Reader interface {
	List(ctx context.Context, f Filter) (pagination.Page[models.AuditLog], error)
	Actions(ctx context.Context) ([]string, error)
}

// Handler serves the admin audit log.
type Handler struct {
	reader Reader
	logger *zap.Logger
}

// NewHandler creates an audit log handler.
func NewHandler(reader Reader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reader: reader, logger: logger}
}

// List handles GET /admin/audit-logs?search=&action=&from=&to=&page=&page_size=.
// Dates are YYYY-MM-DD; "to" includes the whole day.
func (h *Handler) List(c *gin.Context) {
	f := Filter{Search: c.Query("search"), Action: c.Query("action")}
	f.Page, _ = strconv.Atoi(c.Query("page"))
	f.PageSize, _ = strconv.Atoi(c.Query("page_size"))
	if s := c.Query("from"); s != "" {
		t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
		if err != nil {
			response.BadRequest(c, "invalid from date")
			return
		}
		f.From = &t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
		if err != nil {
			response.BadRequest(c, "invalid to date")
			return
		}
		end := t.AddDate(0, 0, 1)
		f.To = &end
	}
	page, err := h.reader.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list audit logs failed", zap.Error(err))
		response.Internal(c, "failed to load audit logs")
		return
	}
	response.OK(c, page)
}

// Actions handles GET /admin/audit-logs/actions.
func (h *Handler) Actions(c *gin.Context) {
	actions, err := h.reader.Actions(c.Request.Context())
	if err != nil {
		h.logger.Error("list audit actions failed", zap.Error(err))
		response.Internal(c, "failed to load audit actions")
		return
	}
	response.OK(c, actions)
}
