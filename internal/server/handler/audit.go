package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// AuditHandler serves the audit log.
type AuditHandler struct {
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// ListAudit returns audit entries, newest first.
// GET /api/audit?user=&asset=&event=&since=&limit=&offset=
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
