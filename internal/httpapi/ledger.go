package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/ledger"
	"specsbiz/backend/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleLedger serves the filtered ledger as JSON, CSV, XLSX or a printable page.
func (a *API) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	filter, err := a.service.NewLedgerFilter(query.Get("q"), query.Get("type"), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view, err := a.service.Ledger(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	loc := a.service.Location()
	now := time.Now()
	var buf bytes.Buffer
	switch format := strings.ToLower(strings.TrimSpace(query.Get("format"))); format {
	case "", "json":
		writeJSON(w, http.StatusOK, view)
		return
	case "csv":
		if err := ledger.WriteCSV(&buf, view.Entries, loc); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeAttachment(w, "text/csv; charset=utf-8", ledger.ExportFileName(now, loc, "csv"), buf.Bytes())
	case "xlsx":
		if err := ledger.WriteXLSX(&buf, view.Entries, loc); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeAttachment(w, xlsxContentType, ledger.ExportFileName(now, loc, "xlsx"), buf.Bytes())
	case "print":
		columns, err := ledger.ParseColumns(query.Get("columns"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		settings, err := a.service.GetSettings(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if err := ledger.WritePrint(&buf, view.Entries, ledger.PrintOptions{
			ShopName:    settings.ShopName,
			Currency:    settings.Currency,
			Columns:     columns,
			GeneratedAt: now,
			Location:    loc,
		}); err != nil {
			a.logger.WithError(err).Error("ledger print rendering failed")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<!doctype html><html><body><p>Report rendering error.</p></body></html>"))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", format))
	}
}

func writeAttachment(w http.ResponseWriter, contentType string, fileName string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	_, _ = w.Write(body)
}

func (a *API) handleLedgerOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	overview, err := a.service.LedgerOverview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (a *API) handleSalesAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	report, err := a.service.SalesAnalytics(r.Context(), r.URL.Query().Get("range"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleLedgerDelete removes the record behind a ledger entry. The manager PIN
// travels in the body and is rate limited per client.
func (a *API) handleLedgerDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	parts := pathParts(r.URL.Path, "/api/v1/ledger/")
	if len(parts) != 2 {
		writeError(w, http.StatusBadRequest, errors.New("ledger category and id required"))
		return
	}

	var req domain.LedgerDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.allow(r, a.pinLimiter, "pin:ledger:"+clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return
	}

	ref := domain.LedgerRef{Category: strings.ToLower(parts[0]), ID: parts[1], CustomerID: strings.TrimSpace(req.CustomerID)}
	resp, err := a.service.DeleteLedgerEntry(r.Context(), ref, req.ManagerPIN)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPIN) {
			actor, _ := service.ActorFromContext(r.Context())
			a.logger.WithField("actor", actor.Username).WithField("entry", ref.Category+"/"+ref.ID).Warn("manager pin rejected")
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
