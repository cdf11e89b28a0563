package periods

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/morava-erp/morava-erp/internal/platform/httpx"
	"github.com/morava-erp/morava-erp/internal/vat/popdv"
)

const tenantHeader = "X-Tenant-ID"

// Handler wires the period lifecycle API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func tenantFrom(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.Header.Get(tenantHeader))
}

func periodIDFrom(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPeriodNotFound):
		httpx.Problem(w, http.StatusNotFound, "Period Not Found", err.Error())
	case errors.Is(err, ErrPeriodOverlap):
		httpx.Problem(w, http.StatusConflict, "Period Overlap", err.Error())
	case errors.Is(err, ErrLockedPeriod):
		httpx.Problem(w, http.StatusConflict, "Period Locked", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrNotComputed):
		httpx.Problem(w, http.StatusConflict, "Not Computed", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, popdv.ErrUnknownClassification):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Calculation Rejected", err.Error())
	case errors.Is(err, ErrExternalService):
		httpx.Problem(w, http.StatusBadGateway, "External Service Failure", err.Error())
	default:
		h.logger.Error("periods handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) withTenantAndID(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tenantID uuid.UUID, id int64)) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "valid "+tenantHeader+" header required")
		return
	}
	id, err := periodIDFrom(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "period id must be an integer")
		return
	}
	fn(r.Context(), tenantID, id)
}

// Create opens a new tax period.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "valid "+tenantHeader+" header required")
		return
	}
	var req createPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, end, err := req.dates()
	if err != nil {
		h.respondErr(w, err)
		return
	}
	period, err := h.service.CreatePeriod(r.Context(), CreatePeriodInput{
		TenantID:      tenantID,
		LegalEntityID: req.LegalEntityID,
		StartDate:     start,
		EndDate:       end,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPeriodResponse(period))
}

// List returns the tenant's periods.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFrom(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "valid "+tenantHeader+" header required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	periods, err := h.service.ListPeriods(r.Context(), tenantID, limit, offset)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	out := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Show returns one period with its latest snapshot when computed.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	h.withTenantAndID(w, r, func(ctx context.Context, tenantID uuid.UUID, id int64) {
		period, err := h.service.GetPeriod(ctx, tenantID, id)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		payload := map[string]any{"period": toPeriodResponse(period)}
		if snapshot, err := h.service.GetSnapshot(ctx, tenantID, id); err == nil {
			payload["snapshot"] = snapshot
		} else if !errors.Is(err, ErrNotComputed) {
			h.respondErr(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, payload)
	})
}

// Calculate recomputes the period.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	h.withTenantAndID(w, r, func(ctx context.Context, tenantID uuid.UUID, id int64) {
		var req calculateRequest
		if r.ContentLength > 0 {
			if err := httpx.DecodeJSON(r, &req); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
				return
			}
			if err := h.validate.Struct(req); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
				return
			}
		}
		nonDeductible, corrections, err := req.amounts()
		if err != nil {
			h.respondErr(w, err)
			return
		}
		snapshot, err := h.service.Calculate(ctx, CalculateInput{
			TenantID: tenantID,
			PeriodID: id,
			Adjustments: popdv.Adjustments{
				NonDeductibleVAT: nonDeductible,
				NetCorrections:   corrections,
			},
		})
		if err != nil {
			h.respondErr(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, snapshot)
	})
}

// Submit lodges the declaration.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.withTenantAndID(w, r, func(ctx context.Context, tenantID uuid.UUID, id int64) {
		period, err := h.service.Submit(ctx, tenantID, id)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
	})
}

// Settle posts the settlement journal entry.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	h.withTenantAndID(w, r, func(ctx context.Context, tenantID uuid.UUID, id int64) {
		result, err := h.service.Settle(ctx, tenantID, id)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, settleResponse{
			JournalEntryID: result.JournalEntryID,
			AlreadyPosted:  result.AlreadyPosted,
			PaymentOrder:   result.PaymentOrder,
		})
	})
}

// Lock and Unlock toggle the lock flag.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request)   { h.setLocked(w, r, true) }
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) { h.setLocked(w, r, false) }

func (h *Handler) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	h.withTenantAndID(w, r, func(ctx context.Context, tenantID uuid.UUID, id int64) {
		period, err := h.service.SetLocked(ctx, tenantID, id, locked)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
	})
}

// Close marks the filing cycle complete.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	h.withTenantAndID(w, r, func(ctx context.Context, tenantID uuid.UUID, id int64) {
		period, err := h.service.Close(ctx, tenantID, id)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
	})
}

// Declaration serves the PP-PDV XML for download.
func (h *Handler) Declaration(w http.ResponseWriter, r *http.Request) {
	h.withTenantAndID(w, r, func(ctx context.Context, tenantID uuid.UUID, id int64) {
		xmlDoc, err := h.service.DeclarationXML(ctx, tenantID, id)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(xmlDoc))
	})
}
