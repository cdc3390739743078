// Package handler exposes the presence service over JSON HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"residency/internal/platform/middleware"
	"residency/internal/presence/conflict"
	"residency/internal/presence/report"
	"residency/internal/presence/rules"
	"residency/internal/presence/service"
	evidencestore "residency/internal/presence/store/evidence"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
	"residency/pkg/platform/httputil"
	"residency/pkg/platform/middleware/requesttime"
	"residency/pkg/requestcontext"
)

// maxFeedBytes bounds an evidence feed upload.
const maxFeedBytes = 16 << 20

// Service is the presence service as the handler sees it.
type Service interface {
	PutEvidence(ctx context.Context, userID id.UserID, feed []byte) (*evidencestore.Snapshot, error)
	GenerateReport(ctx context.Context, req service.ReportRequest) (*report.UniversalReport, error)
	ResolveConflict(ctx context.Context, userID id.UserID, conflictID id.ConflictID, country id.CountryCode) (conflict.Override, error)
	AvailableCountries(ctx context.Context) ([]id.CountryCode, error)
	CountryRules(ctx context.Context, code id.CountryCode) ([]rules.CountryRule, error)
}

// Handler serves the /v1 presence routes.
type Handler struct {
	service Service
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a presence Handler.
func New(svc Service, logger *slog.Logger, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{service: svc, logger: logger, timeout: timeout}
}

// Register mounts the presence routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(middleware.Recovery(h.logger))
		v1.Use(middleware.RequestID)
		v1.Use(requesttime.Middleware)
		v1.Use(middleware.Logger(h.logger))
		v1.Use(middleware.Timeout(h.timeout))

		v1.Route("/users/{userID}", func(u chi.Router) {
			u.Use(h.withUser)
			u.Put("/evidence", h.handlePutEvidence)
			u.Post("/reports", h.handleGenerateReport)
			u.Post("/conflicts/{conflictID}/resolve", h.handleResolveConflict)
		})
		v1.Get("/countries", h.handleCountries)
		v1.Get("/countries/{code}/rules", h.handleCountryRules)
	})
}

// withUser parses the path user id into the request context.
func (h *Handler) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ctx := requestcontext.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handlePutEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFeedBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "evidence feed is too large"))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "could not read evidence feed"))
		return
	}

	snap, err := h.service.PutEvidence(ctx, requestcontext.UserID(ctx), body)
	if err != nil {
		h.fail(ctx, w, "failed to store evidence", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SnapshotResponse{
		SnapshotID: snap.ID,
		Records:    len(snap.Records),
		CreatedAt:  snap.CreatedAt,
	})
}

func (h *Handler) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[GenerateReportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	rep, err := h.service.GenerateReport(ctx, service.ReportRequest{
		UserID:         requestcontext.UserID(ctx),
		From:           req.from,
		To:             req.to,
		Attribution:    req.attribution,
		Timezone:       req.Timezone,
		RuleSet:        req.RuleSet,
		RuleSetVersion: req.RuleSetVersion,
		Jurisdictions:  req.jurisdictions,
	})
	if err != nil {
		h.fail(ctx, w, "failed to generate report", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	conflictID, err := id.ParseConflictID(chi.URLParam(r, "conflictID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveConflictRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	pin, err := h.service.ResolveConflict(ctx, requestcontext.UserID(ctx), conflictID, req.country)
	if err != nil {
		h.fail(ctx, w, "failed to resolve conflict", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pin)
}

func (h *Handler) handleCountries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	countries, err := h.service.AvailableCountries(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to list countries", requestcontext.RequestID(ctx), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CountriesResponse{Countries: countries})
}

func (h *Handler) handleCountryRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, err := id.ParseCountryCode(chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "unknown country"))
		return
	}
	rs, err := h.service.CountryRules(ctx, code)
	if err != nil {
		h.fail(ctx, w, "failed to list country rules", requestcontext.RequestID(ctx), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CountryRulesResponse{Country: code, Rules: rs})
}

// fail logs at a level matching the error class and writes the response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg, requestID string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = dErrors.Wrap(err, dErrors.CodeTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		err = dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled")
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}
