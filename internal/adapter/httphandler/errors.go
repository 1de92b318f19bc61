package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/niksmo/storefront/internal/core/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write response body", "err", err)
	}
}

// writeError maps core errors to a status and a JSON body. Unexpected
// errors are logged and answered without details.
func writeError(w http.ResponseWriter, err error, log *slog.Logger) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "err", err)
		writeJSON(w, status, ErrorResponse{Error: http.StatusText(status)}, log)
		return
	}

	log.Info("request rejected", "status", status, "err", err)

	res := ErrorResponse{Error: publicMessage(err)}
	shortfalls := insufficientStock(err)
	if len(shortfalls) != 0 {
		first := shortfalls[0]
		res.ProductID = first.ProductID
		res.Available = &first.Available
		res.Requested = &first.Requested
		for _, s := range shortfalls {
			res.Shortfalls = append(res.Shortfalls, Shortfall{
				ProductID: s.ProductID,
				Available: s.Available,
				Requested: s.Requested,
			})
		}
	}
	writeJSON(w, status, res, log)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCartLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrStockRaceLost),
		errors.Is(err, domain.ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	for _, target := range []error{
		domain.ErrEmptyCart,
		domain.ErrInvalidQuantity,
		domain.ErrProductNotFound,
		domain.ErrOrderNotFound,
		domain.ErrCartLineNotFound,
		domain.ErrInsufficientStock,
		domain.ErrStockRaceLost,
		domain.ErrOutOfStock,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

// insufficientStock collects every shortfall in the error tree.
func insufficientStock(err error) []*domain.InsufficientStockError {
	var out []*domain.InsufficientStockError
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
		case *domain.InsufficientStockError:
			out = append(out, e)
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return out
}
