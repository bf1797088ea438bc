package controllers

import (
	"net/http"

	"github.com/dormmatehq/dormmate-backend/api/middleware"
	"github.com/dormmatehq/dormmate-backend/api/responses"
	"github.com/dormmatehq/dormmate-backend/api/validators"
	"github.com/dormmatehq/dormmate-backend/internal/match"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// ListMatches returns the caller's derived matches.
func ListMatches(svc *match.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())

		result, err := svc.ListMatches(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Unmatch dissolves a match with the given counterpart.
func Unmatch(svc *match.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		otherID, err := validators.ParsePathUUID(chi.URLParam(r, "userID"), "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Unmatch(r.Context(), userID, otherID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "unmatched"})
	}
}
