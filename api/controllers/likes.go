package controllers

import (
	"net/http"

	"github.com/dormmatehq/dormmate-backend/api/middleware"
	"github.com/dormmatehq/dormmate-backend/api/responses"
	"github.com/dormmatehq/dormmate-backend/api/validators"
	"github.com/dormmatehq/dormmate-backend/internal/match"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/dormmatehq/dormmate-backend/pkg/pagination"
	"github.com/go-chi/chi/v5"
)

// LikeStudent records a like from the caller toward the target.
func LikeStudent(svc *match.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID := middleware.UserIDFromContext(r.Context())
		targetID, err := validators.ParsePathUUID(chi.URLParam(r, "userID"), "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Like(r.Context(), actorID, targetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListReceivedLikes pages through likes the caller has received.
func ListReceivedLikes(svc *match.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListReceived(r.Context(), userID, limit, r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
