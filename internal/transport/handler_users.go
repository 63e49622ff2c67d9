package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/karani/internal/admin"
	"github.com/pitabwire/karani/model"
)

func handleUserUpdate(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			IsActive string `json:"isActive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		out, err := svc.Update(r.Context(), rctx, admin.UpdateRequest{
			ID:       chi.URLParam(r, "id"),
			Username: body.Username,
			Email:    body.Email,
			IsActive: body.IsActive,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteOutcome(w, out)
	}
}

func handleUserPassword(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			NewPassword string `json:"newPassword"`
			Confirm     string `json:"confirm"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		out, err := svc.Password(r.Context(), rctx, admin.PasswordRequest{
			ID:          chi.URLParam(r, "id"),
			NewPassword: body.NewPassword,
			Confirm:     body.Confirm,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteOutcome(w, out)
	}
}

func handleUserDelete(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		out, err := svc.Delete(r.Context(), rctx, admin.DeleteRequest{
			ID: chi.URLParam(r, "id"),
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteOutcome(w, out)
	}
}
