package api

import (
	"net/http"

	"github.com/UkralStul/content-service/internal/domain"
	"github.com/UkralStul/content-service/internal/users"
	"github.com/go-chi/chi/v5"
)

type updateUserRequest struct {
	Username *string      `json:"username" validate:"omitempty,min=3"`
	Password *string      `json:"password" validate:"omitempty,min=5,max=72"`
	Role     *domain.Role `json:"role" validate:"omitempty,oneof=admin editor user"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	list, err := s.Users.List(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	user, err := s.Users.Get(r.Context(), chi.URLParam(r, "id"), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.Users.Update(r.Context(), chi.URLParam(r, "id"), id, users.Patch{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := s.Users.Delete(r.Context(), chi.URLParam(r, "id"), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true, Message: "user deleted"})
}
