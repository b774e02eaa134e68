package web

import (
	"net/http"
	"strings"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/client"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/optimistic"
)

// authenticate resolves the bearer token and puts its user on the request
// context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			s.writeError(w, r, &auth.NotAuthenticatedError{Op: r.Method + " " + r.URL.Path})
			return
		}
		user, err := s.auth.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), *user)))
	})
}

// session returns the caller's client session, opening it on first use.
func (s *Server) session(r *http.Request) (*client.Session, error) {
	user, err := auth.CurrentUser(r.Context())
	if err != nil {
		return nil, err
	}
	return s.sessions.Get(r.Context(), user)
}

// settle answers a session write. With ?async=1 the optimistic value is
// returned at once with 202; otherwise the handler waits for the remote
// write and reports its outcome.
func (s *Server) settle(w http.ResponseWriter, r *http.Request, pending *optimistic.Pending, status int, result func() any) {
	if queryBool(r, "async") {
		writeJSON(w, http.StatusAccepted, result())
		return
	}
	if err := pending.Wait(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, result())
}

type authResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req auth.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.auth.SignUp(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("user signed up", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, user, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}
