package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/carebook"
	"github.com/MrEthical07/carebook/middleware"
	"github.com/go-chi/chi/v5"
)

type emailRequest struct {
	Email string `json:"email"`
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type magicLinkVerifyRequest struct {
	Token string `json:"token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type issueResponse struct {
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expiresIn"`
}

type authResponse struct {
	Message string        `json:"message"`
	Token   string        `json:"token"`
	User    carebook.User `json:"user"`
}

type userResponse struct {
	Message string        `json:"message,omitempty"`
	User    carebook.User `json:"user"`
}

func (s *Server) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := s.engine.RequestCode(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issueResponse{Message: res.Message, ExpiresIn: seconds(res.ExpiresIn)})
}

func (s *Server) handleResendCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := s.engine.ResendCode(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issueResponse{Message: res.Message, ExpiresIn: seconds(res.ExpiresIn)})
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := s.engine.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Message: "Login successful", Token: res.Token, User: res.User})
}

func (s *Server) handleRequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := s.engine.RequestMagicLink(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issueResponse{Message: res.Message, ExpiresIn: seconds(res.ExpiresIn)})
}

func (s *Server) handleVerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := s.engine.VerifyMagicLink(r.Context(), req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Message: "Login successful", Token: res.Token, User: res.User})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Message: "Login successful", Token: res.Token, User: res.User})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := s.engine.Signup(r.Context(), carebook.SignupRequest{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Message: "Account created", Token: res.Token, User: res.User})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	user, err := s.engine.Profile(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: *user})
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	user, err := s.engine.SetRole(r.Context(), chi.URLParam(r, "email"), carebook.Role(req.Role))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "Role updated", User: *user})
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
