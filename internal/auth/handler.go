package auth

import (
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/keystone-iam/keystone/internal/platform/httpx"
	"github.com/keystone-iam/keystone/internal/shared"
	"github.com/keystone-iam/keystone/internal/users"
)

const refreshCookieName = "refreshToken"

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Handler wires HTTP endpoints for authentication flows. The refresh token
// travels only in an HttpOnly SameSite=Strict cookie; the access token is
// returned in the body and expected back as a bearer credential.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authn     Middleware
	validator *validator.Validate
	secure    bool
}

// NewHandler constructs a Handler instance. secure controls the cookie
// Secure attribute and should be true in production.
func NewHandler(logger *slog.Logger, service *Service, authn Middleware, secure bool) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		authn:     authn,
		validator: validator.New(),
		secure:    secure,
	}
}

// MountRoutes registers auth routes on the provided router. The rate
// limiter guards the credential endpoints; logout and profile require an
// authenticated principal.
func (h *Handler) MountRoutes(r chi.Router, limiter func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter)
		}
		r.Post("/signup", h.handleSignup)
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authn.RequireAuthenticated)
		r.Post("/logout", h.handleLogout)
		r.Get("/profile", h.handleProfile)
	})
}

type locationRequest struct {
	Country string `json:"country" validate:"omitempty,max=100"`
	State   string `json:"state" validate:"omitempty,max=100"`
	City    string `json:"city" validate:"omitempty,max=100"`
	Pincode string `json:"pincode" validate:"omitempty,max=20"`
}

type signupRequest struct {
	FirstName            string           `json:"firstName" validate:"required,min=2,max=100"`
	LastName             string           `json:"lastName" validate:"required,min=2,max=100"`
	Username             string           `json:"username" validate:"required,min=3,max=100"`
	Email                string           `json:"email" validate:"required,email,max=255"`
	Password             string           `json:"password" validate:"required,min=8,max=100"`
	PasswordConfirmation string           `json:"passwordConfirmation" validate:"required"`
	Role                 string           `json:"role" validate:"required,oneof=super_admin admin employee user"`
	DateOfBirth          string           `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	PhoneNumber          string           `json:"phoneNumber" validate:"omitempty,max=20"`
	Location             *locationRequest `json:"location" validate:"omitempty"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required,min=3"`
	Password        string `json:"password" validate:"required,min=8"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	User        Profile `json:"user"`
	AccessToken string  `json:"accessToken"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields, ok := h.validate(req); !ok {
		httpx.ValidationProblem(w, fields)
		return
	}
	if !usernamePattern.MatchString(req.Username) {
		httpx.ValidationProblem(w, map[string]string{
			"username": "can only contain letters, numbers, and underscores",
		})
		return
	}

	in := users.SignupInput{
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		Username:             req.Username,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
		Role:                 req.Role,
		PhoneNumber:          req.PhoneNumber,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"dateOfBirth": "must be a YYYY-MM-DD date"})
			return
		}
		in.DateOfBirth = &dob
	}
	if req.Location != nil {
		in.Location = &users.Location{
			Country: req.Location.Country,
			State:   req.Location.State,
			City:    req.Location.City,
			Pincode: req.Location.Pincode,
		}
	}

	sess, err := h.service.Signup(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.setRefreshCookie(w, sess.Tokens.RefreshToken)
	httpx.JSON(w, http.StatusCreated, sessionResponse{User: sess.User, AccessToken: sess.Tokens.AccessToken})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields, ok := h.validate(req); !ok {
		httpx.ValidationProblem(w, fields)
		return
	}

	sess, err := h.service.Login(r.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.setRefreshCookie(w, sess.Tokens.RefreshToken)
	httpx.JSON(w, http.StatusOK, sessionResponse{User: sess.User, AccessToken: sess.Tokens.AccessToken})
}

// handleRefresh accepts the refresh token from the cookie first, then the
// body, matching the transport contract with browser and non-browser
// callers.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var req refreshRequest
		if err := httpx.DecodeJSON(r, &req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	sess, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.setRefreshCookie(w, sess.Tokens.RefreshToken)
	httpx.JSON(w, http.StatusOK, sessionResponse{User: sess.User, AccessToken: sess.Tokens.AccessToken})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.service.Logout(r.Context(), principal.UserID); err != nil {
		h.logger.Error("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.clearRefreshCookie(w)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	profile, err := h.service.GetProfile(r.Context(), principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(7 * 24 * time.Hour / time.Second),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) validate(req any) (map[string]string, bool) {
	err := h.validator.Struct(req)
	if err == nil {
		return nil, true
	}
	fields := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fieldErr := range verrs {
			fields[fieldErr.Field()] = "failed " + fieldErr.Tag() + " validation"
		}
	} else {
		fields["_"] = err.Error()
	}
	return fields, false
}
