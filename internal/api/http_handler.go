package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"sneaker-review-service/internal/auth"
	"sneaker-review-service/internal/domain"
	"sneaker-review-service/internal/service"
)

const (
	loginURL    = "/login/"
	maxBodySize = 1 << 20
)

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	catalog  *service.CatalogService
	accounts *service.AccountService
	reviews  *service.ReviewService
	session  *auth.Session
	logger   *logrus.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(catalog *service.CatalogService, accounts *service.AccountService, reviews *service.ReviewService, session *auth.Session, logger *logrus.Logger) *HTTPHandler {
	return &HTTPHandler{
		catalog:  catalog,
		accounts: accounts,
		reviews:  reviews,
		session:  session,
		logger:   logger,
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error          string              `json:"error"`
	Fields         map[string][]string `json:"fields,omitempty"`
	NonFieldErrors []string            `json:"non_field_errors,omitempty"`
	Form           interface{}         `json:"form,omitempty"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logrus.WithError(err).Error("failed to encode JSON response")
		}
	}
}

// respondRedirect answers a successful POST with 303 See Other. The body
// repeats the target and carries any extra context fields.
func respondRedirect(w http.ResponseWriter, location string, extra map[string]interface{}) {
	body := map[string]interface{}{"redirect": location}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Location", location)
	respondWithJSON(w, http.StatusSeeOther, body)
}

// redirectToLogin sends anonymous callers to the login page, remembering where they were going.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	next := strings.ReplaceAll(url.QueryEscape(r.URL.RequestURI()), "%2F", "/")
	location := loginURL + "?next=" + next
	w.Header().Set("Location", location)
	respondWithJSON(w, http.StatusFound, map[string]string{"redirect": location})
}

// handleServiceError maps service errors to responses. form is echoed back on validation failures.
func (h *HTTPHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error, form interface{}) {
	if ve, ok := service.AsValidationError(err); ok {
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:          "Validation failed",
			Fields:         ve.Fields,
			NonFieldErrors: ve.NonField,
			Form:           form,
		})
		return
	}
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		redirectToLogin(w, r)
	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "You do not have permission to perform this action.")
	case errors.Is(err, service.ErrPageOutOfRange):
		respondWithError(w, http.StatusNotFound, "Invalid page.")
	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, service.ErrInvalidCredentials):
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:          "Validation failed",
			NonFieldErrors: []string{service.InvalidCredentialsMessage},
			Form:           form,
		})
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// pathID reads a positive integer URL parameter. Anything else is reported as not found.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

// formPayload is implemented by request bodies that can also arrive url-encoded.
type formPayload interface {
	fromForm(v url.Values)
}

// decodeInput fills dst from a JSON body or from form values.
func decodeInput(w http.ResponseWriter, r *http.Request, dst formPayload) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return fmt.Errorf("invalid request payload: %w", err)
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("invalid form data: %w", err)
	}
	dst.fromForm(r.PostForm)
	return nil
}

func sneakerURL(id int64) string {
	return fmt.Sprintf("/tenis/%d/", id)
}

// --- Catalog Handlers ---

func (h *HTTPHandler) ListSneakers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := service.ListSneakersInput{
		Page:  q.Get("page"),
		Query: q.Get("q"),
	}
	if raw := q.Get("categoria"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			ve := &service.ValidationError{}
			ve.Add("categoria", "Enter a whole number.")
			h.handleServiceError(w, r, ve, nil)
			return
		}
		in.CategoryID = &id
	}

	page, err := h.catalog.ListSneakers(r.Context(), in)
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func (h *HTTPHandler) GetSneakerDetail(w http.ResponseWriter, r *http.Request) {
	sneakerID, ok := pathID(w, r, "sneakerId")
	if !ok {
		return
	}
	detail, err := h.catalog.GetSneakerDetail(r.Context(), sneakerID)
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

// --- Account Handlers ---

type registrationPayload struct {
	Username  string `json:"username"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

func (p *registrationPayload) fromForm(v url.Values) {
	p.Username = v.Get("username")
	p.Password1 = v.Get("password1")
	p.Password2 = v.Get("password2")
}

func (h *HTTPHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"form": map[string]string{"username": ""},
	})
}

func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input registrationPayload
	if err := decodeInput(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.accounts.Register(r.Context(), service.RegistrationInput(input))
	if err != nil {
		// Passwords are never echoed back.
		h.handleServiceError(w, r, err, map[string]string{"username": input.Username})
		return
	}
	h.logger.WithField("user_id", user.ID).Info("account registered")
	respondRedirect(w, loginURL, map[string]interface{}{"message": service.RegisteredMessage})
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Next     string `json:"next"`
}

func (p *loginPayload) fromForm(v url.Values) {
	p.Username = v.Get("username")
	p.Password = v.Get("password")
	if next := v.Get("next"); next != "" {
		p.Next = next
	}
}

// safeNext accepts only local absolute paths as redirect targets.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}

func (h *HTTPHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"form": map[string]string{"username": ""},
		"next": r.URL.Query().Get("next"),
	})
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	input := loginPayload{Next: r.URL.Query().Get("next")}
	if err := decodeInput(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), service.LoginInput{Username: input.Username, Password: input.Password})
	if err != nil {
		h.handleServiceError(w, r, err, map[string]string{"username": input.Username, "next": input.Next})
		return
	}
	token, err := h.session.Login(w, user)
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	respondRedirect(w, safeNext(input.Next), map[string]interface{}{
		"user":  domain.Author{ID: user.ID, Username: user.Username},
		"token": token,
	})
}

func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(w, r); err != nil {
		h.logger.WithError(err).Warn("logout could not revoke the session token")
	}
	respondRedirect(w, "/", nil)
}

// --- Review Handlers ---

// ratingValue takes the rating as a JSON number or string and keeps the raw
// text, leaving the range check to the rating rule so bad values come back as
// a field error.
type ratingValue string

func (v *ratingValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = ratingValue(s)
		return nil
	}
	*v = ratingValue(data)
	return nil
}

type reviewPayload struct {
	Title  string      `json:"title"`
	Body   string      `json:"body"`
	Rating ratingValue `json:"rating"`
}

func (p *reviewPayload) fromForm(v url.Values) {
	p.Title = v.Get("title")
	p.Body = v.Get("body")
	p.Rating = ratingValue(v.Get("rating"))
}

func (p *reviewPayload) toInput() service.ReviewInput {
	return service.ReviewInput{Title: p.Title, Body: p.Body, Rating: string(p.Rating)}
}

// decodeReview reads the review body. When it does not decode, guard is
// checked first, so a missing target or a foreign review still answers 404
// or 403 whatever the body holds.
func (h *HTTPHandler) decodeReview(w http.ResponseWriter, r *http.Request, guard func() error) (reviewPayload, bool) {
	var input reviewPayload
	decodeErr := decodeInput(w, r, &input)
	if decodeErr == nil {
		return input, true
	}
	if err := guard(); err != nil {
		h.handleServiceError(w, r, err, nil)
		return input, false
	}
	respondWithError(w, http.StatusBadRequest, decodeErr.Error())
	return input, false
}

func (h *HTTPHandler) NewReviewForm(w http.ResponseWriter, r *http.Request) {
	sneakerID, ok := pathID(w, r, "sneakerId")
	if !ok {
		return
	}
	form, err := h.reviews.NewForm(r.Context(), sneakerID, auth.UserFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	respondWithJSON(w, http.StatusOK, form)
}

func (h *HTTPHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	sneakerID, ok := pathID(w, r, "sneakerId")
	if !ok {
		return
	}
	currentUser := auth.UserFromContext(r.Context())
	if currentUser == nil {
		redirectToLogin(w, r)
		return
	}

	input, ok := h.decodeReview(w, r, func() error {
		_, err := h.reviews.NewForm(r.Context(), sneakerID, currentUser)
		return err
	})
	if !ok {
		return
	}

	review, err := h.reviews.Create(r.Context(), sneakerID, currentUser, input.toInput())
	if err != nil {
		h.handleServiceError(w, r, err, input.toInput())
		return
	}
	respondRedirect(w, sneakerURL(sneakerID), map[string]interface{}{"review": review})
}

func (h *HTTPHandler) EditReviewForm(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := pathID(w, r, "reviewId")
	if !ok {
		return
	}
	form, err := h.reviews.GetForEdit(r.Context(), reviewID, auth.UserFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	respondWithJSON(w, http.StatusOK, form)
}

func (h *HTTPHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := pathID(w, r, "reviewId")
	if !ok {
		return
	}
	currentUser := auth.UserFromContext(r.Context())
	if currentUser == nil {
		redirectToLogin(w, r)
		return
	}

	input, ok := h.decodeReview(w, r, func() error {
		_, err := h.reviews.GetForEdit(r.Context(), reviewID, currentUser)
		return err
	})
	if !ok {
		return
	}

	review, err := h.reviews.Update(r.Context(), reviewID, currentUser, input.toInput())
	if err != nil {
		h.handleServiceError(w, r, err, input.toInput())
		return
	}
	respondRedirect(w, sneakerURL(review.SneakerID), map[string]interface{}{"review": review})
}

func (h *HTTPHandler) DeleteReviewConfirm(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := pathID(w, r, "reviewId")
	if !ok {
		return
	}
	review, err := h.reviews.GetForDelete(r.Context(), reviewID, auth.UserFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"review": review})
}

func (h *HTTPHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := pathID(w, r, "reviewId")
	if !ok {
		return
	}
	sneakerID, err := h.reviews.Delete(r.Context(), reviewID, auth.UserFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	respondRedirect(w, sneakerURL(sneakerID), nil)
}

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.session.Middleware)

		r.Get("/", h.ListSneakers)
		r.Get("/categorias/", h.ListCategories)

		r.Get("/login/", h.LoginForm)
		r.Post("/login/", h.Login)
		r.Post("/logout/", h.Logout)
		r.Get("/cadastro/", h.RegisterForm)
		r.Post("/cadastro/", h.Register)

		r.Route("/tenis/{sneakerId}", func(r chi.Router) {
			r.Get("/", h.GetSneakerDetail)
			r.Get("/review/novo/", h.NewReviewForm)
			r.Post("/review/novo/", h.CreateReview)
		})

		r.Route("/review/{reviewId}", func(r chi.Router) {
			r.Get("/editar/", h.EditReviewForm)
			r.Post("/editar/", h.UpdateReview)
			r.Get("/deletar/", h.DeleteReviewConfirm)
			r.Post("/deletar/", h.DeleteReview)
		})
	})
}
