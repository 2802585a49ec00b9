package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sp3dr4/webcache/internal/application"
	"github.com/sp3dr4/webcache/internal/domain"
	"github.com/sp3dr4/webcache/internal/pkg/logging"
)

const (
	headerAccessCount = "X-Access-Count"
	headerCache       = "X-Cache"
)

type Handlers struct {
	fetcher  *application.CachingFetcher
	store    domain.Store
	validate *validator.Validate
}

func NewHandlers(fetcher *application.CachingFetcher, store domain.Store) *Handlers {
	return &Handlers{
		fetcher:  fetcher,
		store:    store,
		validate: validator.New(),
	}
}

// PageRequest is the query accepted by the page and count endpoints.
type PageRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// CountResponse reports the access counter of a URL.
type CountResponse struct {
	URL   string `json:"url" example:"http://example.com"`
	Count int64  `json:"count" example:"3"`
}

// HandleHealth handles the health check endpoint.
//
//	@Summary		Health check endpoint
//	@Description	Check if the service is running
//	@Tags			health
//	@Produce		plain
//	@Success		200	{string}	string	"OK"
//	@Router			/health [get]
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// HandleReady handles the readiness check endpoint.
//
//	@Summary		Readiness check endpoint
//	@Description	Check if the service is ready to serve requests (includes store connectivity)
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	object{status=string,timestamp=string}	"Service is ready"
//	@Failure		503	{object}	ErrorResponse							"Service is not ready"
//	@Router			/ready [get]
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logging.FromContext(ctx, nil).Error("Readiness check failed", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Service not ready: store unavailable")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "ready",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// HandlePage handles the cached page endpoint.
//
//	@Summary		Get page content
//	@Description	Return the content of a URL, served from cache when a fresh copy exists. Every call increments the URL's access counter.
//	@Tags			pages
//	@Produce		html
//	@Param			url	query		string	true	"URL to fetch"
//	@Success		200	{string}	string					"Page content"
//	@Header			200	{integer}	X-Access-Count			"Access counter after this request"
//	@Header			200	{string}	X-Cache					"HIT or MISS"
//	@Failure		400	{object}	ValidationErrorResponse	"Invalid url"
//	@Failure		502	{object}	ErrorResponse			"Upstream fetch failed"
//	@Failure		503	{object}	ErrorResponse			"Store unavailable"
//	@Router			/page [get]
func (h *Handlers) HandlePage(w http.ResponseWriter, r *http.Request) {
	req, ok := h.bindPageRequest(w, r)
	if !ok {
		return
	}

	result, err := h.fetcher.FetchResult(r.Context(), req.URL)
	if err != nil {
		h.respondWithFetchError(w, r, err)
		return
	}

	cacheStatus := "MISS"
	if result.CacheHit {
		cacheStatus = "HIT"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set(headerAccessCount, strconv.FormatInt(result.Count, 10))
	w.Header().Set(headerCache, cacheStatus)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(result.Content))
}

// HandleCount handles the access counter endpoint.
//
//	@Summary		Get access count
//	@Description	Return how many times a URL has been requested through the page endpoint
//	@Tags			pages
//	@Produce		json
//	@Param			url	query		string	true	"URL to look up"
//	@Success		200	{object}	CountResponse			"Access counter"
//	@Failure		400	{object}	ValidationErrorResponse	"Invalid url"
//	@Failure		503	{object}	ErrorResponse			"Store unavailable"
//	@Router			/count [get]
func (h *Handlers) HandleCount(w http.ResponseWriter, r *http.Request) {
	req, ok := h.bindPageRequest(w, r)
	if !ok {
		return
	}

	count, err := h.fetcher.Count(r.Context(), req.URL)
	if err != nil {
		h.respondWithFetchError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, CountResponse{URL: req.URL, Count: count})
}

func (h *Handlers) bindPageRequest(w http.ResponseWriter, r *http.Request) (PageRequest, bool) {
	req := PageRequest{URL: r.URL.Query().Get("url")}

	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			handleValidationError(w, validationErrors)
			return req, false
		}
		respondWithError(w, http.StatusBadRequest, "Invalid request")
		return req, false
	}

	return req, true
}

func (h *Handlers) respondWithFetchError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context(), nil)

	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		logger.Error("Store unavailable", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Store unavailable")
	case errors.Is(err, domain.ErrFetch):
		logger.Warn("Upstream fetch failed", "error", err)
		respondWithError(w, http.StatusBadGateway, "Failed to fetch page")
	default:
		logger.Error("Unexpected error", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal error")
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     map[string]string `json:"error"`
	Timestamp string            `json:"timestamp" example:"2024-01-31T12:00:00Z"`
}

// ValidationErrorResponse represents a validation error response.
type ValidationErrorResponse struct {
	Details map[string]string `json:"details"`
	Error   string            `json:"error" example:"Validation failed"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(context.Background(), nil).Error("Failed to encode response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]interface{}{
		"error": map[string]string{
			"message": message,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func handleValidationError(w http.ResponseWriter, validationErrors validator.ValidationErrors) {
	errorMessages := make(map[string]string)
	for _, e := range validationErrors {
		field := getJSONFieldName(e)
		switch e.Tag() {
		case "required":
			errorMessages[field] = fmt.Sprintf("%s is required", field)
		case "url":
			errorMessages[field] = fmt.Sprintf("%s must be a valid URL", field)
		default:
			errorMessages[field] = fmt.Sprintf("%s is invalid", field)
		}
	}

	respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "Validation failed",
		"details": errorMessages,
	})
}

// getJSONFieldName extracts the JSON tag name from a validation error
func getJSONFieldName(e validator.FieldError) string {
	structType := getStructTypeFromError(e)
	if structType == nil {
		return e.Field()
	}

	field, found := structType.FieldByName(e.StructField())
	if !found {
		return e.Field()
	}

	jsonTag := field.Tag.Get("json")
	if jsonTag == "" {
		return e.Field()
	}

	if commaIndex := strings.Index(jsonTag, ","); commaIndex != -1 {
		jsonTag = jsonTag[:commaIndex]
	}

	return jsonTag
}

// getStructTypeFromError resolves the request struct named in the error namespace ("PageRequest.URL")
func getStructTypeFromError(e validator.FieldError) reflect.Type {
	parts := strings.Split(e.StructNamespace(), ".")
	if len(parts) < 2 {
		return nil
	}

	switch parts[0] {
	case "PageRequest":
		return reflect.TypeOf(PageRequest{})
	default:
		return nil
	}
}
