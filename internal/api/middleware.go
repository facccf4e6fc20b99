package api

import (
	"net/http"
	"strconv"

	"inkwell/internal/logging"
)

type apiError struct {
	Status  int
	Message string
	Code    string
	Context map[string]interface{}
}

type apiHandler func(http.ResponseWriter, *http.Request) *apiError

const cacheControlNoStore = "no-store, must-revalidate"

func setSecurityHeaders(w http.ResponseWriter, cacheControl string) {
	headers := w.Header()
	headers.Set("X-Content-Type-Options", "nosniff")
	if cacheControl != "" {
		headers.Set("Cache-Control", cacheControl)
	}
}

func securityHeadersHandler(cacheControl string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControl)
		next(w, r)
	}
}

func securityHeadersMiddleware(cacheControl string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cacheControl)
		next.ServeHTTP(w, r)
	})
}

func authMiddleware(token string, next apiHandler) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if !validateToken(r, token) {
			return &apiError{Status: http.StatusUnauthorized, Message: "unauthorized"}
		}
		return next(w, r)
	}
}

func jsonErrorMiddleware(logger *logging.Logger, next apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := next(w, r)
		if err == nil {
			return
		}
		if err.Status >= http.StatusInternalServerError && logger != nil {
			logger.Error("api request failed", map[string]string{
				logging.FieldCategory: "api",
				logging.FieldSource:   "backend",
				"method":              r.Method,
				"path":                r.URL.Path,
				"status":              strconv.Itoa(err.Status),
				"code":                err.Code,
				"error":               err.Message,
			})
		}
		writeJSONError(w, err)
	}
}

func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Debug("api request", map[string]string{
				logging.FieldCategory: "api",
				logging.FieldSource:   "backend",
				"http.route":          r.URL.Path,
				"method":              r.Method,
				"path":                r.URL.Path,
			})
		}
		next.ServeHTTP(w, r)
	})
}

func methodNotAllowed(w http.ResponseWriter, allow string) *apiError {
	w.Header().Set("Allow", allow)
	return &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
}

func restHandler(token string, logger *logging.Logger, handler apiHandler) http.HandlerFunc {
	return securityHeadersHandler(cacheControlNoStore, jsonErrorMiddleware(logger, authMiddleware(token, handler)))
}
