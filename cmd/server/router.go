package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/popeskul/chatrelay/internal/api"
)

const errorCodeInvalidParameter = "INVALID_PARAMETER"

func setupRouter(handler api.ServerInterface) http.Handler {
	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSONError(w, req, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})

	return api.HandlerWithOptions(handler, api.ChiServerOptions{
		BaseRouter: r,
		ErrorHandlerFunc: func(w http.ResponseWriter, req *http.Request, err error) {
			writeJSONError(w, req, http.StatusBadRequest, errorCodeInvalidParameter, err.Error())
		},
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	now := time.Now()
	render.Status(r, status)
	render.JSON(w, r, api.ErrorResponse{Error: code, Message: message, Timestamp: &now})
}
