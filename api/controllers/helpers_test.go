package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/api/middleware"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func withIdentity(req *http.Request, userID, orgID uuid.UUID, role string) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), userID, orgID, role))
}
