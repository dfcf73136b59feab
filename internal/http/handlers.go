package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
	"github.com/fyrsmithlabs/brdforge/internal/store"
	"github.com/fyrsmithlabs/brdforge/internal/synthesis"
)

// Item status filters for GET .../items.
const (
	statusSignal = "signal"
	statusNoise  = "noise"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCreateSession(c echo.Context) error {
	return c.JSON(http.StatusCreated, SessionResponse{SessionID: uuid.NewString()})
}

func (s *Server) handleFragments(c echo.Context) error {
	sessionID := c.Param("session")
	ctx := requestContext(c, sessionID)

	var req FragmentsRequest
	if err := c.Bind(&req); err != nil {
		logging.FromContext(ctx).Warn(ctx, "invalid fragments request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Fragments) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "fragments field is required")
	}
	for i, f := range req.Fragments {
		if err := f.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("fragment %d: %v", i, err))
		}
	}

	items, err := s.deps.Classifier.Classify(ctx, sessionID, req.Fragments)
	if err != nil {
		return s.fail(ctx, err)
	}

	return c.JSON(http.StatusOK, SummarizeItems(sessionID, items))
}

func (s *Server) handleItems(c echo.Context) error {
	sessionID := c.Param("session")
	ctx := requestContext(c, sessionID)

	status := c.QueryParam("status")
	if status == "" {
		status = statusSignal
	}

	var (
		items []signal.ClassifiedItem
		err   error
	)
	switch status {
	case statusSignal:
		items, err = s.deps.Store.QueryActive(ctx, sessionID)
	case statusNoise:
		items, err = s.deps.Store.QuerySuppressed(ctx, sessionID)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be 'signal' or 'noise'")
	}
	if err != nil {
		return s.fail(ctx, err)
	}
	if items == nil {
		items = []signal.ClassifiedItem{}
	}
	return c.JSON(http.StatusOK, ItemsResponse{SessionID: sessionID, Status: status, Items: items})
}

func (s *Server) handleRestore(c echo.Context) error {
	sessionID := c.Param("session")
	itemID := c.Param("id")
	ctx := requestContext(c, sessionID)

	it, err := s.deps.Store.Item(ctx, itemID)
	if err != nil {
		return s.fail(ctx, err)
	}
	if it.SessionID != sessionID {
		return s.fail(ctx, fmt.Errorf("item %s in session %s: %w", itemID, sessionID, store.ErrNotFound))
	}
	if err := s.deps.Store.Restore(ctx, itemID); err != nil {
		return s.fail(ctx, err)
	}
	restored, err := s.deps.Store.Item(ctx, itemID)
	if err != nil {
		return s.fail(ctx, err)
	}
	return c.JSON(http.StatusOK, restored)
}

func (s *Server) handleGenerate(c echo.Context) error {
	sessionID := c.Param("session")
	ctx := requestContext(c, sessionID)

	snapshotID, err := s.deps.Synthesizer.Run(ctx, sessionID)
	if err != nil {
		return s.fail(ctx, err)
	}
	flags, err := s.deps.Validator.Validate(ctx, sessionID)
	if err != nil {
		return s.fail(ctx, err)
	}
	return c.JSON(http.StatusOK, GenerateResponse{SessionID: sessionID, SnapshotID: snapshotID, Flags: flags})
}

func (s *Server) handleDocument(c echo.Context) error {
	sessionID := c.Param("session")
	ctx := requestContext(c, sessionID)

	latest, err := s.deps.Store.LatestSectionVersions(ctx, sessionID)
	if err != nil {
		return s.fail(ctx, err)
	}
	if len(latest) == 0 {
		return s.fail(ctx, fmt.Errorf("document for session %s: %w", sessionID, store.ErrNotFound))
	}
	flags, err := s.deps.Store.ListFlags(ctx, sessionID)
	if err != nil {
		return s.fail(ctx, err)
	}
	return c.JSON(http.StatusOK, NewDocument(sessionID, latest, flags))
}

func (s *Server) handleValidate(c echo.Context) error {
	sessionID := c.Param("session")
	ctx := requestContext(c, sessionID)

	flags, err := s.deps.Validator.Validate(ctx, sessionID)
	if err != nil {
		return s.fail(ctx, err)
	}
	return c.JSON(http.StatusOK, FlagsResponse{SessionID: sessionID, Flags: flags})
}

func (s *Server) handleEditSection(c echo.Context) error {
	sessionID := c.Param("session")
	ctx := requestContext(c, sessionID)

	var req EditSectionRequest
	if err := c.Bind(&req); err != nil {
		logging.FromContext(ctx).Warn(ctx, "invalid edit request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v, err := s.deps.Synthesizer.EditSection(ctx, sessionID, req.SnapshotID, c.Param("section"), req.Content)
	if err != nil {
		return s.fail(ctx, err)
	}
	return c.JSON(http.StatusOK, sectionView(v))
}

func (s *Server) handleRegenerate(c echo.Context) error {
	sessionID := c.Param("session")
	ctx := requestContext(c, sessionID)

	v, err := s.deps.Synthesizer.Regenerate(ctx, sessionID, c.Param("section"))
	if err != nil {
		return s.fail(ctx, err)
	}
	return c.JSON(http.StatusOK, sectionView(v))
}

func requestContext(c echo.Context, sessionID string) context.Context {
	return logging.WithSessionID(c.Request().Context(), sessionID)
}

// fail maps domain errors to HTTP status codes. Unexpected errors are logged
// and reported without detail.
func (s *Server) fail(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrSectionLocked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, synthesis.ErrUnknownSection),
		errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, signal.ErrEmptyFragment):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	}
	logging.FromContext(ctx).Error(ctx, "request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
