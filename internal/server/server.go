// Package server exposes the wiki over REST. Handlers stay thin: they
// validate the wire shape, call one service operation and translate error
// kinds into statuses. Everything under /api is Basic-auth protected.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/wikora/wikora/internal/service"
	"github.com/wikora/wikora/internal/types"
)

// lockHeader carries issued lock state to clients.
const lockHeader = "X-Page-Lock"

// lockAuthHeader carries the client's lock proof on mutations.
const lockAuthHeader = "X-Lock-Authentication"

// Server is the HTTP front of one service.
type Server struct {
	svc  *service.Service
	echo *echo.Echo
	log  *logrus.Entry
}

// Options configure the HTTP layer.
type Options struct {
	BodyLimit string // echo syntax, e.g. "10M"
	Log       *logrus.Logger
}

// New assembles the echo instance with routes and middleware.
func New(svc *service.Service, opts Options) *Server {
	logger := opts.Log
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		svc: svc,
		log: logger.WithField("component", "http"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api", s.basicAuth)

	api.POST("/pages", s.handleCreateDraft)
	api.GET("/pages", s.handleListPages)
	api.GET("/pages/deleted", s.handleDeletedCandidates)

	api.GET("/pages/:id", s.handleMeta)
	api.GET("/pages/:id/meta", s.handleMeta)
	api.GET("/pages/:id/source", s.handleGetSource)
	api.PUT("/pages/:id/source", s.handlePutSource)
	api.GET("/pages/:id/revisions", s.handleHistory)
	api.POST("/pages/:id/revision", s.handleRevisionOp)
	api.POST("/pages/:id/path", s.handlePathOp)
	api.GET("/pages/:id/parent", s.handleParent)
	api.DELETE("/pages/:id", s.handleDeletePage)

	api.POST("/pages/:id/lock", s.handleAcquire)
	api.PUT("/pages/:id/lock", s.handleExtend)
	api.DELETE("/pages/:id/lock", s.handleRelease)

	api.POST("/pages/:id/assets/:name", s.handleUpload)
	api.GET("/pages/:id/assets", s.handleListPageAssets)
	api.GET("/pages/:id/assets/:name", s.handleResolveAssetName)
	api.GET("/assets/:id", s.handleAssetMeta)
	api.GET("/assets/:id/data", s.handleAssetData)
	api.DELETE("/assets/:id", s.handleDeleteAsset)
	api.POST("/assets/:id/owner", s.handleReassignAsset)

	api.GET("/search", s.handleSearch)
	api.GET("/templates", s.handleTemplates)

	api.GET("/users", s.handleListUsers)
	api.POST("/users", s.handleAddUser)
	api.PUT("/users/:name", s.handleEditUser)
	api.DELETE("/users/:name", s.handleDeleteUser)

	s.echo = e
	return s
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, listen, certFile, keyFile string) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutdownCtx)
	}()
	var err error
	if certFile != "" && keyFile != "" {
		err = s.echo.StartTLS(listen, certFile, keyFile)
	} else {
		err = s.echo.Start(listen)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// statusOf maps error kinds to HTTP statuses.
func statusOf(err error) int {
	switch types.KindOf(err) {
	case types.KindBadInput:
		return http.StatusBadRequest
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindGone:
		return http.StatusGone
	case types.KindConflict:
		return http.StatusConflict
	case types.KindLocked:
		return http.StatusLocked
	case types.KindForbidden:
		return http.StatusForbidden
	case types.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case types.KindLengthRequired:
		return http.StatusLengthRequired
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders every failure as the {"reason"} JSON body.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	reason := "internal error"

	var he *echo.HTTPError
	var te *types.Error
	switch {
	case errors.As(err, &te):
		status = statusOf(te)
		reason = te.Reason
	case errors.As(err, &he):
		status = he.Code
		reason = fmt.Sprintf("%v", he.Message)
	}
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	_ = c.JSON(status, map[string]string{"reason": reason})
}

// basicAuth authenticates /api requests against the user store. The very
// first user registration is let through so a fresh wiki can be set up.
func (s *Server) basicAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		name, pass, ok := c.Request().BasicAuth()
		if !ok {
			if s.setupRequest(c) {
				return next(c)
			}
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="wikora"`)
			return types.E(types.KindForbidden, "authentication required")
		}
		user, err := s.svc.Store().Authenticate(name, pass)
		if err != nil {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="wikora"`)
			return err
		}
		c.Set("user", user)
		return next(c)
	}
}

// setupRequest reports whether this is the unauthenticated first-user
// registration of an empty wiki.
func (s *Server) setupRequest(c echo.Context) bool {
	if c.Request().Method != http.MethodPost || c.Path() != "/api/users" {
		return false
	}
	n, err := s.svc.Store().UserCount()
	return err == nil && n == 0
}

// currentUser returns the authenticated user, or nil during first-user
// setup.
func currentUser(c echo.Context) *types.User {
	u, _ := c.Get("user").(*types.User)
	return u
}

// requireAdmin gates administrative operations.
func requireAdmin(c echo.Context) error {
	u := currentUser(c)
	if u == nil || !u.Admin {
		return types.E(types.KindForbidden, "administrator privileges required")
	}
	return nil
}

// lockProof extracts the token from X-Lock-Authentication.
func lockProof(c echo.Context) string {
	h := strings.TrimSpace(c.Request().Header.Get(lockAuthHeader))
	if h == "" {
		return ""
	}
	for _, part := range strings.Fields(h) {
		if v, ok := strings.CutPrefix(part, "token="); ok {
			return strings.Trim(v, `"`)
		}
	}
	return ""
}

// setLockHeader advertises a newly issued lock.
func setLockHeader(c echo.Context, lock *types.LockInfo) {
	c.Response().Header().Set(lockHeader,
		fmt.Sprintf("expire=%s token=%s", lock.Expire, lock.Token))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
