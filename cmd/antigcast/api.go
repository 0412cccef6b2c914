package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/antigcast/antigcast/automod/engine"
	"github.com/antigcast/antigcast/automod/modcache"
	"github.com/antigcast/antigcast/automod/rulestore"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type ChatView struct {
	ChatID    int64            `json:"chat"`
	Enabled   bool             `json:"enabled"`
	Denylist  []string         `json:"denylist"`
	Allowlist []string         `json:"allowlist"`
	Stats     engine.ChatStats `json:"stats,omitempty"`
}

type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type TermRequest struct {
	Term string `json:"term"`
}

type ClassifyRequest struct {
	Text string `json:"text"`
}

// Builds the echo router and http.Server. Admin routes are only mounted when a token is configured.
//
// HTTP metrics are registered with reg, or the default prometheus registry if nil.
func (srv *Server) setupAPI(bind, adminToken string, reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv.echo = e
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(srv.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(otelecho.Middleware("antigcast"))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "antigcast",
		Registerer: reg,
	}))
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/_health", srv.HandleHealthCheck)

	if adminToken == "" {
		srv.logger.Warn("no admin token configured, admin API disabled")
		return
	}
	admin := e.Group("/admin", requireBearer(adminToken))
	admin.GET("/chats/:chat", srv.HandleGetChat)
	admin.PUT("/chats/:chat/enabled", srv.HandleSetEnabled)
	admin.POST("/chats/:chat/terms/:kind", srv.HandleAddTerm)
	admin.DELETE("/chats/:chat/terms/:kind", srv.HandleRemoveTerm)
	admin.POST("/chats/:chat/classify", srv.HandleClassify)
}

// requires header `Authorization: Bearer {admin token}`
func requireBearer(token string) echo.MiddlewareFunc {
	expected := []byte("Bearer " + token)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := []byte(c.Request().Header.Get(echo.HeaderAuthorization))
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "admin token required")
			}
			return next(c)
		}
	}
}

func parseChatID(c echo.Context) (int64, error) {
	chatID, err := strconv.ParseInt(c.Param("chat"), 10, 64)
	if err != nil || chatID == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid chat ID: %q", c.Param("chat")))
	}
	return chatID, nil
}

// Maps write-through failures to HTTP errors; the cache is left untouched on these.
func writeError(err error) error {
	if errors.Is(err, modcache.ErrStaleWrite) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "ruleset store unavailable, change not saved")
	}
	return err
}

func (srv *Server) chatView(c echo.Context, chatID int64) (*ChatView, error) {
	ctx := c.Request().Context()
	rs := srv.Engine.Rules.GetRuleSet(ctx, chatID)
	stats, err := srv.Engine.ChatStats(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("reading chat stats: %w", err)
	}
	return &ChatView{
		ChatID:    chatID,
		Enabled:   rs.Enabled,
		Denylist:  nonNil(rs.Denylist),
		Allowlist: nonNil(rs.Allowlist),
		Stats:     stats,
	}, nil
}

func nonNil(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}

func (srv *Server) HandleGetChat(c echo.Context) error {
	chatID, err := parseChatID(c)
	if err != nil {
		return err
	}
	view, err := srv.chatView(c, chatID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (srv *Server) HandleSetEnabled(c echo.Context) error {
	chatID, err := parseChatID(c)
	if err != nil {
		return err
	}
	var req EnabledRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing 'enabled' field")
	}
	if err := srv.Engine.Rules.SetEnabled(c.Request().Context(), chatID, *req.Enabled); err != nil {
		return writeError(err)
	}
	srv.logger.Info("chat moderation toggled via admin API", "chat", chatID, "enabled", *req.Enabled)
	return srv.HandleGetChat(c)
}

func (srv *Server) termRequest(c echo.Context) (int64, rulestore.ListKind, string, error) {
	chatID, err := parseChatID(c)
	if err != nil {
		return 0, "", "", err
	}
	kind, err := rulestore.ParseListKind(c.Param("kind"))
	if err != nil {
		return 0, "", "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var req TermRequest
	if err := c.Bind(&req); err != nil {
		return 0, "", "", err
	}
	term, err := rulestore.NormalizeTerm(req.Term)
	if err != nil {
		return 0, "", "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return chatID, kind, term, nil
}

func (srv *Server) HandleAddTerm(c echo.Context) error {
	chatID, kind, term, err := srv.termRequest(c)
	if err != nil {
		return err
	}
	if err := srv.Engine.Rules.AddTerm(c.Request().Context(), chatID, kind, term); err != nil {
		return writeError(err)
	}
	srv.logger.Info("term added via admin API", "chat", chatID, "kind", kind)
	return srv.HandleGetChat(c)
}

func (srv *Server) HandleRemoveTerm(c echo.Context) error {
	chatID, kind, term, err := srv.termRequest(c)
	if err != nil {
		return err
	}
	if err := srv.Engine.Rules.RemoveTerm(c.Request().Context(), chatID, kind, term); err != nil {
		return writeError(err)
	}
	srv.logger.Info("term removed via admin API", "chat", chatID, "kind", kind)
	return srv.HandleGetChat(c)
}

// Runs a text through the full classification pipeline, recency update included. Nothing is deleted or counted.
func (srv *Server) HandleClassify(c echo.Context) error {
	chatID, err := parseChatID(c)
	if err != nil {
		return err
	}
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	d := srv.Engine.Classify(c.Request().Context(), chatID, req.Text)
	return c.JSON(http.StatusOK, d)
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		slog.Warn("antigcast-http-internal-error", "err", err)
	}
	if err := c.JSON(code, GenericStatus{Status: "error", Daemon: "antigcast", Message: errorMessage}); err != nil {
		slog.Warn("failed to write error response", "err", err)
	}
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "antigcast"})
}
