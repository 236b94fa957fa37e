// Package server receives Telegram updates over HTTPS webhook.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"Genie/core"
	"Genie/lib/sl"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

const webhookPath = "/webhook/"

// UpdateSink takes an update off the request goroutine; it must not block.
type UpdateSink func(update tgbotapi.Update)

type Server struct {
	conf       *core.Config
	log        *slog.Logger
	secret     string
	sink       UpdateSink
	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(conf *core.Config, log *slog.Logger, sink UpdateSink) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		conf:   conf,
		log:    log.With(sl.Module("webhook")),
		secret: conf.WebhookSecret(),
		sink:   sink,
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.GET("/", s.health)
	router.POST(webhookPath+":secret", s.update)
	s.router = router

	s.httpServer = &http.Server{
		Addr:              ":" + conf.Webhook.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// WebhookURL is the address Telegram posts updates to.
func (s *Server) WebhookURL() string {
	return strings.TrimRight(s.conf.Webhook.URL, "/") + webhookPath + s.secret
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.log.With(slog.String("addr", s.httpServer.Addr)).Info("starting webhook server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "Bot is running")
}

func (s *Server) update(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(s.secret)) != 1 {
		c.Status(http.StatusNotFound)
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		s.log.Warn("decoding update", sl.Err(err))
		c.Status(http.StatusBadRequest)
		return
	}

	s.sink(update)
	c.Status(http.StatusOK)
}

// requestLogger never logs the path, it carries the webhook secret.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.With(
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		).Debug("request")
	}
}
