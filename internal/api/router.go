package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Adda-Baaj/taja-feed/internal/crawler"
	"github.com/Adda-Baaj/taja-feed/internal/domain"
	"github.com/Adda-Baaj/taja-feed/internal/logger"
	"github.com/Adda-Baaj/taja-feed/pkg/feedgen"
)

// FeedRunner builds feeds on demand. *crawler.Pipeline satisfies it.
type FeedRunner interface {
	Sources() []string
	Run(ctx context.Context, id string, overrides map[string]string) (domain.Feed, error)
}

type Server struct {
	runner     FeedRunner
	log        logger.Logger
	runTimeout time.Duration
}

func NewServer(runner FeedRunner, log logger.Logger, runTimeout time.Duration) *Server {
	return &Server{runner: runner, log: logger.Ensure(log), runTimeout: runTimeout}
}

// NewRouter returns a gin engine with the feed routes registered.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/feeds", s.listFeeds)
	r.GET("/feeds/:id", s.feed)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listFeeds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    s.runner.Sources(),
	})
}

// feed runs the pipeline for :id. Query parameters other than format
// override the configured source params (limit, speed, category, ...).
func (s *Server) feed(c *gin.Context) {
	format, err := feedgen.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_format", "message": err.Error()})
		return
	}

	overrides := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if key != "format" && len(values) > 0 {
			overrides[key] = values[0]
		}
	}

	ctx := c.Request.Context()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	id := c.Param("id")
	feed, err := s.runner.Run(ctx, id, overrides)
	if err != nil {
		var le *crawler.ListingError
		switch {
		case errors.Is(err, crawler.ErrUnknownSource):
			c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "message": err.Error()})
		case errors.As(err, &le):
			c.JSON(http.StatusBadGateway, gin.H{"code": "upstream_error", "message": err.Error()})
		default:
			s.log.ErrorObj("feed build failed", "api_feed_error", map[string]any{"provider_id": id, "error": err.Error()})
			c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		}
		return
	}

	body, err := feedgen.Render(feed, format)
	if err != nil {
		s.log.ErrorObj("feed render failed", "api_render_error", map[string]any{"provider_id": id, "error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		return
	}

	degraded := 0
	for _, it := range feed.Items {
		if it.Degraded {
			degraded++
		}
	}
	c.Header("X-Feed-Items", strconv.Itoa(len(feed.Items)))
	c.Header("X-Feed-Degraded", strconv.Itoa(degraded))
	c.Data(http.StatusOK, format.ContentType(), []byte(body))
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.InfoObj("http request", "http_access", map[string]any{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	}
}
