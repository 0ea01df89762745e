package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jupiterclapton/postfeed/internal/auth"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

// Limiter throttles a key. Errors let the request through.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Deps struct {
	Identity ports.IdentityService
	Posts    ports.PostService
	Images   ports.ImageStore

	// ImagesDir is served under /images when set.
	ImagesDir string
	// AuthLimiter guards /signup and /login when set.
	AuthLimiter Limiter
	// Ready backs /healthz when set.
	Ready func(context.Context) error
	// BodyLimit caps request bodies, echo notation ("10M").
	BodyLimit string
	Logger    *slog.Logger
}

// NewServer builds the echo router with every REST route.
func NewServer(d Deps) *echo.Echo {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.BodyLimit == "" {
		d.BodyLimit = "10M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.BodyLimit(d.BodyLimit))

	h := &Handler{
		identity: d.Identity,
		posts:    d.Posts,
		images:   d.Images,
		logger:   logger,
	}
	requireAuth := auth.Require(d.Identity)

	e.GET("/healthz", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	// --- AUTH ---
	var authLimit []echo.MiddlewareFunc
	if d.AuthLimiter != nil {
		authLimit = append(authLimit, rateLimit(d.AuthLimiter, logger))
	}
	e.POST("/signup", h.Signup, authLimit...)
	e.POST("/login", h.Login, authLimit...)
	e.GET("/status", h.GetStatus, requireAuth)
	e.PUT("/status", h.UpdateStatus, requireAuth)

	// --- FEED ---
	feed := e.Group("/feed")
	feed.GET("/posts", h.ListPosts, requireAuth)
	feed.POST("/post", h.CreatePost, requireAuth)
	feed.GET("/post/:postId", h.GetPost)
	feed.PUT("/post/:postId", h.UpdatePost, requireAuth)
	feed.DELETE("/post/:postId", h.DeletePost, requireAuth)

	// --- IMAGES ---
	e.PUT("/post-image", h.UploadImage, requireAuth)
	if d.ImagesDir != "" {
		e.Static("/images", d.ImagesDir)
	}

	return e
}
