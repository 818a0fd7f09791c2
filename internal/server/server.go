// Package server is the task collection service behind `taskboard serve`.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"taskboard/internal/auth"
	"taskboard/internal/store"
)

const (
	// Login attempts per second per client IP, with a small burst.
	defaultLoginRate  = 1
	defaultLoginBurst = 5

	shutdownTimeout = 5 * time.Second
)

type Options struct {
	DB      *store.Collection
	Tokens  *auth.Tokens
	Revoker auth.Revoker
	Logger  *log.Logger

	// LoginRate <= 0 uses the default.
	LoginRate  float64
	LoginBurst int
}

type Server struct {
	db      *store.Collection
	tokens  *auth.Tokens
	revoker auth.Revoker
	log     *log.Logger
	e       *echo.Echo
}

func New(opts Options) (*Server, error) {
	if opts.DB == nil {
		return nil, errors.New("server: missing store")
	}
	if opts.Tokens == nil {
		return nil, errors.New("server: missing token issuer")
	}
	if opts.Revoker == nil {
		opts.Revoker = auth.NewMemoryRevoker()
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.LoginRate <= 0 {
		opts.LoginRate = defaultLoginRate
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = defaultLoginBurst
	}

	s := &Server{
		db:      opts.DB,
		tokens:  opts.Tokens,
		revoker: opts.Revoker,
		log:     opts.Logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())

	loginLimiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(opts.LoginRate),
			Burst:     opts.LoginBurst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) { return c.RealIP(), nil },
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "could not identify client")
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts; try again shortly")
		},
	})

	e.GET("/healthz", s.healthz)
	e.POST("/auth/login", s.login, loginLimiter)

	g := e.Group("", s.requireAuth)
	g.POST("/auth/logout", s.logout)
	g.GET("/users/me", s.me)
	g.GET("/tasks", s.listTasks)
	g.POST("/tasks", s.createTask)
	g.PUT("/tasks/:id", s.replaceTask)
	g.PATCH("/tasks/:id", s.patchTask)
	g.DELETE("/tasks/:id", s.deleteTask)

	s.e = e
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.e }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("task collection listening")
		errCh <- s.e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.e.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := log.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
				"remote":  v.RemoteIP,
			}
			if uid, ok := c.Get(ctxUserID).(string); ok && uid != "" {
				fields["user"] = uid
			}
			entry := s.log.WithFields(fields)
			switch {
			case v.Status >= 500:
				entry.WithError(v.Error).Error("request")
			case v.Error != nil:
				entry.WithError(v.Error).Info("request")
			default:
				entry.Info("request")
			}
			return nil
		},
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// errorHandler renders every failure as {"error": msg}.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		default:
			msg = http.StatusText(code)
		}
	} else {
		s.log.WithError(err).Error("unhandled error")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{Error: msg})
}
