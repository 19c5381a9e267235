package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/attendance"
	"github.com/trezcool/rollbook/core/directory"
)

type (
	// Directory is what the API needs from the credential directory.
	Directory interface {
		Authenticate(alias, secret string) (directory.Identity, error)
		Refresh(ctx context.Context) error
		Status() directory.Status
	}

	// Attendance is what the API needs from the attendance service.
	Attendance interface {
		ListAttendance(ctx context.Context, alias string, dateFloor time.Time) ([]attendance.Record, error)
		ComposeProfile(ctx context.Context, alias string) (attendance.Profile, error)
		ActiveCourses(ctx context.Context) ([]attendance.CourseWindow, error)
		SummarizeClass(ctx context.Context, courseID string) ([]attendance.StudentSummary, error)
	}

	Server struct {
		conf     *core.Config
		logger   core.Logger
		app      *echo.Echo
		tokens   *tokenIssuer
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(
	conf *core.Config,
	logger core.Logger,
	dir Directory,
	att Attendance,
	validate *validator.Validate,
	translator ut.Translator,
) *Server {
	s := &Server{
		conf:     conf,
		logger:   logger,
		app:      echo.New(),
		tokens:   newTokenIssuer(conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	if !conf.TestMode {
		signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	}
	s.setup(dir, att, validate, translator)
	return s
}

func (s *Server) setup(dir Directory, att Attendance, validate *validator.Validate, translator ut.Translator) {
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))
	if !s.conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.conf.Server.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	if limit := s.conf.Server.RateLimit; limit > 0 {
		s.app.Use(rateLimiter(limit))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, translator, s.signalShutdown)
	s.app.Debug = s.conf.Debug && !s.conf.TestMode
	s.app.HideBanner = true

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.tokens.config)

	var loginLimit []echo.MiddlewareFunc
	if limit := s.conf.Server.LoginRateLimit; limit > 0 {
		loginLimit = append(loginLimit, rateLimiter(limit))
	}
	registerAuthAPI(v1, s.tokens, dir, validate, loginLimit...)
	registerAttendanceAPI(v1, jwt, att, s.conf)
	registerDirectoryAPI(v1, jwt, dir)
}

func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors receives the error that stopped the listener.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives OS interrupts and shutdown requests raised while serving.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}

// rateLimiter limits requests per second per client IP.
func rateLimiter(perSecond float64) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(perSecond)),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return errTooManyRequests
		},
	})
}
