package server

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/carousell/ct-go/pkg/logger"
	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/chathub-io/chathub/internal/auth"
	"github.com/chathub-io/chathub/internal/config"
	pkgmdw "github.com/chathub-io/chathub/internal/server/middleware"
)

func StartServer(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	handler Controller,
	socketHandler *SocketHandler,
	authService *auth.Service,
) {
	e := echo.New()
	e.Validator = pkgmdw.NewValidator()
	e.HTTPErrorHandler = errorHandler()

	logConfig := pkgmdw.LogRequestConfig{
		Logger: logger.MustNamed("http"),
		Enabled: func(c echo.Context) bool {
			uri := c.Request().RequestURI
			return uri != "/health" && uri != "/metrics"
		},
	}

	e.Use(pkgmdw.CORS(regexp.MustCompile(`.`)))
	e.Use(pkgmdw.Metrics())
	e.Use(pkgmdw.RequestID())
	e.Use(pkgmdw.LogRequest(logConfig))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Errorw(c.Request().Context(), "PANIC RECOVER", "error", err, "stack", string(stack))
			return nil
		},
	}))

	e.GET("/health", handler.Health)

	e.Any("/socket.io/", socketHandler.Handler())
	e.Any("/socket.io/*", socketHandler.Handler())

	api := e.Group("/api/v1")
	api.POST("/auth/login", handler.Login)

	authed := api.Group("", pkgmdw.JWTAuth(authService))
	authed.GET("/me", handler.GetProfile)
	authed.GET("/me/points", handler.GetPointHistory)
	authed.GET("/online", handler.GetOnlineUsers)
	authed.GET("/messages/direct/:user_id", handler.GetDirectMessages)
	authed.GET("/groups", handler.GetGroups)
	authed.POST("/groups", handler.CreateGroup)
	authed.GET("/groups/:id", handler.GetGroup)
	authed.GET("/groups/:id/messages", handler.GetGroupMessages)
	authed.GET("/challenges", handler.GetChallenges)
	authed.POST("/challenges/:id/quiz", handler.SubmitQuizResult)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := socketHandler.Serve(); err != nil {
					log.Errorw(ctx, "socket server stopped", "error", err)
				}
			}()
			go func() {
				log.Infow(ctx, "starting HTTP server", "addr", conf.Server.Addr)
				if err := e.Start(conf.Server.Addr); !errors.Is(err, http.ErrServerClosed) {
					sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := socketHandler.Close(); err != nil {
				log.Warnw(ctx, "socket server close", "error", err)
			}
			return e.Shutdown(ctx)
		},
	})
}

func errorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			c.Logger().Error(err)
		} else {
			he = &echo.HTTPError{
				Code:    http.StatusInternalServerError,
				Message: http.StatusText(http.StatusInternalServerError),
			}
		}

		if !c.Response().Committed {
			if c.Request().Method == http.MethodHead {
				err = c.NoContent(he.Code)
			} else {
				err = c.JSON(he.Code, he)
			}
			if err != nil {
				c.Logger().Error(err)
			}
		}
	}
}
