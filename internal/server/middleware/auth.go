package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chathub-io/chathub/internal/auth"
	"github.com/chathub-io/chathub/internal/models"
)

// JWTAuth validates the bearer token and stores the user on the echo
// context for downstream handlers.
func JWTAuth(authService *auth.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
			}

			user, err := authService.ValidateToken(c.Request().Context(), tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set("user", user)
			c.Set("user_id", user.ID.Hex())
			return next(c)
		}
	}
}

// GetUser returns the authenticated user, nil outside JWTAuth routes.
func GetUser(c echo.Context) *models.User {
	user, _ := c.Get("user").(*models.User)
	return user
}

func GetUserID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}
