package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taskboard/internal/auth"
)

const (
	ctxUserID = "userID"
	ctxClaims = "claims"
)

// requireAuth validates the bearer token (signature, expiry, revocation) and stores the
// subject on the context.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		claims, err := s.tokens.Verify(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired session")
		}
		revoked, err := s.revoker.IsRevoked(c.Request().Context(), claims.ID)
		if err != nil {
			return err
		}
		if revoked {
			return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrTokenRevoked.Error())
		}
		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxClaims, claims)
		return next(c)
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

func claimsOf(c echo.Context) *auth.Claims {
	cl, _ := c.Get(ctxClaims).(*auth.Claims)
	return cl
}
