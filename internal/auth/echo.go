package auth

import (
	"errors"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
)

const echoIdentityKey = "identity"

// Require is the strict echo guard: missing or invalid bearer tokens end the request with 401.
func Require(v Validator) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey: echoIdentityKey,
		// Same scheme parsing as Authenticate: "bearer", "Bearer" and "BEARER" are all accepted.
		TokenLookupFuncs: []middleware.ValuesExtractor{bearerExtractor},
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			claims, err := v.ValidateToken(c.Request().Context(), token)
			if err != nil {
				return nil, domain.ErrInvalidToken
			}
			return Identity{UserID: claims.UserID, Email: claims.Email}, nil
		},
		SuccessHandler: func(c echo.Context) {
			id, _ := c.Get(echoIdentityKey).(Identity)
			req := c.Request()
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
		},
		ErrorHandler: func(c echo.Context, err error) error {
			var de *domain.Error
			if errors.As(err, &de) && de.Kind == domain.KindUnauthenticated {
				return de
			}
			return domain.ErrUnauthenticated
		},
	})
}

func bearerExtractor(c echo.Context) ([]string, error) {
	token, err := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return nil, err
	}
	return []string{token}, nil
}

// UserID returns the identity set by Require.
func UserID(c echo.Context) string {
	return ForContext(c.Request().Context())
}
