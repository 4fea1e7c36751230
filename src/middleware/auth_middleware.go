package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"fincil-server/src/models"

	"github.com/golang-jwt/jwt/v5"
)

const TokenLifetime = 168 * time.Hour

type contextKey string

const (
	userIDKey     contextKey = "user_id"
	usernameKey   contextKey = "username"
	superAdminKey contextKey = "super_admin"
	requestIDKey  contextKey = "request_id"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// IssueToken signs an HS256 token carrying the user's id, name and admin flag.
func IssueToken(secret string, user *models.User, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":     user.ID,
		"username":    user.Username,
		"super_admin": user.SuperAdmin,
		"exp":         now.Add(TokenLifetime).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// ParseTokenFromRequest extracts and validates the bearer token, returning its claims.
func ParseTokenFromRequest(r *http.Request, secret string) (jwt.MapClaims, error) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		return nil, errMissingToken
	}
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidToken
	}
	return claims, nil
}

func JWTAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := ParseTokenFromRequest(r, secret)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}

			userID, ok := claims["user_id"].(float64)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}
			username, _ := claims["username"].(string)
			superAdmin, _ := claims["super_admin"].(bool)

			ctx := WithUser(r.Context(), int64(userID), username, superAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SuperAdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsSuperAdmin(r.Context()) {
			WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, userID int64, username string, superAdmin bool) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, usernameKey, username)
	return context.WithValue(ctx, superAdminKey, superAdmin)
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

func UsernameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(usernameKey).(string)
	return name
}

func IsSuperAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(superAdminKey).(bool)
	return admin
}
