package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"collabdoc/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const IdentityKey contextKey = "identity"

// Identity is who the token says the caller is and their classification
// level.
type Identity struct {
	UserID string
	Level  int
}

var ErrNoToken = errors.New("no token provided")

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate validates the HS256 token carried by r.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	// For WebSockets, tokens are often passed in the query string
	// because the browser's WebSocket API doesn't support custom headers.
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if tokenString == "" {
		if c, err := r.Cookie("accessToken"); err == nil {
			tokenString = c.Value
		}
	}
	if tokenString == "" {
		return Identity{}, ErrNoToken
	}
	return a.Parse(tokenString)
}

func (a *Authenticator) Parse(tokenString string) (Identity, error) {
	if len(a.secret) == 0 {
		return Identity{}, errors.New("server is not configured to validate JWTs")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("could not parse token claims")
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		userID, _ = claims["userId"].(string)
	}
	if userID == "" {
		return Identity{}, errors.New("user id (sub) claim is missing or invalid")
	}
	// JSON numbers decode as float64.
	level, ok := claims["level"].(float64)
	if !ok || level != math.Trunc(level) {
		return Identity{}, errors.New("classification level claim is missing or invalid")
	}
	return Identity{UserID: userID, Level: int(level)}, nil
}

func (a *Authenticator) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r)
		if err != nil {
			logger.Sugar.Warnf("Rejected request to %s: %v", r.URL.Path, err)
			http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), IdentityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}

func CORSMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
