package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"nexumfi/crypto"
)

type AuthConfig struct {
	Enabled        bool
	HMACSecret     string
	Issuer         string
	Audience       string
	ScopeClaim     string
	OptionalPaths  []string
	AllowAnonymous bool
	ClockSkew      time.Duration
}

type contextKey string

// HeaderCaller carries the caller address when authentication is disabled.
const HeaderCaller = "X-Nexum-Caller"

const (
	ContextKeyToken  contextKey = "gateway.token"
	ContextKeyScopes contextKey = "gateway.scopes"
	ContextKeyCaller contextKey = "gateway.caller"
)

// CallerFromContext returns the account named by the token's subject claim.
func CallerFromContext(ctx context.Context) (crypto.Address, bool) {
	if ctx == nil {
		return crypto.Address{}, false
	}
	addr, ok := ctx.Value(ContextKeyCaller).(crypto.Address)
	return addr, ok && !addr.IsZero()
}

// WithCaller attaches a caller address to ctx.
func WithCaller(ctx context.Context, addr crypto.Address) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, addr)
}

type Authenticator struct {
	cfg           AuthConfig
	logger        *slog.Logger
	secret        []byte
	optionalPaths []string
	once          sync.Once
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	auth := &Authenticator{cfg: cfg, logger: logger}
	auth.once.Do(func() {
		auth.secret = []byte(strings.TrimSpace(cfg.HMACSecret))
		if auth.cfg.ScopeClaim == "" {
			auth.cfg.ScopeClaim = "scope"
		}
		if auth.cfg.ClockSkew <= 0 {
			auth.cfg.ClockSkew = 2 * time.Minute
		}
	})
	return auth
}

func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.cfg.Enabled {
				// Local deployments without auth name the caller explicitly.
				if header := strings.TrimSpace(r.Header.Get(HeaderCaller)); header != "" {
					if addr, err := crypto.DecodeAddress(header); err == nil {
						r = r.WithContext(WithCaller(r.Context(), addr))
					}
				}
				next.ServeHTTP(w, r)
				return
			}
			if a.isOptional(r.URL.Path) && a.cfg.AllowAnonymous {
				next.ServeHTTP(w, r)
				return
			}
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := a.parseToken(tokenString)
			if err != nil {
				a.logger.Warn("token validation failed", slog.Any("error", err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
				a.logger.Warn("claim validation failed", slog.Any("error", err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			scopes := extractScopes(claims, a.cfg.ScopeClaim)
			if len(requiredScopes) > 0 && !hasScopes(scopes, requiredScopes) {
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			caller, err := subjectAddress(claims)
			if err != nil {
				a.logger.Warn("subject claim rejected", slog.Any("error", err))
				http.Error(w, "invalid token subject", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyToken, tokenString)
			ctx = context.WithValue(ctx, ContextKeyScopes, scopes)
			ctx = WithCaller(ctx, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) isOptional(path string) bool {
	for _, prefix := range a.cfg.OptionalPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		}
	}
	if exp, ok := claims["exp"].(float64); ok {
		if int64(exp) < time.Now().Unix() {
			return errors.New("token expired")
		}
	}
	return nil
}

func subjectAddress(claims jwt.MapClaims) (crypto.Address, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return crypto.Address{}, err
	}
	if strings.TrimSpace(sub) == "" {
		return crypto.Address{}, errors.New("subject missing")
	}
	return crypto.DecodeAddress(strings.TrimSpace(sub))
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	if scopeClaim == "" {
		scopeClaim = "scope"
	}
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		fields := strings.Fields(trimmed)
		out := make([]string, 0, len(fields))
		out = append(out, fields...)
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// TokenClaims describes a bearer token minted by SignToken.
type TokenClaims struct {
	Subject  crypto.Address
	Issuer   string
	Audience string
	Scopes   []string
	TTL      time.Duration
}

// SignToken mints an HS256 bearer token accepted by the Authenticator.
func SignToken(secret string, claims TokenClaims, now time.Time) (string, error) {
	key := []byte(strings.TrimSpace(secret))
	if len(key) == 0 {
		return "", errors.New("auth secret not configured")
	}
	if claims.Subject.IsZero() {
		return "", errors.New("subject required")
	}
	mapClaims := jwt.MapClaims{
		"sub": claims.Subject.String(),
		"iat": now.Unix(),
	}
	if claims.TTL > 0 {
		mapClaims["exp"] = now.Add(claims.TTL).Unix()
	}
	if claims.Issuer != "" {
		mapClaims["iss"] = claims.Issuer
	}
	if claims.Audience != "" {
		mapClaims["aud"] = claims.Audience
	}
	if len(claims.Scopes) > 0 {
		mapClaims["scope"] = strings.Join(claims.Scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).SignedString(key)
}
