package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

// AuthUser is the identity of a request that passed session validation
type AuthUser struct {
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	SessionID uuid.UUID `json:"session_id"`
	// SessionToken is the durable session handle carried inside the JWT
	SessionToken string `json:"-"`
}

func (i AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", i.UserID.String()),
		slog.String("role", i.Role),
		slog.String("session", i.SessionID.String()),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation. This technique
// for defining context keys was copied from Go 1.7's new use of context in net/http.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "trust context value " + k.name
}

const (
	// TokenCookieName holds the JWT issued at login
	TokenCookieName = "token"

	ClaimUserID       = "user_id"
	ClaimSessionToken = "session_token"
)

var (
	AuthUserKey = &contextKey{"AuthUser"}
	PeerAddrKey = &contextKey{"PeerAddr"}

	ErrMissingClaims = errors.New("missing session claims")
)

// WithAuthUser returns a copy of ctx carrying user
func WithAuthUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, AuthUserKey, user)
}

// GetAuthUser returns the validated identity of r, if any
func GetAuthUser(r *http.Request) (*AuthUser, bool) {
	return AuthUserFromContext(r.Context())
}

func AuthUserFromContext(ctx context.Context) (*AuthUser, bool) {
	user, ok := ctx.Value(AuthUserKey).(*AuthUser)
	return user, ok && user != nil
}

// Verifier verifies a JWT from the Authorization header or the token cookie
func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return CookieVerifier(ja, TokenCookieName)
}

// CookieVerifier is Verifier with a custom cookie name
func CookieVerifier(ja *jwtauth.JWTAuth, cookieName string) func(http.Handler) http.Handler {
	return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromNamedCookie(cookieName))
}

func TokenFromCookie(r *http.Request) string {
	return TokenFromNamedCookie(TokenCookieName)(r)
}

func TokenFromNamedCookie(name string) func(r *http.Request) string {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}

// IssueToken signs a JWT binding userID to sessionToken
func IssueToken(ja *jwtauth.JWTAuth, userID uuid.UUID, sessionToken string, expiry time.Duration, now time.Time) (string, error) {
	claims := map[string]interface{}{
		"sub":             userID.String(),
		ClaimUserID:       userID.String(),
		ClaimSessionToken: sessionToken,
	}
	jwtauth.SetIssuedAt(claims, now)
	if expiry > 0 {
		jwtauth.SetExpiry(claims, now.Add(expiry))
	}
	_, tokenString, err := ja.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// SessionClaims reads the user id and session token verified by Verifier
func SessionClaims(ctx context.Context) (uuid.UUID, string, error) {
	token, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return uuid.Nil, "", err
	}
	if token == nil {
		return uuid.Nil, "", ErrMissingClaims
	}
	rawID, _ := claims[ClaimUserID].(string)
	sessionToken, _ := claims[ClaimSessionToken].(string)
	if rawID == "" || sessionToken == "" {
		return uuid.Nil, "", ErrMissingClaims
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid user id claim: %w", err)
	}
	return userID, sessionToken, nil
}

// IPResolver extracts the client address of a request. TrustedProxyHops is
// the number of reverse proxies in front of the service, each appending the
// address it received the request from to X-Forwarded-For. With zero hops the
// forwarding headers are ignored, since any client can set them.
type IPResolver struct {
	TrustedProxyHops int
}

// ClientIP returns the X-Forwarded-For entry added by the outermost trusted
// proxy, or the leftmost entry when the header has fewer entries than hops.
// Behind proxies that send X-Real-IP instead, that header is used. Without
// trusted proxies it returns the host part of RemoteAddr.
func (p IPResolver) ClientIP(r *http.Request) string {
	if p.TrustedProxyHops <= 0 {
		return remoteHost(r)
	}

	hops := forwardedFor(r)
	switch {
	case len(hops) >= p.TrustedProxyHops:
		return hops[len(hops)-p.TrustedProxyHops]
	case len(hops) > 0:
		return hops[0]
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remoteHost(r)
}

// ClientIP returns the host part of RemoteAddr. Use an IPResolver with
// TrustedProxyHops when the service runs behind a reverse proxy.
func ClientIP(r *http.Request) string {
	return IPResolver{}.ClientIP(r)
}

// forwardedFor lists the X-Forwarded-For entries of every header line, left to right
func forwardedFor(r *http.Request) []string {
	var hops []string
	for _, line := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(line, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

// KeepPeerAddr stores the connection's RemoteAddr in the request context
// before later middleware, such as chi's RealIP, rewrites it from headers.
// ClientIP prefers the stored address.
func KeepPeerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), PeerAddrKey, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func remoteHost(r *http.Request) string {
	addr := r.RemoteAddr
	if peer, ok := r.Context().Value(PeerAddrKey).(string); ok && peer != "" {
		addr = peer
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
