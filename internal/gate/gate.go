// Package gate intercepts each request and decides whether the caller may
// reach it: route permissions first (any one grants access), secured path
// patterns second. Denials become 401 with a WWW-Authenticate challenge when
// an HTTP authenticator is active and no user is identified, 403 otherwise.
package gate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/palisadehq/palisade/pkg/httpauth"
	"github.com/palisadehq/palisade/pkg/secmodel"
)

type contextKey string

const contextKeyUser contextKey = "security_user"

// UserFromContext returns the authenticated user placed by the gate, or nil.
func UserFromContext(ctx context.Context) *secmodel.User {
	if v := ctx.Value(contextKeyUser); v != nil {
		return v.(*secmodel.User)
	}
	return nil
}

// Gate enforces the path/permission rules of a security model on HTTP
// requests.
type Gate struct {
	model  secmodel.SecurityModel
	auth   *httpauth.Authenticator
	routes *RouteRegistry
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets a custom logger for decision logging.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// WithAuthenticator wires the HTTP challenge authenticator. Without one, the
// gate never identifies callers from HTTP credentials and every denial is a
// bare 403.
func WithAuthenticator(a *httpauth.Authenticator) Option {
	return func(g *Gate) {
		g.auth = a
	}
}

// WithRoutes sets the registry of per-route required permissions.
func WithRoutes(r *RouteRegistry) Option {
	return func(g *Gate) {
		g.routes = r
	}
}

// New creates a request gate over the given security model.
func New(model secmodel.SecurityModel, opts ...Option) *Gate {
	g := &Gate{
		model:  model,
		routes: NewRouteRegistry(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wrap wraps an HTTP handler with authentication and authorization. The flow:
// 1. Establish identity from Basic/Digest credentials, if an authenticator is
//    wired. Invalid credentials collapse to "no user"; they never error here.
// 2. Authorize against route permissions and secured paths.
// 3. On denial, answer 401 plus challenge or 403. The response carries no
//    detail about which check failed.
func (g *Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user *secmodel.User
		if g.auth != nil {
			user = g.auth.Authenticate(r)
		}

		if err := g.Authorize(r, user); err != nil {
			if secmodel.IsUnauthorized(err) {
				g.writeDenied(w, r, user)
				return
			}
			g.logger.Error("authorization check failed",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
			g.writeError(w, http.StatusInternalServerError, secmodel.ErrCodeModelFailure, "internal error")
			return
		}

		if user != nil {
			r = r.WithContext(context.WithValue(r.Context(), contextKeyUser, user))
		}
		next.ServeHTTP(w, r)
	})
}

// Authorize applies the decision procedure for one request. It returns nil
// when the request may proceed, an unauthorized SecurityError on denial, and
// any other error when the model itself failed.
func (g *Gate) Authorize(r *http.Request, user *secmodel.User) error {
	method := r.Method
	path := r.URL.Path

	// Route permission check. Holding any one declared permission allows the
	// request outright, skipping the path check. Declared-but-unheld
	// permissions deny even an unsecured path.
	if required := g.routes.PermissionsFor(method, path); len(required) > 0 {
		if user != nil {
			for _, code := range required {
				if user.HasPermission(code) {
					return nil
				}
			}
		}
		g.logger.Info("authorization denied",
			"method", method,
			"path", path,
			"user", username(user),
			"check", "permission",
		)
		return secmodel.ErrUnauthorized()
	}

	securedPaths, err := g.model.SecuredPaths()
	if err != nil {
		return err
	}
	if !secmodel.MatchAnyPath(securedPaths, path, method) {
		return nil
	}

	if user != nil && user.Active && user.IsPathAllowed(path, method) {
		return nil
	}

	g.logger.Info("authorization denied",
		"method", method,
		"path", path,
		"user", username(user),
		"check", "path",
	)
	return secmodel.ErrUnauthorized()
}

// writeDenied selects the HTTP-visible outcome for a denial. An identified
// user gets a bare 403; an anonymous caller is challenged when an HTTP
// authenticator is active.
func (g *Gate) writeDenied(w http.ResponseWriter, r *http.Request, user *secmodel.User) {
	if user == nil && g.auth != nil {
		w.Header().Set("WWW-Authenticate", g.auth.AuthenticateHeaderValue())
		g.writeError(w, http.StatusUnauthorized, secmodel.ErrCodeUnauthorized, "authentication required")
		return
	}
	g.writeError(w, http.StatusForbidden, secmodel.ErrCodeUnauthorized, "access denied")
}

// writeError writes a JSON error response.
func (g *Gate) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

func username(user *secmodel.User) string {
	if user == nil {
		return ""
	}
	return user.Username
}
