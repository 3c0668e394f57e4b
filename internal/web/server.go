package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SejinDoesArt/twittertruefriends/internal/analyze"
	"github.com/SejinDoesArt/twittertruefriends/internal/config"
	"github.com/SejinDoesArt/twittertruefriends/internal/model"
	"github.com/SejinDoesArt/twittertruefriends/internal/oauthx"
	"github.com/SejinDoesArt/twittertruefriends/internal/session"
	"github.com/SejinDoesArt/twittertruefriends/internal/xclient"
)

// Exchanger redeems an OAuth authorization code. Satisfied by
// oauthx.Exchanger; faked in tests.
type Exchanger interface {
	Exchange(ctx context.Context, code, verifier string) (string, error)
}

// Server wires the HTTP surface: the OAuth lifecycle, the analysis
// endpoint, and the static frontend.
type Server struct {
	cfg       config.Config
	client    xclient.XClient
	analyzer  *analyze.Analyzer
	sessions  *session.Store
	exchanger Exchanger
	oauth     oauthx.Config
}

func NewServer(cfg config.Config, client xclient.XClient, analyzer *analyze.Analyzer, sessions *session.Store, exchanger Exchanger) *Server {
	return &Server{
		cfg:       cfg,
		client:    client,
		analyzer:  analyzer,
		sessions:  sessions,
		exchanger: exchanger,
		oauth: oauthx.Config{
			ClientID:     cfg.Twitter.ClientID,
			ClientSecret: cfg.Twitter.ClientSecret,
			CallbackURL:  cfg.Twitter.CallbackURL,
		},
	}
}

// Router assembles the chi router with the access log, no-store
// headers, and per-route rate limiting.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(accessLog)
	r.Use(noStore)

	rl := newIPRateLimiter(
		s.cfg.Limits.RateLimitRequests,
		time.Duration(s.cfg.Limits.RateLimitWindowS)*time.Second,
	)

	r.Get("/check-auth", s.handleCheckAuth)
	r.Get("/user-info", s.handleUserInfo)
	r.With(rl.Middleware).Get("/analyze-interactions", s.handleAnalyze)
	r.Get("/auth/twitter", s.handleAuthTwitter)
	r.Get("/twitter-callback", s.handleCallback)
	r.Get("/logout", s.handleLogout)

	if s.cfg.Server.PublicDir != "" {
		fs := http.FileServer(http.Dir(s.cfg.Server.PublicDir))
		r.Handle("/*", fs)
	}
	return r
}

// credential is the auth gate: it loads the session named by the
// request cookie and fails with analyze.ErrNotAuthenticated when no
// access token is held. Pure precondition check, no side effects.
func (s *Server) credential(r *http.Request) (model.Credential, error) {
	id, ok := session.IDFromRequest(r)
	if !ok {
		return model.Credential{}, analyze.ErrNotAuthenticated
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		return model.Credential{}, analyze.ErrNotAuthenticated
	}
	cred := sess.Credential()
	if !cred.Valid() {
		return model.Credential{}, analyze.ErrNotAuthenticated
	}
	return cred, nil
}
