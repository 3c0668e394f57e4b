package web

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/SejinDoesArt/twittertruefriends/internal/logging"
	"github.com/SejinDoesArt/twittertruefriends/internal/model"
	"github.com/SejinDoesArt/twittertruefriends/internal/oauthx"
	"github.com/SejinDoesArt/twittertruefriends/internal/session"
	"github.com/SejinDoesArt/twittertruefriends/internal/xclient"
)

const loginPage = "/twitter.html"

func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	_, err := s.credential(r)
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": err == nil})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credential(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}
	raw, err := s.client.GetMeRaw(r.Context(), cred)
	if err != nil {
		logging.Error("user_info_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch user info"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credential(r)
	if err != nil {
		logging.Warn("analyze_unauthenticated", nil)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}
	res, err := s.analyzer.Analyze(r.Context(), cred)
	if err != nil {
		logging.Error("analyze_failed", map[string]any{"error": err.Error()})
		body := map[string]any{
			"error":   "Failed to analyze interactions",
			"details": err.Error(),
			"message": "Please check your Twitter Developer App settings and ensure you have the required access level.",
		}
		if ue, ok := xclient.AsUpstream(err); ok && len(ue.Payload) > 0 {
			body["details"] = ue.Payload
		}
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeRanked(w, res)
}

func (s *Server) handleAuthTwitter(w http.ResponseWriter, r *http.Request) {
	sess, err := s.liveSession(r)
	if err != nil {
		sess, err = s.sessions.Create(r.Context())
		if err != nil {
			logging.Error("session_create_failed", map[string]any{"error": err.Error()})
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}
	ch, err := oauthx.NewChallenge()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := s.sessions.SaveAuthRequest(r.Context(), sess.ID, ch.State, ch.Verifier); err != nil {
		logging.Error("session_save_failed", map[string]any{"error": err.Error()})
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	session.SetCookie(w, sess.ID, s.cfg.Server.SecureCookies)
	http.Redirect(w, r, oauthx.AuthorizeURL(s.oauth, ch), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	sess, err := s.liveSession(r)
	if err != nil || sess.State == "" || state != sess.State {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	token, err := s.exchanger.Exchange(r.Context(), code, sess.CodeVerifier)
	if err != nil {
		logging.Error("token_exchange_failed", map[string]any{"error": err.Error()})
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}
	me, err := s.client.GetMe(r.Context(), model.Credential{AccessToken: token})
	if err != nil {
		logging.Error("callback_user_lookup_failed", map[string]any{"error": err.Error()})
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}
	if err := s.sessions.SaveCredential(r.Context(), sess.ID, token, me.ID); err != nil {
		logging.Error("session_save_failed", map[string]any{"error": err.Error()})
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}
	logging.Info("user_authenticated", map[string]any{"user_id": me.ID})
	http.Redirect(w, r, loginPage, http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := session.IDFromRequest(r); ok {
		// A failed destroy is logged but never blocks the redirect.
		if err := s.sessions.Destroy(r.Context(), id); err != nil {
			logging.Error("session_destroy_failed", map[string]any{"error": err.Error()})
		}
	}
	session.ClearCookie(w)
	http.Redirect(w, r, loginPage, http.StatusFound)
}

// liveSession loads the unexpired session named by the request cookie.
func (s *Server) liveSession(r *http.Request) (session.Session, error) {
	id, ok := session.IDFromRequest(r)
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s.sessions.Get(r.Context(), id)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRanked emits the result as an object keyed by interactor id,
// with keys in rank order (encoding/json would sort a map's keys).
func writeRanked(w http.ResponseWriter, res model.RankedResult) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, it := range res {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(it.ID)
		v, _ := json.Marshal(it)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}
