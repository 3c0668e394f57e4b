package oauthx

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SejinDoesArt/twittertruefriends/internal/xclient"
)

// Scope covers everything the analysis needs: reading tweets and users.
const Scope = "tweet.read users.read"

// Config holds the partner OAuth application settings.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	AuthorizeURL string // default https://twitter.com/i/oauth2/authorize
	TokenURL     string // default https://api.twitter.com/2/oauth2/token
}

func (c Config) authorizeURL() string {
	if c.AuthorizeURL != "" {
		return c.AuthorizeURL
	}
	return "https://twitter.com/i/oauth2/authorize"
}

func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return "https://api.twitter.com/2/oauth2/token"
}

// Challenge is one handshake's anti-forgery state plus PKCE pair.
type Challenge struct {
	State     string
	Verifier  string
	Challenge string // S256 of Verifier
}

// NewChallenge generates the random state and PKCE verifier, and the
// S256 code challenge: base64url, no padding, of the verifier's
// SHA-256 (RFC 7636).
func NewChallenge() (Challenge, error) {
	state, err := randomHex(32)
	if err != nil {
		return Challenge{}, err
	}
	verifier, err := randomHex(32)
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{State: state, Verifier: verifier, Challenge: S256(verifier)}, nil
}

// S256 computes the PKCE code challenge for a verifier.
func S256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// AuthorizeURL builds the partner authorization redirect target.
func AuthorizeURL(cfg Config, ch Challenge) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", cfg.ClientID)
	q.Set("redirect_uri", cfg.CallbackURL)
	q.Set("scope", Scope)
	q.Set("state", ch.State)
	q.Set("code_challenge", ch.Challenge)
	q.Set("code_challenge_method", "S256")
	return cfg.authorizeURL() + "?" + q.Encode()
}

// Exchanger swaps authorization codes for access tokens.
type Exchanger struct {
	cfg        Config
	httpClient *http.Client
}

func NewExchanger(cfg Config) *Exchanger {
	return &Exchanger{cfg: cfg, httpClient: &http.Client{Timeout: 15 * time.Second}}
}

// Exchange redeems the authorization code with the stored verifier.
// The token endpoint wants the client id and secret as Basic auth. A
// non-success response surfaces as an *xclient.UpstreamError so the
// callback handler fails the same way data calls do.
func (e *Exchanger) Exchange(ctx context.Context, code, verifier string) (string, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", e.cfg.ClientID)
	form.Set("redirect_uri", e.cfg.CallbackURL)
	form.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(e.cfg.ClientID, e.cfg.ClientSecret)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", &xclient.UpstreamError{Endpoint: "oauth2/token", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &xclient.UpstreamError{Endpoint: "oauth2/token", Status: resp.StatusCode, Payload: xclient.RawPayload(body)}
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", &xclient.UpstreamError{Endpoint: "oauth2/token", Err: err}
	}
	return tok.AccessToken, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
