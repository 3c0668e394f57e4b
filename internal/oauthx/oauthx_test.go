package oauthx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// Known vector from RFC 7636 appendix B.
func TestS256KnownVector(t *testing.T) {
	got := S256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got != want {
		t.Fatalf("S256 = %s, want %s", got, want)
	}
}

func TestNewChallengeShape(t *testing.T) {
	ch, err := NewChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.State) != 64 || len(ch.Verifier) != 64 {
		t.Fatalf("state/verifier must be 32 random bytes hex: %d/%d", len(ch.State), len(ch.Verifier))
	}
	if ch.Challenge != S256(ch.Verifier) {
		t.Fatal("challenge does not match verifier")
	}
	ch2, _ := NewChallenge()
	if ch2.State == ch.State || ch2.Verifier == ch.Verifier {
		t.Fatal("challenges must be random")
	}
}

func TestAuthorizeURL(t *testing.T) {
	cfg := Config{ClientID: "cid", CallbackURL: "https://example.com/twitter-callback"}
	ch := Challenge{State: "st", Verifier: "v", Challenge: S256("v")}
	raw := AuthorizeURL(cfg, ch)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "twitter.com" || u.Path != "/i/oauth2/authorize" {
		t.Fatalf("wrong endpoint: %s", raw)
	}
	q := u.Query()
	for k, want := range map[string]string{
		"response_type":         "code",
		"client_id":             "cid",
		"redirect_uri":          cfg.CallbackURL,
		"scope":                 Scope,
		"state":                 "st",
		"code_challenge":        ch.Challenge,
		"code_challenge_method": "S256",
	} {
		if q.Get(k) != want {
			t.Fatalf("%s = %q, want %q", k, q.Get(k), want)
		}
	}
}

func TestExchange(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method %s", r.Method)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "secret" {
			t.Errorf("basic auth wrong: %s:%s", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		for k, want := range map[string]string{
			"code":          "thecode",
			"grant_type":    "authorization_code",
			"client_id":     "cid",
			"code_verifier": "theverifier",
		} {
			if r.PostForm.Get(k) != want {
				t.Errorf("%s = %q", k, r.PostForm.Get(k))
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"bearer","access_token":"at-123"}`))
	}))
	defer ts.Close()

	e := NewExchanger(Config{ClientID: "cid", ClientSecret: "secret", TokenURL: ts.URL})
	tok, err := e.Exchange(context.Background(), "thecode", "theverifier")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "at-123" {
		t.Fatalf("token = %q", tok)
	}
}

func TestExchangeFailureSurfacesPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_request"}`))
	}))
	defer ts.Close()

	e := NewExchanger(Config{ClientID: "cid", ClientSecret: "secret", TokenURL: ts.URL})
	_, err := e.Exchange(context.Background(), "bad", "v")
	if err == nil {
		t.Fatal("want error")
	}
}
