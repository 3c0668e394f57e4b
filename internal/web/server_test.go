package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/SejinDoesArt/twittertruefriends/internal/analyze"
	"github.com/SejinDoesArt/twittertruefriends/internal/cache"
	"github.com/SejinDoesArt/twittertruefriends/internal/config"
	"github.com/SejinDoesArt/twittertruefriends/internal/model"
	"github.com/SejinDoesArt/twittertruefriends/internal/session"
	"github.com/SejinDoesArt/twittertruefriends/internal/xclient"
)

// stubClient serves a tiny fixed world: one tweet liked by u1 and u2,
// retweeted by u1; the analyzed user follows u1 and is followed by u2.
type stubClient struct {
	failLikers bool
}

func (s *stubClient) GetMe(ctx context.Context, cred model.Credential) (model.User, error) {
	return model.User{ID: "me1", Username: "sejin"}, nil
}

func (s *stubClient) GetMeRaw(ctx context.Context, cred model.Credential) (json.RawMessage, error) {
	return json.RawMessage(`{"data":{"id":"me1","username":"sejin","profile_image_url":"https://img"}}`), nil
}

func (s *stubClient) GetUserTweets(ctx context.Context, cred model.Credential, userID string, limit int) ([]model.Tweet, error) {
	return []model.Tweet{{ID: "A"}}, nil
}

func (s *stubClient) GetLikingUsers(ctx context.Context, cred model.Credential, tweetID string) ([]model.User, error) {
	if s.failLikers {
		return nil, &xclient.UpstreamError{Endpoint: "tweets/liking_users", Status: 403, Payload: json.RawMessage(`{"title":"Forbidden"}`)}
	}
	return []model.User{{ID: "u1", Username: "u1"}, {ID: "u2", Username: "u2"}}, nil
}

func (s *stubClient) GetRetweeters(ctx context.Context, cred model.Credential, tweetID string) ([]model.User, error) {
	return []model.User{{ID: "u1", Username: "u1"}}, nil
}

func (s *stubClient) GetFollowingIDs(ctx context.Context, cred model.Credential, userID string) (map[string]struct{}, error) {
	return map[string]struct{}{"u1": {}}, nil
}

func (s *stubClient) GetFollowerIDs(ctx context.Context, cred model.Credential, userID string) (map[string]struct{}, error) {
	return map[string]struct{}{"u2": {}}, nil
}

type stubExchanger struct {
	token       string
	gotCode     string
	gotVerifier string
}

func (e *stubExchanger) Exchange(ctx context.Context, code, verifier string) (string, error) {
	e.gotCode = code
	e.gotVerifier = verifier
	return e.token, nil
}

func newTestServer(t *testing.T, client xclient.XClient) (*httptest.Server, *stubExchanger, *session.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.PublicDir = ""
	cfg.Twitter.ClientID = "cid"
	cfg.Twitter.ClientSecret = "secret"
	cfg.Twitter.CallbackURL = "https://example.com/twitter-callback"

	sessions, err := session.Open(":memory:", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	analyzer := analyze.New(client, cache.New(time.Minute), cfg.Limits.MaxTweets, cfg.Limits.TopN)
	ex := &stubExchanger{token: "at-123"}
	srv := NewServer(cfg, client, analyzer, sessions, ex)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, ex, sessions
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, c *http.Client, url string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(b)
}

func TestAuthFlowAndAnalyze(t *testing.T) {
	ts, ex, _ := newTestServer(t, &stubClient{})
	browser := newBrowser(t)

	// Anonymous.
	resp, body := get(t, browser, ts.URL+"/check-auth")
	if resp.StatusCode != 200 || !strings.Contains(body, `"authenticated":false`) {
		t.Fatalf("check-auth anonymous: %d %s", resp.StatusCode, body)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("missing no-store header: %q", cc)
	}

	resp, _ = get(t, browser, ts.URL+"/analyze-interactions")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("analyze without credential: %d", resp.StatusCode)
	}

	resp, _ = get(t, browser, ts.URL+"/user-info")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("user-info without credential: %d", resp.StatusCode)
	}

	// OAuth redirect leg.
	resp, _ = get(t, browser, ts.URL+"/auth/twitter")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("auth redirect status: %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	q := loc.Query()
	if q.Get("code_challenge_method") != "S256" || q.Get("client_id") != "cid" {
		t.Fatalf("authorize URL wrong: %s", loc)
	}
	state := q.Get("state")
	if state == "" {
		t.Fatal("no state in authorize URL")
	}

	// Wrong state is rejected.
	resp, _ = get(t, browser, ts.URL+"/twitter-callback?state=forged&code=abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("forged state accepted: %d", resp.StatusCode)
	}

	// Callback leg.
	resp, _ = get(t, browser, ts.URL+"/twitter-callback?state="+state+"&code=thecode")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("callback status: %d", resp.StatusCode)
	}
	if ex.gotCode != "thecode" || ex.gotVerifier == "" {
		t.Fatalf("exchange inputs: code=%q verifier=%q", ex.gotCode, ex.gotVerifier)
	}

	resp, body = get(t, browser, ts.URL+"/check-auth")
	if !strings.Contains(body, `"authenticated":true`) {
		t.Fatalf("check-auth after callback: %s", body)
	}

	resp, body = get(t, browser, ts.URL+"/user-info")
	if resp.StatusCode != 200 || !strings.Contains(body, "profile_image_url") {
		t.Fatalf("user-info: %d %s", resp.StatusCode, body)
	}

	// Analysis: u1 totals 2 and ranks before u2 (total 1); keys in
	// rank order.
	resp, body = get(t, browser, ts.URL+"/analyze-interactions")
	if resp.StatusCode != 200 {
		t.Fatalf("analyze: %d %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `"u1":{"username":"u1","likes":1,"retweets":1,"isFollowing":true,"isFollower":false}`) {
		t.Fatalf("u1 entry wrong: %s", body)
	}
	if !strings.Contains(body, `"u2":{"username":"u2","likes":1,"retweets":0,"isFollowing":false,"isFollower":true}`) {
		t.Fatalf("u2 entry wrong: %s", body)
	}
	if strings.Index(body, `"u1"`) > strings.Index(body, `"u2"`) {
		t.Fatalf("rank order lost in response: %s", body)
	}

	// Logout destroys the session.
	resp, _ = get(t, browser, ts.URL+"/logout")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("logout status: %d", resp.StatusCode)
	}
	_, body = get(t, browser, ts.URL+"/check-auth")
	if !strings.Contains(body, `"authenticated":false`) {
		t.Fatalf("still authenticated after logout: %s", body)
	}
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	ts, _, sessions := newTestServer(t, &stubClient{failLikers: true})
	browser := newBrowser(t)

	sess, err := sessions.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := sessions.SaveCredential(context.Background(), sess.ID, "tok", "me1"); err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/analyze-interactions", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
	resp, err := browser.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", resp.StatusCode)
	}
	var body struct {
		Error   string          `json:"error"`
		Details json.RawMessage `json:"details"`
		Message string          `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "Failed to analyze interactions" || body.Message == "" {
		t.Fatalf("error body wrong: %+v", body)
	}
	if !strings.Contains(string(body.Details), "Forbidden") {
		t.Fatalf("upstream payload not relayed: %s", body.Details)
	}
}

func TestAnalyzeRateLimited(t *testing.T) {
	cfg := config.Default()
	cfg.Server.PublicDir = ""
	cfg.Limits.RateLimitRequests = 2
	cfg.Limits.RateLimitWindowS = 900

	sessions, err := session.Open(":memory:", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	client := &stubClient{}
	analyzer := analyze.New(client, cache.New(time.Minute), 100, 10)
	srv := NewServer(cfg, client, analyzer, sessions, &stubExchanger{token: "t"})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	var last int
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/analyze-interactions")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third request not limited: %d", last)
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	ts, _, _ := newTestServer(t, &stubClient{})
	browser := newBrowser(t)
	resp, _ := get(t, browser, ts.URL+"/logout")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("logout without session: %d", resp.StatusCode)
	}
	if resp.Header.Get("Location") != "/twitter.html" {
		t.Fatalf("logout redirect: %s", resp.Header.Get("Location"))
	}
}
