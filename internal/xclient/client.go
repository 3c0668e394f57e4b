package xclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/SejinDoesArt/twittertruefriends/internal/metrics"
	"github.com/SejinDoesArt/twittertruefriends/internal/model"
)

// Page caps imposed by the upstream contract. Likers/retweeters are a
// single page; following/followers a single larger page.
const (
	tweetsPageCap      = 100
	interactionPageCap = 100
	followPageCap      = 1000
)

// XClient defines the methods we use from the X API. The credential is
// per call: each browser session carries its own user token.
type XClient interface {
	GetMe(ctx context.Context, cred model.Credential) (model.User, error)
	GetMeRaw(ctx context.Context, cred model.Credential) (json.RawMessage, error)
	GetUserTweets(ctx context.Context, cred model.Credential, userID string, limit int) ([]model.Tweet, error)
	GetLikingUsers(ctx context.Context, cred model.Credential, tweetID string) ([]model.User, error)
	GetRetweeters(ctx context.Context, cred model.Credential, tweetID string) ([]model.User, error)
	GetFollowingIDs(ctx context.Context, cred model.Credential, userID string) (map[string]struct{}, error)
	GetFollowerIDs(ctx context.Context, cred model.Credential, userID string) (map[string]struct{}, error)
}

// HTTPClient is a bearer-token client for X API v2. Failed calls are
// never retried here; a failure aborts the caller's whole run.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewHTTPClient(baseURL string) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.twitter.com/2"
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    newDefaultLimiter(),
	}
}

// SetBaseURL points the client at a different API root (tests).
func (c *HTTPClient) SetBaseURL(u string) { c.baseURL = u }

func (c *HTTPClient) get(ctx context.Context, cred model.Credential, endpoint, rawurl string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return &UpstreamError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	if err := c.limiter.Wait(ctx); err != nil { return err }
	metrics.IncAPICall(endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Payload: RawPayload(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &UpstreamError{Endpoint: endpoint, Err: err}
	}
	return nil
}

func (c *HTTPClient) GetMe(ctx context.Context, cred model.Credential) (model.User, error) {
	var raw struct {
		Data model.User `json:"data"`
	}
	u := c.baseURL + "/users/me"
	if err := c.get(ctx, cred, "users/me", u, &raw); err != nil {
		return model.User{}, err
	}
	return raw.Data, nil
}

// GetMeRaw returns the profile response verbatim so handlers can relay
// it to the browser unchanged.
func (c *HTTPClient) GetMeRaw(ctx context.Context, cred model.Credential) (json.RawMessage, error) {
	var raw json.RawMessage
	u := c.baseURL + "/users/me?user.fields=profile_image_url"
	if err := c.get(ctx, cred, "users/me", u, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetUserTweets collects up to limit of the user's most recent tweets,
// following the continuation token until it is absent or the limit is
// reached, whichever comes first.
func (c *HTTPClient) GetUserTweets(ctx context.Context, cred model.Credential, userID string, limit int) ([]model.Tweet, error) {
	if limit <= 0 {
		limit = tweetsPageCap
	}
	var out []model.Tweet
	token := ""
	for len(out) < limit {
		u := fmt.Sprintf("%s/users/%s/tweets?max_results=%d&tweet.fields=public_metrics",
			c.baseURL, url.PathEscape(userID), clamp(limit-len(out), 5, tweetsPageCap))
		if token != "" {
			u += "&pagination_token=" + url.QueryEscape(token)
		}
		var raw struct {
			Data []struct {
				ID   string `json:"id"`
				Text string `json:"text"`
			} `json:"data"`
			Meta struct {
				NextToken string `json:"next_token"`
			} `json:"meta"`
		}
		if err := c.get(ctx, cred, "users/tweets", u, &raw); err != nil {
			return nil, err
		}
		for _, d := range raw.Data {
			out = append(out, model.Tweet{ID: d.ID, Text: d.Text})
		}
		token = raw.Meta.NextToken
		if token == "" || len(raw.Data) == 0 {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetLikingUsers returns users who liked the tweet. Single page capped
// at 100; the upstream access tier does not paginate further.
func (c *HTTPClient) GetLikingUsers(ctx context.Context, cred model.Credential, tweetID string) ([]model.User, error) {
	u := fmt.Sprintf("%s/tweets/%s/liking_users?max_results=%d", c.baseURL, url.PathEscape(tweetID), interactionPageCap)
	return c.getUsers(ctx, cred, "tweets/liking_users", u)
}

// GetRetweeters returns users who retweeted the tweet. Same single-page
// contract as GetLikingUsers.
func (c *HTTPClient) GetRetweeters(ctx context.Context, cred model.Credential, tweetID string) ([]model.User, error) {
	u := fmt.Sprintf("%s/tweets/%s/retweeted_by?max_results=%d", c.baseURL, url.PathEscape(tweetID), interactionPageCap)
	return c.getUsers(ctx, cred, "tweets/retweeted_by", u)
}

func (c *HTTPClient) getUsers(ctx context.Context, cred model.Credential, endpoint, rawurl string) ([]model.User, error) {
	var raw struct {
		Data []model.User `json:"data"`
	}
	if err := c.get(ctx, cred, endpoint, rawurl, &raw); err != nil {
		return nil, err
	}
	return raw.Data, nil
}

// GetFollowingIDs returns the set of ids the user follows, one page
// capped at 1000.
func (c *HTTPClient) GetFollowingIDs(ctx context.Context, cred model.Credential, userID string) (map[string]struct{}, error) {
	u := fmt.Sprintf("%s/users/%s/following?user.fields=id&max_results=%d", c.baseURL, url.PathEscape(userID), followPageCap)
	return c.getIDSet(ctx, cred, "users/following", u)
}

// GetFollowerIDs returns the set of ids following the user, one page
// capped at 1000.
func (c *HTTPClient) GetFollowerIDs(ctx context.Context, cred model.Credential, userID string) (map[string]struct{}, error) {
	u := fmt.Sprintf("%s/users/%s/followers?user.fields=id&max_results=%d", c.baseURL, url.PathEscape(userID), followPageCap)
	return c.getIDSet(ctx, cred, "users/followers", u)
}

func (c *HTTPClient) getIDSet(ctx context.Context, cred model.Credential, endpoint, rawurl string) (map[string]struct{}, error) {
	var raw struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.get(ctx, cred, endpoint, rawurl, &raw); err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(raw.Data))
	for _, d := range raw.Data {
		ids[d.ID] = struct{}{}
	}
	return ids, nil
}

func clamp(v, min, max int) int { if v < min { return min }; if v > max { return max }; return v }
