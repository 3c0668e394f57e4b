package analyze

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/SejinDoesArt/twittertruefriends/internal/cache"
	"github.com/SejinDoesArt/twittertruefriends/internal/logging"
	"github.com/SejinDoesArt/twittertruefriends/internal/metrics"
	"github.com/SejinDoesArt/twittertruefriends/internal/model"
	"github.com/SejinDoesArt/twittertruefriends/internal/xclient"
)

// ErrNotAuthenticated is returned before any upstream call when the
// credential carries no access token.
var ErrNotAuthenticated = errors.New("not authenticated")

const (
	DefaultMaxTweets = 100
	DefaultTopN      = 10
)

// Analyzer drives the interaction analysis: fetch recent tweets,
// accumulate per-interactor like/retweet counts, rank, and enrich the
// top entries with mutual-follow status. All upstream calls within one
// run are strictly sequential; concurrent runs for different users are
// independent and share only the cache.
type Analyzer struct {
	client    xclient.XClient
	cache     *cache.Cache
	maxTweets int
	topN      int
}

func New(client xclient.XClient, c *cache.Cache, maxTweets, topN int) *Analyzer {
	if maxTweets <= 0 {
		maxTweets = DefaultMaxTweets
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Analyzer{client: client, cache: c, maxTweets: maxTweets, topN: topN}
}

// Analyze returns the ranked top interactors for the credential's user.
// Results are served from the cache within its TTL. Any upstream
// failure aborts the whole run; nothing partial is cached or returned.
func (a *Analyzer) Analyze(ctx context.Context, cred model.Credential) (model.RankedResult, error) {
	if !cred.Valid() {
		return nil, ErrNotAuthenticated
	}
	if cred.UserID != "" {
		if res, ok := a.cache.Get(cred.UserID); ok {
			metrics.CacheHits.Inc()
			logging.Info("analysis_cache_hit", map[string]any{"user_id": cred.UserID})
			return res, nil
		}
	}
	metrics.CacheMisses.Inc()
	metrics.AnalysisRuns.Inc()
	start := time.Now()
	userID, res, err := a.run(ctx, cred)
	metrics.ObserveAnalysisDuration(start)
	if err != nil {
		metrics.AnalysisErrors.Inc()
		return nil, err
	}
	a.cache.Put(userID, res)
	return res, nil
}

func (a *Analyzer) run(ctx context.Context, cred model.Credential) (string, model.RankedResult, error) {
	// Re-confirm the canonical user id even when the session already
	// knows it; the session copy could be stale.
	me, err := a.client.GetMe(ctx, cred)
	if err != nil {
		return "", nil, err
	}
	logging.Info("analysis_start", map[string]any{"user_id": me.ID})

	tweets, err := a.client.GetUserTweets(ctx, cred, me.ID, a.maxTweets)
	if err != nil {
		return "", nil, err
	}

	interactors := make(map[string]*model.Interactor)
	order := 0
	for _, tw := range tweets {
		likers, err := a.client.GetLikingUsers(ctx, cred, tw.ID)
		if err != nil {
			return "", nil, err
		}
		for _, u := range likers {
			e := touch(interactors, u, &order)
			e.Likes++
		}
		retweeters, err := a.client.GetRetweeters(ctx, cred, tw.ID)
		if err != nil {
			return "", nil, err
		}
		for _, u := range retweeters {
			e := touch(interactors, u, &order)
			e.Retweets++
		}
	}

	top := rank(interactors, a.topN)

	if len(top) > 0 {
		// One fetch of each relationship set serves every top entry.
		following, err := a.client.GetFollowingIDs(ctx, cred, me.ID)
		if err != nil {
			return "", nil, err
		}
		followers, err := a.client.GetFollowerIDs(ctx, cred, me.ID)
		if err != nil {
			return "", nil, err
		}
		for _, it := range top {
			_, it.IsFollowing = following[it.ID]
			_, it.IsFollower = followers[it.ID]
		}
	}

	logging.Info("analysis_done", map[string]any{"user_id": me.ID, "tweets": len(tweets), "top": len(top)})
	return me.ID, top, nil
}

// touch returns the accumulation entry for u, creating it at the next
// discovery index on first sighting.
func touch(m map[string]*model.Interactor, u model.User, order *int) *model.Interactor {
	if e, ok := m[u.ID]; ok {
		return e
	}
	e := model.NewInteractor(u.ID, u.Username, *order)
	*order++
	m[u.ID] = e
	return e
}

// rank sorts by likes+retweets descending, ties broken by discovery
// order, and truncates to topN.
func rank(m map[string]*model.Interactor, topN int) model.RankedResult {
	out := make(model.RankedResult, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total() != out[j].Total() {
			return out[i].Total() > out[j].Total()
		}
		return out[i].Order() < out[j].Order()
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
