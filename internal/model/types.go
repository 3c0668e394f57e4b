package model

// Credential is proof of an authenticated browser session: the bearer
// token obtained at OAuth callback time plus the owning user's id.
type Credential struct {
	AccessToken string
	UserID      string
}

// Valid reports whether the credential carries an access token.
func (c Credential) Valid() bool { return c.AccessToken != "" }

// User represents the subset of X user fields used by the service.
type User struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Tweet is one of the analyzed user's posts. Only the id matters
// downstream; it is the lookup key for interaction fetches.
type Tweet struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

// Interactor accumulates one remote user's interactions with the
// analyzed account. An entry is created on the first like or retweet
// sighting, so counts are never both zero.
type Interactor struct {
	ID          string `json:"-"`
	Username    string `json:"username"`
	Likes       int    `json:"likes"`
	Retweets    int    `json:"retweets"`
	IsFollowing bool   `json:"isFollowing"`
	IsFollower  bool   `json:"isFollower"`

	// order is the discovery index, assigned on first sighting.
	// It breaks ranking ties deterministically.
	order int
}

// NewInteractor creates an entry at discovery index ord.
func NewInteractor(id, username string, ord int) *Interactor {
	return &Interactor{ID: id, Username: username, order: ord}
}

// Total is the ranking score.
func (i *Interactor) Total() int { return i.Likes + i.Retweets }

// Order returns the discovery index.
func (i *Interactor) Order() int { return i.order }

// RankedResult is the ordered top-interactor list: non-increasing by
// Total, ties by discovery order, at most ten entries.
type RankedResult []*Interactor
