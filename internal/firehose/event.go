package firehose

// jetstreamEvent is the raw JSON structure from Jetstream.
type jetstreamEvent struct {
	DID    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *jetstreamCommit `json:"commit,omitempty"`
}

// jetstreamCommit is the raw commit data from Jetstream.
type jetstreamCommit struct {
	Rev        string        `json:"rev"`
	Operation  string        `json:"operation"`
	Collection string        `json:"collection"`
	RKey       string        `json:"rkey"`
	Post       *postRecord   `json:"-"`
	Like       *likeRecord   `json:"-"`
	Repost     *repostRecord `json:"-"`
	CID        string        `json:"cid"`
}

// postRecord is the parsed content of an app.bsky.feed.post record, including
// the component scores attached upstream by the extractor pipeline.
type postRecord struct {
	Type      string       `json:"$type"`
	Text      string       `json:"text"`
	CreatedAt string       `json:"createdAt"`
	Langs     []string     `json:"langs"`
	Reply     *replyRef    `json:"reply,omitempty"`
	Embed     *embedRecord `json:"embed,omitempty"`
	Facets    []facet      `json:"facets,omitempty"`
	Scores    *scoreRecord `json:"scores,omitempty"`
}

// scoreRecord carries the four extractor outputs for a post.
type scoreRecord struct {
	Keyword        float64 `json:"keyword"`
	Hashtag        float64 `json:"hashtag"`
	Semantic       float64 `json:"semantic"`
	Classification float64 `json:"classification"`
}

// likeRecord is the parsed content of an app.bsky.feed.like record.
type likeRecord struct {
	Type      string    `json:"$type"`
	Subject   strongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

// repostRecord is the parsed content of an app.bsky.feed.repost record.
type repostRecord struct {
	Type      string    `json:"$type"`
	Subject   strongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

// replyRef contains references to the parent and root of a reply chain.
type replyRef struct {
	Root   strongRef `json:"root"`
	Parent strongRef `json:"parent"`
}

// strongRef is a reference to a specific version of a record.
type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// embedRecord covers the embed variants we care about: images, video, and
// external links.
type embedRecord struct {
	Type     string          `json:"$type"`
	Images   []imageRecord   `json:"images,omitempty"`
	External *externalRecord `json:"external,omitempty"`
}

type imageRecord struct {
	Alt string `json:"alt"`
}

type externalRecord struct {
	URI string `json:"uri"`
}

// facet is a rich-text annotation; we only extract link features.
type facet struct {
	Features []facetFeature `json:"features"`
}

type facetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
}
