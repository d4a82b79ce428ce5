package models

import (
	"time"
)

// Message represents a chat completion message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AppSettings represents the operator-supplied settings read on every invocation
type AppSettings struct {
	Acceptance                     bool    `json:"acceptance" mapstructure:"acceptance"`
	Model                          string  `json:"model" mapstructure:"model"`
	Prompt                         string  `json:"prompt" mapstructure:"prompt"`
	Key                            string  `json:"key" mapstructure:"key"`
	Temperature                    float64 `json:"temperature" mapstructure:"temperature"`
	MaxPerHour                     int     `json:"maxhour" mapstructure:"maxhour"`
	MaxPerDay                      int     `json:"maxday" mapstructure:"maxday"`
	MaxCharacters                  int     `json:"maxcharacters" mapstructure:"maxcharacters"`
	EnableSummarizationForPosts    bool    `json:"enablesummarizationforposts" mapstructure:"enablesummarizationforposts"`
	EnableSummarizationForComments bool    `json:"enablesummarizationforcomments" mapstructure:"enablesummarizationforcomments"`
	SummarizationThreshold         int     `json:"summarizationthreshold" mapstructure:"summarizationthreshold"`
	EnableCommands                 bool    `json:"enablecommands" mapstructure:"enablecommands"`
	ChanceOf                       float64 `json:"chanceof" mapstructure:"chanceof"`
}

// UsageCounters holds the hourly, daily and lifetime API call counts
type UsageCounters struct {
	Hourly   int
	Daily    int
	Lifetime int
}

// ContentKind discriminates comments from posts
type ContentKind int

const (
	KindPost ContentKind = iota
	KindComment
)

func (k ContentKind) String() string {
	if k == KindComment {
		return "comment"
	}
	return "post"
}

// ContentItem is a comment or a post read from the platform.
// PostID is the owning post: the parent post of a comment, or the post itself.
type ContentItem struct {
	Kind     ContentKind
	ID       string
	PostID   string
	ParentID string // comments only
	AuthorID string
	Body     *string
	Locked   bool
	Removed  bool
	Spam     bool
}

// IsComment reports whether the item is a comment
func (c *ContentItem) IsComment() bool {
	return c.Kind == KindComment
}

// NewComment builds a comment item
func NewComment(id, postID, parentID string, body *string) *ContentItem {
	return &ContentItem{
		Kind:     KindComment,
		ID:       id,
		PostID:   postID,
		ParentID: parentID,
		Body:     body,
	}
}

// NewPost builds a post item
func NewPost(id string, body *string) *ContentItem {
	return &ContentItem{
		Kind:   KindPost,
		ID:     id,
		PostID: id,
		Body:   body,
	}
}

// ResultKind discriminates completion outcomes
type ResultKind int

const (
	ResultContent ResultKind = iota
	ResultHTTPError
	ResultAbnormalFinish
)

// CompletionResult is the outcome of one chat completion call
type CompletionResult struct {
	Kind         ResultKind
	Status       int
	FinishReason string
	Content      string
}

// ActionResult is returned to the platform for every trigger and action
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// User represents a platform account
type User struct {
	ID       string
	Username string
}

// CacheEntry represents a cached moderation verdict
type CacheEntry struct {
	Input     string
	Flagged   bool
	Model     string
	CreatedAt time.Time
}
