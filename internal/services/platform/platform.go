package platform

import (
	"context"
	"strings"

	"github.com/hello-drektopia/redditbot-go/internal/models"
)

// Fullname prefixes used by the platform
const (
	CommentPrefix = "t1_"
	UserPrefix    = "t2_"
	PostPrefix    = "t3_"
)

// Client is the social-platform surface the bot uses
type Client interface {
	GetComment(ctx context.Context, id string) (*models.ContentItem, error)
	GetPost(ctx context.Context, id string) (*models.ContentItem, error)
	SubmitComment(ctx context.Context, parentID, text string) error
	SendPrivateMessage(ctx context.Context, to, subject, text string) error
	AppUser(ctx context.Context) (*models.User, error)
}

// PreviousThing fetches the comment's parent: another comment when the parent id is a t1 fullname, otherwise the post
func PreviousThing(ctx context.Context, c Client, commentID string) (*models.ContentItem, error) {
	comment, err := c.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(comment.ParentID, "t1") {
		return c.GetComment(ctx, comment.ParentID)
	}
	return c.GetPost(ctx, comment.ParentID)
}

// WithPrefix returns id as a fullname, keeping an existing prefix
func WithPrefix(prefix, id string) string {
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}
