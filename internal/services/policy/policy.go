package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/hello-drektopia/redditbot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// NoAIPostsKey holds the set of posts moderators opted out of AI replies
const NoAIPostsKey = "noAIposts"

// ErrInvalidChance is returned for a reply chance outside 0..100
var ErrInvalidChance = errors.New("chance of posting in configuration settings must be between 0 and 100")

// KV is the subset of storage the checker needs
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Update(ctx context.Context, key string, fn storage.UpdateFunc) error
}

// Counters reports whether the usage quota is spent
type Counters interface {
	IsAboveLimit(ctx context.Context, maxDay, maxHour int) (bool, error)
}

// Moderator flags inappropriate text
type Moderator interface {
	CheckModeration(ctx context.Context, apiKey string, text *string) (bool, error)
}

// Checker decides whether a piece of content may be replied to
type Checker struct {
	kv        KV
	counters  Counters
	moderator Moderator
	appName   string
	logger    *logrus.Logger
}

// NewChecker creates a restriction checker
func NewChecker(kv KV, counters Counters, moderator Moderator, appName string, logger *logrus.Logger) *Checker {
	return &Checker{
		kv:        kv,
		counters:  counters,
		moderator: moderator,
		appName:   appName,
		logger:    logger,
	}
}

func restricted(reason models.RestrictionReason, msg string) *models.RestrictionError {
	return &models.RestrictionError{Reason: reason, Message: msg}
}

// Evaluate runs the checks in order, cheapest first, and returns the first one that fails.
// A nil restriction with a nil error means the reply is allowed.
func (c *Checker) Evaluate(ctx context.Context, item *models.ContentItem, s *models.AppSettings) (*models.RestrictionError, error) {
	if item.Body == nil {
		return restricted(models.ReasonNoBody, "There's no text to respond to. This won't work for image or link posts."), nil
	}
	if item.Locked {
		return restricted(models.ReasonLocked, "This is locked, and should not be replied to."), nil
	}
	if item.Removed {
		return restricted(models.ReasonRemoved, "This is removed, and should not be replied to."), nil
	}
	if item.Spam {
		return restricted(models.ReasonSpam, "This is spam, and should not be replied to."), nil
	}

	blocked, err := c.IsBlocked(ctx, item.PostID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return restricted(models.ReasonBlockedPost,
			fmt.Sprintf("Moderators have restricted this post from receiving comments from %s.", c.appName)), nil
	}

	above, err := c.counters.IsAboveLimit(ctx, s.MaxPerDay, s.MaxPerHour)
	if err != nil {
		return nil, err
	}
	if above {
		return restricted(models.ReasonRateLimit, "OpenAI API call limit exceeded."), nil
	}

	if n := len([]rune(*item.Body)); n > s.MaxCharacters {
		return restricted(models.ReasonTooLong,
			fmt.Sprintf("The text is too long. It has %d characters. %d is the limit.", n, s.MaxCharacters)), nil
	}

	// most expensive, so last
	flagged, err := c.moderator.CheckModeration(ctx, s.Key, item.Body)
	if err != nil {
		return nil, err
	}
	if flagged {
		return restricted(models.ReasonModeration, "OpenAI moderation flagged comment as inappropriate."), nil
	}

	return nil, nil
}

func decodeSet(data string, exists bool) (map[string]bool, error) {
	set := map[string]bool{}
	if !exists || data == "" {
		return set, nil
	}
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		return nil, fmt.Errorf("stored %s is not valid JSON: %w", NoAIPostsKey, err)
	}
	return set, nil
}

// IsBlocked reports whether moderators opted postID out of AI replies
func (c *Checker) IsBlocked(ctx context.Context, postID string) (bool, error) {
	data, ok, err := c.kv.Get(ctx, NoAIPostsKey)
	if err != nil {
		return false, err
	}
	set, err := decodeSet(data, ok)
	if err != nil {
		return false, err
	}
	_, blocked := set[postID]
	return blocked, nil
}

// BlockPost adds postID to the opt-out set. Concurrent blocks are all kept.
func (c *Checker) BlockPost(ctx context.Context, postID string) error {
	err := c.kv.Update(ctx, NoAIPostsKey, func(current string, exists bool) (string, error) {
		set, err := decodeSet(current, exists)
		if err != nil {
			return "", err
		}
		set[postID] = true

		data, err := json.Marshal(set)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		return fmt.Errorf("failed to block post %s: %w", postID, err)
	}

	c.logger.WithField("post_id", postID).Info("Post blocked from AI replies")
	return nil
}

// ShouldAct draws against percent. rng returns values in [0,1).
func ShouldAct(percent float64, rng func() float64) (bool, error) {
	if percent < 0 || percent > 100 || math.IsNaN(percent) {
		return false, ErrInvalidChance
	}
	return rng()*100 < percent, nil
}
