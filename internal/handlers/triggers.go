package handlers

import (
	"context"
	"fmt"

	"github.com/hello-drektopia/redditbot-go/internal/i18n"
	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/hello-drektopia/redditbot-go/internal/services/platform"
	"github.com/hello-drektopia/redditbot-go/internal/services/policy"
	"github.com/hello-drektopia/redditbot-go/internal/services/reply"
	"github.com/hello-drektopia/redditbot-go/internal/services/usage"
	"github.com/hello-drektopia/redditbot-go/pkg/logger"
)

// Event names used for metrics and logs
const (
	EventInstall       = "install"
	EventCommentSubmit = "comment_submit"
	EventPostSubmit    = "post_submit"
	EventHourlyReset   = usage.ResetJobName
)

// Author is the author block of a trigger payload
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CommentEvent is the comment-submit trigger payload
type CommentEvent struct {
	Comment struct {
		ID       string `json:"id"`
		Body     string `json:"body"`
		PostID   string `json:"post_id"`
		ParentID string `json:"parent_id"`
	} `json:"comment"`
	Author Author `json:"author"`
}

// PostEvent is the post-submit trigger payload
type PostEvent struct {
	Post struct {
		ID string `json:"id"`
	} `json:"post"`
	Author Author `json:"author"`
}

// Install registers the hourly counter reset
func (h *Handler) Install(ctx context.Context) models.ActionResult {
	h.metrics.RecordEventReceived(EventInstall)

	if err := h.counters.Install(h.scheduler); err != nil {
		return h.reportError(EventInstall, err)
	}
	return h.success(EventInstall, h.msg(i18n.MsgInstalled, nil))
}

// HourlyTick runs the scheduled counter reset
func (h *Handler) HourlyTick(ctx context.Context) models.ActionResult {
	h.metrics.RecordEventReceived(EventHourlyReset)

	if err := h.counters.ResetHourly(ctx); err != nil {
		return h.reportError(EventHourlyReset, err)
	}
	return h.success(EventHourlyReset, h.msg(i18n.MsgHourlyReset, nil))
}

// CommentSubmit handles a newly submitted comment
func (h *Handler) CommentSubmit(ctx context.Context, event *CommentEvent) models.ActionResult {
	h.metrics.RecordEventReceived(EventCommentSubmit)

	commentID := platform.WithPrefix(platform.CommentPrefix, event.Comment.ID)
	authorID := platform.WithPrefix(platform.UserPrefix, event.Author.ID)
	log := logger.WithThing(h.logger, commentID, authorID)

	appUser, err := h.platform.AppUser(ctx)
	if err != nil {
		return h.reportError(EventCommentSubmit, err)
	}
	if authorID == appUser.ID {
		return h.success(EventCommentSubmit, h.msg(i18n.MsgSelfAuthored, map[string]interface{}{"ID": commentID}))
	}

	if !h.rateLimiter.Allow(authorID) {
		log.Debug("Author rate limited")
		return h.success(EventCommentSubmit, h.msg(i18n.MsgAuthorRateLimited, map[string]interface{}{"ID": commentID}))
	}

	s, err := h.settings.Load(ctx)
	if err != nil {
		return h.reportError(EventCommentSubmit, err)
	}

	if s.EnableCommands {
		handled, message, err := h.handleCommands(ctx, event.Comment.Body, commentID, s)
		if handled {
			return h.finish(EventCommentSubmit, message, err, false)
		}
	}

	if s.EnableSummarizationForComments && len([]rune(event.Comment.Body)) >= s.SummarizationThreshold {
		log.Info("Attempting summary of long comment")
		err := h.summarize(ctx, commentID, s, h.platform.GetComment)
		return h.finish(EventCommentSubmit, h.msg(i18n.MsgSummaryPosted, map[string]interface{}{"ID": commentID}), err, false)
	}

	act, err := policy.ShouldAct(s.ChanceOf, h.rng)
	if err != nil {
		return h.reportError(EventCommentSubmit, err)
	}
	if !act {
		return h.success(EventCommentSubmit, h.msg(i18n.MsgChanceSkipped, map[string]interface{}{
			"ID":     commentID,
			"Chance": s.ChanceOf,
		}))
	}

	log.Info("Attempting AI generated reply because of a lucky die roll")
	comment, err := h.platform.GetComment(ctx, commentID)
	if err != nil {
		return h.reportError(EventCommentSubmit, err)
	}

	err = h.replies.Generate(ctx, reply.Request{
		TargetID:     commentID,
		Content:      comment,
		SystemPrompt: s.Prompt,
		Format:       reply.FormatNone,
		Settings:     s,
	})
	return h.finish(EventCommentSubmit, h.msg(i18n.MsgReplyPosted, map[string]interface{}{"ID": commentID}), err, false)
}

// PostSubmit summarizes long text posts when enabled
func (h *Handler) PostSubmit(ctx context.Context, event *PostEvent) models.ActionResult {
	h.metrics.RecordEventReceived(EventPostSubmit)

	postID := platform.WithPrefix(platform.PostPrefix, event.Post.ID)

	s, err := h.settings.Load(ctx)
	if err != nil {
		return h.reportError(EventPostSubmit, err)
	}

	skipped := h.msg(i18n.MsgSummarySkipped, map[string]interface{}{"ID": postID})
	if !s.EnableSummarizationForPosts {
		return h.success(EventPostSubmit, skipped)
	}

	post, err := h.platform.GetPost(ctx, postID)
	if err != nil {
		return h.reportError(EventPostSubmit, err)
	}
	if post.Body == nil || len([]rune(*post.Body)) < s.SummarizationThreshold {
		return h.success(EventPostSubmit, skipped)
	}

	err = h.replies.Generate(ctx, reply.Request{
		TargetID:     postID,
		Content:      post,
		SystemPrompt: reply.SummarizePrompt,
		Format:       reply.FormatSummary,
		Settings:     s,
	})
	return h.finish(EventPostSubmit, h.msg(i18n.MsgSummaryPosted, map[string]interface{}{"ID": postID}), err, false)
}

type fetchFunc func(ctx context.Context, id string) (*models.ContentItem, error)

// summarize replies to id with a quoted summary of its own text
func (h *Handler) summarize(ctx context.Context, id string, s *models.AppSettings, fetch fetchFunc) error {
	item, err := fetch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch %s for summary: %w", id, err)
	}

	return h.replies.Generate(ctx, reply.Request{
		TargetID:     id,
		Content:      item,
		SystemPrompt: reply.SummarizePrompt,
		Format:       reply.FormatSummary,
		Settings:     s,
	})
}
