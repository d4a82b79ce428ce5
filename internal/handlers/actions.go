package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/hello-drektopia/redditbot-go/internal/commands"
	"github.com/hello-drektopia/redditbot-go/internal/i18n"
	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/hello-drektopia/redditbot-go/internal/services/platform"
	"github.com/hello-drektopia/redditbot-go/internal/services/reply"
)

// Action names accepted on /actions/{name}
const (
	ActionBlockPost      = "block-post"
	ActionAIReply        = "ai-reply"
	ActionUsageReport    = "usage-report"
	ActionResetCounters  = "reset-counters"
	ActionUpdateSettings = "update-settings"
	ActionCommandList    = "command-list"
)

var (
	errNoPostID    = errors.New("unable to get post id")
	errNoCommentID = errors.New("unable to get comment id")
	errNoUsername  = errors.New("unable to get the requesting user")
	errNoSettings  = errors.New("no settings given")
)

// ActionRequest is the payload of a moderator or member action
type ActionRequest struct {
	Username  string                 `json:"username"`
	PostID    string                 `json:"post_id"`
	CommentID string                 `json:"comment_id"`
	Settings  map[string]interface{} `json:"settings,omitempty"`
}

type actionFunc func(h *Handler, ctx context.Context, req *ActionRequest) (string, error)

var actions = map[string]actionFunc{
	ActionBlockPost:      (*Handler).blockPost,
	ActionAIReply:        (*Handler).aiReply,
	ActionUsageReport:    (*Handler).usageReport,
	ActionResetCounters:  (*Handler).resetCounters,
	ActionUpdateSettings: (*Handler).updateSettings,
	ActionCommandList:    (*Handler).commandList,
}

// HasAction reports whether name is a known action
func HasAction(name string) bool {
	_, ok := actions[name]
	return ok
}

// Action runs the named action
func (h *Handler) Action(ctx context.Context, name string, req *ActionRequest) models.ActionResult {
	event := "action_" + name
	fn, ok := actions[name]
	if !ok {
		event = "action_unknown"
		h.metrics.RecordEventReceived(event)
		h.metrics.RecordEventProcessed(event, "error")
		return models.ActionResult{Success: false, Message: h.msg(i18n.MsgUnknownAction, map[string]interface{}{"Name": name})}
	}

	h.metrics.RecordEventReceived(event)
	message, err := fn(h, ctx, req)
	return h.finish(event, message, err, true)
}

func (h *Handler) blockPost(ctx context.Context, req *ActionRequest) (string, error) {
	if req.PostID == "" {
		return "", errNoPostID
	}

	if err := h.checker.BlockPost(ctx, platform.WithPrefix(platform.PostPrefix, req.PostID)); err != nil {
		return "", err
	}
	return h.msg(i18n.MsgPostBlocked, nil), nil
}

func (h *Handler) aiReply(ctx context.Context, req *ActionRequest) (string, error) {
	if req.CommentID == "" {
		return "", errNoCommentID
	}

	s, err := h.settings.Load(ctx)
	if err != nil {
		return "", err
	}

	commentID := platform.WithPrefix(platform.CommentPrefix, req.CommentID)
	comment, err := h.platform.GetComment(ctx, commentID)
	if err != nil {
		return "", err
	}

	err = h.replies.Generate(ctx, reply.Request{
		TargetID:     commentID,
		Content:      comment,
		SystemPrompt: s.Prompt,
		Format:       reply.FormatNone,
		Settings:     s,
	})
	if err != nil {
		return "", err
	}
	return h.msg(i18n.MsgAIReplyPosted, nil), nil
}

func (h *Handler) usageReport(ctx context.Context, req *ActionRequest) (string, error) {
	if req.Username == "" {
		return "", errNoUsername
	}

	s, err := h.settings.Load(ctx)
	if err != nil {
		return "", err
	}

	c, err := h.counters.Query(ctx)
	if err != nil {
		return "", err
	}

	body := h.msg(i18n.MsgUsageReportBody, map[string]interface{}{
		"Hourly":   c.Hourly,
		"MaxHour":  s.MaxPerHour,
		"Daily":    c.Daily,
		"MaxDay":   s.MaxPerDay,
		"Lifetime": c.Lifetime,
	})
	if err := h.platform.SendPrivateMessage(ctx, req.Username, h.msg(i18n.MsgUsageReportSubject, nil), body); err != nil {
		return "", err
	}
	return h.msg(i18n.MsgUsageReportSent, nil), nil
}

func (h *Handler) resetCounters(ctx context.Context, req *ActionRequest) (string, error) {
	if err := h.counters.ResetAll(ctx); err != nil {
		return "", err
	}
	return h.msg(i18n.MsgCountersReset, nil), nil
}

func (h *Handler) updateSettings(ctx context.Context, req *ActionRequest) (string, error) {
	if len(req.Settings) == 0 {
		return "", errNoSettings
	}

	if _, err := h.settings.Update(ctx, req.Settings); err != nil {
		return "", fmt.Errorf("settings not saved: %w", err)
	}
	return h.msg(i18n.MsgSettingsUpdated, nil), nil
}

func (h *Handler) commandList(ctx context.Context, req *ActionRequest) (string, error) {
	if req.Username == "" {
		return "", errNoUsername
	}

	subject := h.msg(i18n.MsgCommandListSubject, nil)
	if err := h.platform.SendPrivateMessage(ctx, req.Username, subject, commands.HelpText()); err != nil {
		return "", err
	}
	return h.msg(i18n.MsgCommandListSent, nil), nil
}
