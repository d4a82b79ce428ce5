package handlers

import (
	"context"

	"github.com/hello-drektopia/redditbot-go/internal/commands"
	"github.com/hello-drektopia/redditbot-go/internal/i18n"
	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/hello-drektopia/redditbot-go/internal/services/platform"
	"github.com/hello-drektopia/redditbot-go/internal/services/reply"
)

// handleCommands dispatches a "!command" comment. handled is false when the body holds no command.
func (h *Handler) handleCommands(ctx context.Context, body, commentID string, s *models.AppSettings) (handled bool, message string, err error) {
	parsed := commands.Parse(body)
	ids := map[string]interface{}{"ID": commentID}

	switch parsed.Kind {
	case commands.None:
		return false, "", nil

	case commands.Invalid:
		h.logger.WithField("command", parsed.Name).Debug("Ignoring invalid command")
		return true, h.msg(i18n.MsgInvalidCommand, nil), nil

	case commands.User:
		h.metrics.RecordCommandExecuted(string(parsed.Name))
		format := reply.FormatNone
		if parsed.CodeFormat {
			format = reply.FormatCodeBlock
		}
		err := h.replyToPrevious(ctx, commentID, parsed.Prompt, format, s)
		return true, h.msg(i18n.MsgCommandReplyPosted, ids), err
	}

	h.metrics.RecordCommandExecuted(string(parsed.Name))
	switch parsed.Name {
	case commands.Help:
		if err := h.platform.SubmitComment(ctx, commentID, commands.HelpText()); err != nil {
			return true, "", err
		}
		return true, h.msg(i18n.MsgHelpPosted, ids), nil

	case commands.Translate:
		return h.translate(ctx, body, commentID, s)
	}

	return true, h.msg(i18n.MsgInvalidCommand, nil), nil
}

// translate replies with the previous comment or post translated into the requested language
func (h *Handler) translate(ctx context.Context, body, commentID string, s *models.AppSettings) (bool, string, error) {
	language, outcome := commands.ParseTranslate(body)
	switch outcome {
	case commands.TranslateNoAction:
		return true, h.msg(i18n.MsgTranslateNoAction, nil), nil
	case commands.TranslateTooLong:
		return true, h.msg(i18n.MsgTranslateTooLong, nil), nil
	}

	flagged, err := h.moderator.CheckModeration(ctx, s.Key, &language)
	if err != nil {
		return true, "", err
	}
	if flagged {
		return true, h.msg(i18n.MsgTranslateFlagged, nil), nil
	}

	err = h.replyToPrevious(ctx, commentID, commands.TranslatePrompt(language), reply.FormatNone, s)
	return true, h.msg(i18n.MsgTranslatePosted, map[string]interface{}{"ID": commentID}), err
}

// replyToPrevious has the model read the comment's parent and posts the answer under the comment itself
func (h *Handler) replyToPrevious(ctx context.Context, commentID, prompt string, format reply.Format, s *models.AppSettings) error {
	previous, err := platform.PreviousThing(ctx, h.platform, commentID)
	if err != nil {
		return err
	}

	return h.replies.Generate(ctx, reply.Request{
		TargetID:     commentID,
		Content:      previous,
		SystemPrompt: prompt,
		Format:       format,
		Settings:     s,
	})
}
