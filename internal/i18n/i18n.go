package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/hello-drektopia/redditbot-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer from the embedded message files
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"en"}
	}

	// Load language files
	for _, lang := range languages {
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := locales.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, path); err != nil {
			return nil, fmt.Errorf("failed to parse language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	defaultLanguage := cfg.DefaultLanguage
	if _, ok := localizers[defaultLanguage]; !ok {
		defaultLanguage = languages[0]
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: defaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Default returns a message in the default language
func (l *Localizer) Default(messageID string, data map[string]interface{}) string {
	return l.Get(l.defaultLanguage, messageID, data)
}

// Message IDs
const (
	MsgError              = "error"
	MsgUnknownAction      = "unknown_action"
	MsgUnauthorized       = "unauthorized"
	MsgBadRequest         = "bad_request"
	MsgInstalled          = "installed"
	MsgHourlyReset        = "hourly_reset"
	MsgSelfAuthored       = "self_authored"
	MsgAuthorRateLimited  = "author_rate_limited"
	MsgInvalidCommand     = "invalid_command"
	MsgCommandReplyPosted = "command_reply_posted"
	MsgHelpPosted         = "help_posted"
	MsgTranslatePosted    = "translate_posted"
	MsgTranslateNoAction  = "translate_no_action"
	MsgTranslateTooLong   = "translate_too_long"
	MsgTranslateFlagged   = "translate_flagged"
	MsgSummaryPosted      = "summary_posted"
	MsgSummarySkipped     = "summary_skipped"
	MsgChanceSkipped      = "chance_skipped"
	MsgReplyPosted        = "reply_posted"
	MsgRestricted         = "restricted"
	MsgPostBlocked        = "post_blocked"
	MsgAIReplyPosted      = "ai_reply_posted"
	MsgUsageReportSubject = "usage_report_subject"
	MsgUsageReportBody    = "usage_report_body"
	MsgUsageReportSent    = "usage_report_sent"
	MsgCountersReset      = "counters_reset"
	MsgSettingsUpdated    = "settings_updated"
	MsgCommandListSubject = "command_list_subject"
	MsgCommandListSent    = "command_list_sent"
)
