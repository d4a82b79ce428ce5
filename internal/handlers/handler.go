package handlers

import (
	"errors"
	"math/rand"

	"github.com/hello-drektopia/redditbot-go/internal/config"
	"github.com/hello-drektopia/redditbot-go/internal/i18n"
	"github.com/hello-drektopia/redditbot-go/internal/middleware"
	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/hello-drektopia/redditbot-go/internal/services/ai"
	"github.com/hello-drektopia/redditbot-go/internal/services/platform"
	"github.com/hello-drektopia/redditbot-go/internal/services/policy"
	"github.com/hello-drektopia/redditbot-go/internal/services/reply"
	"github.com/hello-drektopia/redditbot-go/internal/services/settings"
	"github.com/hello-drektopia/redditbot-go/internal/services/usage"
	"github.com/sirupsen/logrus"
)

// Handler handles platform triggers, the scheduled tick and moderator/member actions
type Handler struct {
	config      *config.Config
	settings    *settings.Provider
	counters    *usage.Store
	checker     *policy.Checker
	replies     *reply.Orchestrator
	moderator   ai.Service
	platform    platform.Client
	scheduler   usage.JobScheduler
	rateLimiter middleware.RateLimiter
	localizer   *i18n.Localizer
	metrics     *middleware.Metrics
	logger      *logrus.Logger
	rng         func() float64
}

// NewHandler creates a new event handler
func NewHandler(
	cfg *config.Config,
	settingsProvider *settings.Provider,
	counters *usage.Store,
	checker *policy.Checker,
	replies *reply.Orchestrator,
	moderator ai.Service,
	platformClient platform.Client,
	scheduler usage.JobScheduler,
	rateLimiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		config:      cfg,
		settings:    settingsProvider,
		counters:    counters,
		checker:     checker,
		replies:     replies,
		moderator:   moderator,
		platform:    platformClient,
		scheduler:   scheduler,
		rateLimiter: rateLimiter,
		localizer:   localizer,
		metrics:     metrics,
		logger:      logger,
		rng:         rand.Float64,
	}
}

// WithRand replaces the random source of the reply chance gate
func (h *Handler) WithRand(rng func() float64) *Handler {
	h.rng = rng
	return h
}

func (h *Handler) msg(id string, data map[string]interface{}) string {
	if data == nil {
		data = map[string]interface{}{}
	}
	if _, ok := data["App"]; !ok {
		data["App"] = h.config.Bot.AppName
	}
	return h.localizer.Default(id, data)
}

func (h *Handler) success(event, message string) models.ActionResult {
	h.metrics.RecordEventProcessed(event, "success")
	h.logger.WithField("event", event).Info(message)
	return models.ActionResult{Success: true, Message: message}
}

// finish converts the outcome of a handler into its ActionResult.
// Restrictions fail interactive actions but are silent for automatic triggers.
func (h *Handler) finish(event, message string, err error, interactive bool) models.ActionResult {
	if err == nil {
		return h.success(event, message)
	}

	var r *models.RestrictionError
	if errors.As(err, &r) {
		h.metrics.RecordEventProcessed(event, "restricted")
		h.logger.WithFields(logrus.Fields{
			"event":  event,
			"reason": r.Reason,
		}).Info(r.Message)
		return models.ActionResult{Success: !interactive, Message: r.Message}
	}

	return h.reportError(event, err)
}

// reportError logs err and turns it into a failed ActionResult
func (h *Handler) reportError(event string, err error) models.ActionResult {
	message := h.msg(i18n.MsgError, map[string]interface{}{"Message": err.Error()})
	h.metrics.RecordEventProcessed(event, "error")
	h.logger.WithError(err).WithField("event", event).Error("Handler failed")
	return models.ActionResult{Success: false, Message: message}
}
