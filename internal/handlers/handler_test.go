package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hello-drektopia/redditbot-go/internal/config"
	"github.com/hello-drektopia/redditbot-go/internal/i18n"
	"github.com/hello-drektopia/redditbot-go/internal/middleware"
	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/hello-drektopia/redditbot-go/internal/scheduler"
	"github.com/hello-drektopia/redditbot-go/internal/services/ai"
	"github.com/hello-drektopia/redditbot-go/internal/services/policy"
	"github.com/hello-drektopia/redditbot-go/internal/services/reply"
	"github.com/hello-drektopia/redditbot-go/internal/services/settings"
	"github.com/hello-drektopia/redditbot-go/internal/services/storage"
	"github.com/hello-drektopia/redditbot-go/internal/services/usage"
	"github.com/hello-drektopia/redditbot-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botID = "t2_bot"

type message struct {
	to, subject, text string
}

type fakePlatform struct {
	mu       sync.Mutex
	things   map[string]*models.ContentItem
	comments map[string]string
	messages []message
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{things: map[string]*models.ContentItem{}, comments: map[string]string{}}
}

func (f *fakePlatform) add(item *models.ContentItem) {
	f.things[item.ID] = item
}

func (f *fakePlatform) get(id string) (*models.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.things[id]
	if !ok {
		return nil, errors.New("thing " + id + " not found")
	}
	return item, nil
}

func (f *fakePlatform) GetComment(ctx context.Context, id string) (*models.ContentItem, error) {
	return f.get(id)
}

func (f *fakePlatform) GetPost(ctx context.Context, id string) (*models.ContentItem, error) {
	return f.get(id)
}

func (f *fakePlatform) SubmitComment(ctx context.Context, parentID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[parentID] = text
	return nil
}

func (f *fakePlatform) SendPrivateMessage(ctx context.Context, to, subject, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message{to, subject, text})
	return nil
}

func (f *fakePlatform) AppUser(ctx context.Context) (*models.User, error) {
	return &models.User{ID: botID, Username: "hello-drektopia"}, nil
}

type fakeAI struct {
	mu      sync.Mutex
	content string
	flagged map[string]bool
	prompts []string
	reads   []string
}

func (f *fakeAI) Complete(ctx context.Context, req ai.CompletionRequest) (*models.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.SystemPrompt)
	f.reads = append(f.reads, req.UserMessage)
	return &models.CompletionResult{Kind: models.ResultContent, Content: f.content}, nil
}

func (f *fakeAI) CheckModeration(ctx context.Context, apiKey string, text *string) (bool, error) {
	if text == nil {
		return false, nil
	}
	return f.flagged[*text], nil
}

type env struct {
	h        *Handler
	platform *fakePlatform
	ai       *fakeAI
	kv       *storage.Manager
	sched    *scheduler.Scheduler
}

func defaultSettings() models.AppSettings {
	return models.AppSettings{
		Acceptance:             true,
		Model:                  "gpt-3.5-turbo",
		Prompt:                 "You are a friendly moderator.",
		Key:                    "sk-test",
		Temperature:            0.8,
		MaxPerHour:             3,
		MaxPerDay:              9,
		MaxCharacters:          10000,
		SummarizationThreshold: 50,
		EnableCommands:         true,
		ChanceOf:               100,
	}
}

func newEnv(t *testing.T, s models.AppSettings) *env {
	t.Helper()

	cfg := &config.Config{
		Bot:  config.BotConfig{AppName: "Hello-drektopia", RequestTimeout: 5 * time.Second},
		I18n: config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en"}},
	}
	log := logger.NewNop()
	metrics := middleware.NewMetrics()

	kv := storage.NewManagerWith(storage.NewMemoryStorage(0), log, metrics)
	plat := newFakePlatform()
	fake := &fakeAI{content: "an answer", flagged: map[string]bool{}}

	settingsProvider := settings.NewProvider(kv, s, log)
	counters := usage.NewStore(kv, log)
	checker := policy.NewChecker(kv, counters, fake, cfg.Bot.AppName, log)
	replies := reply.NewOrchestrator(checker, fake, plat, counters, metrics, log)
	sched := scheduler.New(time.Second, log)
	limiter := middleware.NewRateLimiter(cfg, log, metrics)
	t.Cleanup(limiter.Stop)

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	require.NoError(t, err)

	h := NewHandler(cfg, settingsProvider, counters, checker, replies, fake, plat, sched, limiter, localizer, metrics, log).
		WithRand(func() float64 { return 0.5 })

	return &env{h: h, platform: plat, ai: fake, kv: kv, sched: sched}
}

func strptr(s string) *string { return &s }

func commentEvent(id, author, body string) *CommentEvent {
	e := &CommentEvent{}
	e.Comment.ID = id
	e.Comment.Body = body
	e.Author.ID = author
	return e
}

func (e *env) lifetime(t *testing.T) int {
	n, err := e.kv.GetInt(context.Background(), usage.LifeKey)
	require.NoError(t, err)
	return n
}

func TestCommentSubmitRepliesOnLuckyRoll(t *testing.T) {
	e := newEnv(t, defaultSettings())
	e.platform.add(models.NewComment("t1_c1", "t3_p1", "t3_p1", strptr("what's up?")))

	res := e.h.CommentSubmit(context.Background(), commentEvent("c1", "t2_alice", "what's up?"))

	assert.True(t, res.Success)
	assert.Equal(t, "Posted an AI generated reply to comment: t1_c1.", res.Message)
	assert.Equal(t, "an answer", e.platform.comments["t1_c1"])
	assert.Equal(t, []string{"You are a friendly moderator."}, e.ai.prompts)
	assert.Equal(t, 1, e.lifetime(t))
}

func TestCommentSubmitIgnoresOwnComments(t *testing.T) {
	e := newEnv(t, defaultSettings())

	for _, author := range []string{botID, strings.TrimPrefix(botID, "t2_")} {
		res := e.h.CommentSubmit(context.Background(), commentEvent("t1_c1", author, "hi"))

		assert.True(t, res.Success, author)
		assert.Equal(t, "Hello-drektopia created comment t1_c1; not going to respond.", res.Message, author)
	}
	assert.Empty(t, e.platform.comments)
	assert.Empty(t, e.ai.prompts)
}

func TestCommentSubmitKillswitch(t *testing.T) {
	s := defaultSettings()
	s.Acceptance = false
	e := newEnv(t, s)

	res := e.h.CommentSubmit(context.Background(), commentEvent("t1_c1", "t2_alice", "hi"))

	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "Hello-drektopia Error: "))
	assert.Empty(t, e.platform.comments)
}

func TestCommentSubmitChanceGate(t *testing.T) {
	s := defaultSettings()
	s.ChanceOf = 0
	e := newEnv(t, s)

	res := e.h.CommentSubmit(context.Background(), commentEvent("t1_c1", "t2_alice", "hi"))

	assert.True(t, res.Success)
	assert.Equal(t, "Ignoring comment: t1_c1 due to random chance of 0%.", res.Message)
	assert.Empty(t, e.platform.comments)
}

func TestCommentSubmitRestrictionIsSilent(t *testing.T) {
	e := newEnv(t, defaultSettings())
	locked := models.NewComment("t1_c1", "t3_p1", "t3_p1", strptr("hi"))
	locked.Locked = true
	e.platform.add(locked)

	res := e.h.CommentSubmit(context.Background(), commentEvent("t1_c1", "t2_alice", "hi"))

	assert.True(t, res.Success)
	assert.Equal(t, "This is locked, and should not be replied to.", res.Message)
	assert.Empty(t, e.platform.comments)
	assert.Equal(t, 0, e.lifetime(t))
}

func TestUserCommandReadsParent(t *testing.T) {
	e := newEnv(t, defaultSettings())
	e.platform.add(models.NewComment("t1_parent", "t3_p1", "t3_p1", strptr("The mitochondria is the powerhouse of the cell")))
	e.platform.add(models.NewComment("t1_cmd", "t3_p1", "t1_parent", strptr("!haiku")))
	e.ai.content = "line one\nline two"

	res := e.h.CommentSubmit(context.Background(), commentEvent("t1_cmd", "t2_alice", "!haiku"))

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "    line one\n    line two", e.platform.comments["t1_cmd"])
	require.Len(t, e.ai.reads, 1)
	assert.Contains(t, e.ai.reads[0], "powerhouse of the cell")
	assert.True(t, strings.HasPrefix(e.ai.prompts[0], "You will be prompted with a comment from reddit. "))
}

func TestInvalidCommandIsSwallowed(t *testing.T) {
	e := newEnv(t, defaultSettings())

	res := e.h.CommentSubmit(context.Background(), commentEvent("t1_c1", "t2_alice", "!bogus stuff"))

	assert.True(t, res.Success)
	assert.Equal(t, "Invalid command.", res.Message)
	assert.Empty(t, e.platform.comments)
	assert.Empty(t, e.ai.prompts)
}

func TestHelpCommand(t *testing.T) {
	e := newEnv(t, defaultSettings())

	res := e.h.CommentSubmit(context.Background(), commentEvent("t1_c1", "t2_alice", "!HELP"))

	assert.True(t, res.Success)
	assert.Contains(t, e.platform.comments["t1_c1"], "* !help --- This message.")
	assert.Empty(t, e.ai.prompts)
}

func TestTranslateCommand(t *testing.T) {
	e := newEnv(t, defaultSettings())
	e.platform.add(models.NewPost("t3_p1", strptr("Hello world")))
	e.platform.add(models.NewComment("t1_c1", "t3_p1", "t3_p1", strptr("!translate Spanish")))

	res := e.h.CommentSubmit(context.Background(), commentEvent("t1_c1", "t2_alice", "!translate Spanish"))

	require.True(t, res.Success, res.Message)
	require.Len(t, e.ai.prompts, 1)
	assert.Equal(t, "You will be prompted with a comment from reddit. Translate the comment into Spanish. Only output the translation.", e.ai.prompts[0])
	assert.Contains(t, e.ai.reads[0], "Hello world")
	assert.Equal(t, "an answer", e.platform.comments["t1_c1"])
}

func TestTranslateRejections(t *testing.T) {
	cases := []struct {
		body     string
		expected string
	}{
		{"!translate", "Translate needs exactly one language. Usage: !translate [a language]."},
		{"!translate Spanish extra", "Translate needs exactly one language. Usage: !translate [a language]."},
		{"!translate " + strings.Repeat("x", 21), "That language name is too long to translate into."},
		{"!translate Naughty", "Not translating into that language."},
	}

	for _, tc := range cases {
		e := newEnv(t, defaultSettings())
		e.ai.flagged["Naughty"] = true

		res := e.h.CommentSubmit(context.Background(), commentEvent("t1_c1", "t2_alice", tc.body))
		assert.True(t, res.Success, tc.body)
		assert.Equal(t, tc.expected, res.Message, tc.body)
		assert.Empty(t, e.ai.prompts, tc.body)
	}
}

func TestCommandsDisabledFallsThrough(t *testing.T) {
	s := defaultSettings()
	s.EnableCommands = false
	e := newEnv(t, s)
	e.platform.add(models.NewComment("t1_c1", "t3_p1", "t3_p1", strptr("!help")))

	res := e.h.CommentSubmit(context.Background(), commentEvent("t1_c1", "t2_alice", "!help"))

	assert.True(t, res.Success)
	assert.Equal(t, []string{"You are a friendly moderator."}, e.ai.prompts)
}

func TestCommentSummarization(t *testing.T) {
	s := defaultSettings()
	s.EnableSummarizationForComments = true
	e := newEnv(t, s)
	long := strings.Repeat("word ", 20)
	e.platform.add(models.NewComment("t1_c1", "t3_p1", "t3_p1", &long))

	res := e.h.CommentSubmit(context.Background(), commentEvent("t1_c1", "t2_alice", long))

	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{reply.SummarizePrompt}, e.ai.prompts)
	assert.Equal(t, "Summary:\n> an answer", e.platform.comments["t1_c1"])
}

func TestPostSubmit(t *testing.T) {
	s := defaultSettings()
	e := newEnv(t, s)
	long := strings.Repeat("word ", 20)
	e.platform.add(models.NewPost("t3_p1", &long))

	event := &PostEvent{}
	event.Post.ID = "p1"

	res := e.h.PostSubmit(context.Background(), event)
	assert.True(t, res.Success)
	assert.Empty(t, e.platform.comments)

	s.EnableSummarizationForPosts = true
	e = newEnv(t, s)
	e.platform.add(models.NewPost("t3_p1", &long))

	res = e.h.PostSubmit(context.Background(), event)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Summary:\n> an answer", e.platform.comments["t3_p1"])
}

func TestBlockPostAction(t *testing.T) {
	e := newEnv(t, defaultSettings())
	ctx := context.Background()

	res := e.h.Action(ctx, ActionBlockPost, &ActionRequest{PostID: "p1"})
	assert.True(t, res.Success)
	assert.Equal(t, "Hello-drektopia will refuse to comment within this post.", res.Message)

	// an already-prefixed id is kept as is
	res = e.h.Action(ctx, ActionBlockPost, &ActionRequest{PostID: "t3_p2"})
	assert.True(t, res.Success)

	for _, id := range []string{"t3_p1", "t3_p2"} {
		blocked, err := e.h.checker.IsBlocked(ctx, id)
		require.NoError(t, err)
		assert.True(t, blocked, id)
	}

	// moderator-invoked replies surface the restriction
	e.platform.add(models.NewComment("t1_c1", "t3_p1", "t3_p1", strptr("hi")))
	res = e.h.Action(ctx, ActionAIReply, &ActionRequest{CommentID: "c1"})
	assert.False(t, res.Success)
	assert.Equal(t, "Moderators have restricted this post from receiving comments from Hello-drektopia.", res.Message)
}

func TestAIReplyAction(t *testing.T) {
	e := newEnv(t, defaultSettings())
	e.platform.add(models.NewComment("t1_c1", "t3_p1", "t3_p1", strptr("hi")))

	res := e.h.Action(context.Background(), ActionAIReply, &ActionRequest{CommentID: "c1"})

	assert.True(t, res.Success)
	assert.Equal(t, "Posted AI generated comment upon moderator request.", res.Message)
	assert.Equal(t, "an answer", e.platform.comments["t1_c1"])
}

func TestUsageReportAction(t *testing.T) {
	e := newEnv(t, defaultSettings())
	ctx := context.Background()
	require.NoError(t, e.h.counters.Increment(ctx))

	res := e.h.Action(ctx, ActionUsageReport, &ActionRequest{Username: "mod1"})

	require.True(t, res.Success, res.Message)
	require.Len(t, e.platform.messages, 1)
	m := e.platform.messages[0]
	assert.Equal(t, "mod1", m.to)
	assert.Equal(t, "Usage Stats", m.subject)
	assert.Contains(t, m.text, "* Uses this hour: 1 -- Max per hour: 3")
	assert.Contains(t, m.text, "* Lifetime uses: 1")
}

func TestResetCountersAction(t *testing.T) {
	e := newEnv(t, defaultSettings())
	ctx := context.Background()
	require.NoError(t, e.h.counters.Increment(ctx))

	res := e.h.Action(ctx, ActionResetCounters, &ActionRequest{})
	assert.True(t, res.Success)

	c, err := e.h.counters.Query(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.UsageCounters{Lifetime: 1}, c)
}

func TestUpdateSettingsAction(t *testing.T) {
	e := newEnv(t, defaultSettings())
	ctx := context.Background()

	res := e.h.Action(ctx, ActionUpdateSettings, &ActionRequest{Settings: map[string]interface{}{"chanceof": 0}})
	require.True(t, res.Success, res.Message)

	res = e.h.CommentSubmit(ctx, commentEvent("t1_c1", "t2_alice", "hi"))
	assert.Equal(t, "Ignoring comment: t1_c1 due to random chance of 0%.", res.Message)

	res = e.h.Action(ctx, ActionUpdateSettings, &ActionRequest{Settings: map[string]interface{}{"temperature": 5}})
	assert.False(t, res.Success)

	res = e.h.Action(ctx, ActionUpdateSettings, &ActionRequest{})
	assert.False(t, res.Success)
}

func TestCommandListAction(t *testing.T) {
	e := newEnv(t, defaultSettings())

	res := e.h.Action(context.Background(), ActionCommandList, &ActionRequest{Username: "alice"})

	assert.True(t, res.Success)
	assert.Equal(t, "Hello-drektopia: Command list has been sent via private message.", res.Message)
	require.Len(t, e.platform.messages, 1)
	assert.Equal(t, "Commands for Hello-drektopia", e.platform.messages[0].subject)
}

func TestUnknownAction(t *testing.T) {
	e := newEnv(t, defaultSettings())

	res := e.h.Action(context.Background(), "explode", &ActionRequest{})
	assert.False(t, res.Success)
}

func TestInstallAndTick(t *testing.T) {
	e := newEnv(t, defaultSettings())
	ctx := context.Background()

	res := e.h.Install(ctx)
	assert.True(t, res.Success)
	assert.True(t, e.sched.Has(usage.ResetJobName))

	require.NoError(t, e.h.counters.Increment(ctx))
	res = e.h.HourlyTick(ctx)
	assert.True(t, res.Success)

	c, err := e.h.counters.Query(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Hourly)
}

func TestRouter(t *testing.T) {
	e := newEnv(t, defaultSettings())
	e.h.config.Bot.WebhookSecret = "s3cret"
	router := e.h.Router()

	post := func(path, secret string, body interface{}) (*httptest.ResponseRecorder, models.ActionResult) {
		data, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
		if secret != "" {
			req.Header.Set(SecretHeader, secret)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var res models.ActionResult
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		return rec, res
	}

	rec, _ := post("/triggers/install", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, res := post("/triggers/install", "s3cret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.Success)

	rec, res = post("/actions/block-post", "s3cret", ActionRequest{PostID: "p9"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.Success)

	rec, _ = post("/actions/nope", "s3cret", ActionRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	e.platform.add(models.NewComment("t1_c1", "t3_p1", "t3_p1", strptr("hey")))
	rec, res = post("/triggers/comment-submit", "s3cret", map[string]interface{}{
		"comment": map[string]string{"id": "c1", "body": "hey"},
		"author":  map[string]string{"id": "t2_alice"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, "an answer", e.platform.comments["t1_c1"])
}

func TestRouterRejectsBadJSON(t *testing.T) {
	e := newEnv(t, defaultSettings())
	router := e.h.Router()

	req := httptest.NewRequest(http.MethodPost, "/triggers/comment-submit", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
