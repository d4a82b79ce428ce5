package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hello-drektopia/redditbot-go/internal/i18n"
	"github.com/hello-drektopia/redditbot-go/internal/models"
)

// SecretHeader carries the shared webhook secret
const SecretHeader = "X-Webhook-Secret"

const maxBodyBytes = 1 << 20

// Router builds the webhook router
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.requireSecret)

	router.HandleFunc("/triggers/install", h.serveInstall).Methods(http.MethodPost)
	router.HandleFunc("/triggers/comment-submit", h.serveCommentSubmit).Methods(http.MethodPost)
	router.HandleFunc("/triggers/post-submit", h.servePostSubmit).Methods(http.MethodPost)
	router.HandleFunc("/scheduler/"+EventHourlyReset, h.serveHourlyTick).Methods(http.MethodPost)
	router.HandleFunc("/actions/{name}", h.serveAction).Methods(http.MethodPost)

	return router
}

// NewServer creates the webhook HTTP server
func (h *Handler) NewServer() *http.Server {
	return &http.Server{
		Addr:         h.config.Bot.ListenAddr,
		Handler:      h.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: h.config.Bot.RequestTimeout + 10*time.Second,
	}
}

func (h *Handler) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := h.config.Bot.WebhookSecret
		if secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(secret)) != 1 {
			h.logger.WithField("path", r.URL.Path).Warn("Rejected webhook with a bad secret")
			h.writeResult(w, http.StatusUnauthorized, models.ActionResult{Message: h.msg(i18n.MsgUnauthorized, nil)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.config.Bot.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.config.Bot.RequestTimeout)
}

// decode reads a JSON body. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.logger.WithError(err).WithField("path", r.URL.Path).Warn("Bad webhook payload")
		h.writeResult(w, http.StatusBadRequest, models.ActionResult{
			Message: h.msg(i18n.MsgBadRequest, map[string]interface{}{"Message": err.Error()}),
		})
		return false
	}
	return true
}

func (h *Handler) writeResult(w http.ResponseWriter, status int, result models.ActionResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.WithError(err).Error("Failed to write webhook response")
	}
}

func (h *Handler) serveInstall(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()
	h.writeResult(w, http.StatusOK, h.Install(ctx))
}

func (h *Handler) serveHourlyTick(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()
	h.writeResult(w, http.StatusOK, h.HourlyTick(ctx))
}

func (h *Handler) serveCommentSubmit(w http.ResponseWriter, r *http.Request) {
	var event CommentEvent
	if !h.decode(w, r, &event) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	h.writeResult(w, http.StatusOK, h.CommentSubmit(ctx, &event))
}

func (h *Handler) servePostSubmit(w http.ResponseWriter, r *http.Request) {
	var event PostEvent
	if !h.decode(w, r, &event) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	h.writeResult(w, http.StatusOK, h.PostSubmit(ctx, &event))
}

func (h *Handler) serveAction(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !HasAction(name) {
		h.writeResult(w, http.StatusNotFound, h.Action(r.Context(), name, &ActionRequest{}))
		return
	}

	var req ActionRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	h.writeResult(w, http.StatusOK, h.Action(ctx, name, &req))
}
