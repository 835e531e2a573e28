package handlers

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/fullstack-poc/usersview/internal/models"
	"github.com/fullstack-poc/usersview/internal/view"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionCookie is the name of the cookie holding the session ID
const SessionCookie = "sid"

//go:embed templates/*.html
var templateFS embed.FS

// PageHandler serves the users page. Every browser session gets its own view.
type PageHandler struct {
	BaseHandler
	sessions *Sessions
	tmpl     *template.Template
	upgrader websocket.Upgrader
}

// NewPageHandler creates a new page handler
func NewPageHandler(sessions *Sessions, logger *zap.Logger) (*PageHandler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"date": formatDate,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		BaseHandler: BaseHandler{logger: logger},
		sessions:    sessions,
		tmpl:        tmpl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}, nil
}

// RegisterRoutes registers all page routes
func (h *PageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Page)
	r.Get("/state", h.State)
	r.Get("/fragments/live", h.LiveFragments)
	r.Get("/ws", h.Stream)
	r.Post("/users", h.CreateUser)
	r.Post("/reload", h.Reload)
	r.Post("/test-connection", h.TestConnection)
	r.Post("/notice/dismiss", h.DismissNotice)
}

// Page handles GET /
func (h *PageHandler) Page(w http.ResponseWriter, r *http.Request) {
	v, ok := h.sessionView(r)
	if !ok {
		v = h.startSession(w)
	}

	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "page", v.Snapshot()); err != nil {
		h.logger.Error("failed to render page", zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// State handles GET /state
func (h *PageHandler) State(w http.ResponseWriter, r *http.Request) {
	v, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, v.Snapshot())
}

// LiveFragments handles GET /fragments/live, returning the parts of the page that change
func (h *PageHandler) LiveFragments(w http.ResponseWriter, r *http.Request) {
	v, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	snap := v.Snapshot()

	fragments := make(map[string]string, 3)
	for _, name := range []string{"health", "notice", "users"} {
		var buf bytes.Buffer
		if err := h.tmpl.ExecuteTemplate(&buf, name, snap); err != nil {
			h.logger.Error("failed to render fragment", zap.String("fragment", name), zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "failed to render page")
			return
		}
		fragments[name] = buf.String()
	}

	h.respondJSON(w, http.StatusOK, fragments)
}

// CreateUser handles POST /users with the create form
func (h *PageHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	v, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid form")
		return
	}

	draft := models.DraftUser{
		Name:  r.PostForm.Get("name"),
		Email: r.PostForm.Get("email"),
		Role:  models.Role(r.PostForm.Get("role")),
	}
	if err := v.UpdateDraft(draft); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "session closed")
		return
	}

	user, err := v.Submit(r.Context())
	if !wantsJSON(r) {
		if err != nil {
			h.logger.Debug("create user rejected", zap.Error(err))
		}
		h.redirectHome(w, r)
		return
	}

	if err != nil {
		h.respondError(w, createStatus(err), err.Error())
		return
	}
	h.respondJSON(w, http.StatusCreated, user)
}

// Reload handles POST /reload, retrying the users load
func (h *PageHandler) Reload(w http.ResponseWriter, r *http.Request) {
	v, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if err := v.Reload(r.Context()); err != nil {
		h.logger.Debug("users reload failed", zap.Error(err))
	}
	h.respondAction(w, r, v)
}

// TestConnection handles POST /test-connection
func (h *PageHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	v, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if err := v.TestConnection(r.Context()); err != nil {
		h.logger.Debug("connection test failed", zap.Error(err))
	}
	h.respondAction(w, r, v)
}

// DismissNotice handles POST /notice/dismiss
func (h *PageHandler) DismissNotice(w http.ResponseWriter, r *http.Request) {
	v, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	_ = v.DismissNotice()
	h.respondAction(w, r, v)
}

// sessionView returns the view of the request's session
func (h *PageHandler) sessionView(r *http.Request) (*view.View, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, false
	}
	return h.sessions.Get(cookie.Value)
}

// startSession starts a new session and sets its cookie
func (h *PageHandler) startSession(w http.ResponseWriter) *view.View {
	id, v := h.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return v
}

// requireSession returns the view of the request's session.
// Without a live session, form posts are sent back to the page and everything else gets 401.
func (h *PageHandler) requireSession(w http.ResponseWriter, r *http.Request) (*view.View, bool) {
	if v, ok := h.sessionView(r); ok {
		return v, true
	}
	if r.Method == http.MethodPost && !wantsJSON(r) {
		h.redirectHome(w, r)
		return nil, false
	}
	h.respondError(w, http.StatusUnauthorized, "session not found")
	return nil, false
}

// respondAction answers a page action with the new state or a redirect back to the page
func (h *PageHandler) respondAction(w http.ResponseWriter, r *http.Request, v *view.View) {
	if wantsJSON(r) {
		h.respondJSON(w, http.StatusOK, v.Snapshot())
		return
	}
	h.redirectHome(w, r)
}

func (h *PageHandler) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func createStatus(err error) int {
	var (
		validationErr *view.ValidationError
		createErr     *view.CreateError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, view.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.As(err, &createErr):
		if createErr.IsClientError() {
			return createErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, view.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func formatDate(createdAt *string) string {
	if createdAt == nil {
		return ""
	}
	t, err := time.Parse(time.RFC3339, *createdAt)
	if err != nil {
		return *createdAt
	}
	return t.Local().Format("2006-01-02")
}
