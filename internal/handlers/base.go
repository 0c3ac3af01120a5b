package handlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/cache"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
)

const (
	sessionName = "sekuwa-session"

	keySessionID     = "sid"
	keyUserID        = "user_id"
	keyUserName      = "user_name"
	keyUserRole      = "user_role"
	keyAfterLoginURL = "after_login"
)

// Base carries what every handler needs: the cookie session, the per-session
// workflow state and the templates.
type Base struct {
	Sessions  sessions.Store
	States    cache.StateCache
	Templates *TemplateCache
}

// CurrentUser is the logged in user as remembered by the session cookie.
type CurrentUser struct {
	ID      int64
	Name    string
	IsAdmin bool
}

// session never fails: a cookie that cannot be decoded (rotated keys) yields
// a fresh session.
func (b *Base) session(r *http.Request) *sessions.Session {
	session, err := b.Sessions.Get(r, sessionName)
	if err != nil {
		slog.Debug("Discarding undecodable session cookie", "error", err)
	}
	return session
}

func (b *Base) currentUser(r *http.Request) *CurrentUser {
	session := b.session(r)
	id, ok := session.Values[keyUserID].(int64)
	if !ok || id <= 0 {
		return nil
	}
	name, _ := session.Values[keyUserName].(string)
	role, _ := session.Values[keyUserRole].(string)
	return &CurrentUser{ID: id, Name: name, IsAdmin: models.Role(role) == models.RoleAdmin}
}

func (b *Base) logIn(w http.ResponseWriter, r *http.Request, u *models.User) error {
	session := b.session(r)
	session.Values[keyUserID] = u.ID
	session.Values[keyUserName] = u.Name
	session.Values[keyUserRole] = string(u.Role)
	return session.Save(r, w)
}

// afterLogin returns and forgets the page a login redirect interrupted.
func (b *Base) afterLogin(r *http.Request, fallback string) string {
	session := b.session(r)
	next, _ := session.Values[keyAfterLoginURL].(string)
	delete(session.Values, keyAfterLoginURL)
	if !isLocalPath(next) {
		return fallback
	}
	return next
}

// state loads this visitor's workflow state, allocating a session id on the
// first visit.
func (b *Base) state(w http.ResponseWriter, r *http.Request) (*checkout.State, error) {
	session := b.session(r)
	sid, _ := session.Values[keySessionID].(string)
	if sid == "" {
		sid = uuid.NewString()
		session.Values[keySessionID] = sid
		if err := session.Save(r, w); err != nil {
			return nil, err
		}
	}
	return cache.Load(r.Context(), b.States, sid)
}

func (b *Base) saveState(r *http.Request, st *checkout.State) error {
	return b.States.Set(r.Context(), st.SessionID, st)
}

func (b *Base) cartCount(r *http.Request) int {
	sid, _ := b.session(r).Values[keySessionID].(string)
	if sid == "" {
		return 0
	}
	st, err := b.States.Get(r.Context(), sid)
	if err != nil {
		return 0
	}
	return st.Cart.Count()
}

// redirect stores a flash message and sends the browser to target.
func (b *Base) redirect(w http.ResponseWriter, r *http.Request, target, kind, msg string) {
	session := b.session(r)
	if msg != "" {
		session.AddFlash(FlashMessage{Type: kind, Message: msg})
	}
	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// render executes page inside the layout. Flashes, the CSRF field, the
// current user and the cart badge are added to data.
func (b *Base) render(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]any) {
	tmpl := b.Templates.Get(page)
	if tmpl == nil {
		slog.Error("Template not found", "name", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = make(map[string]any)
	}

	session := b.session(r)
	data["Flashes"] = GetFlash(session)
	data["CsrfField"] = csrf.TemplateField(r)
	data["CurrentUser"] = b.currentUser(r)
	data["CartCount"] = b.cartCount(r)
	data["Path"] = r.URL.Path
	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("Failed to render template", "name", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (b *Base) serverError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// RequireLogin sends anonymous visitors to the login page and brings them
// back afterwards.
func (b *Base) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.currentUser(r) == nil {
			session := b.session(r)
			if r.Method == http.MethodGet {
				session.Values[keyAfterLoginURL] = r.URL.RequestURI()
			}
			b.redirect(w, r, "/login", "error", "Please log in to continue.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin lets only users with the admin role through.
func (b *Base) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := b.currentUser(r)
		if user == nil || !user.IsAdmin {
			slog.Warn("Admin access denied", "path", r.URL.Path, "user", user != nil)
			b.redirect(w, r, "/login", "error", "You must be logged in as an administrator to access this page.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

func isLocalPath(p string) bool {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Host == "" && u.Scheme == ""
}
