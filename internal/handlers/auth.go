package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// Basic email validation regex
var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(strings.ToLower(email))
}

type AuthHandler struct {
	*Base
	Store *store.Store
}

func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.currentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "login.html", nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	user, err := h.Store.GetUserByEmail(r.Context(), email)
	if err != nil {
		slog.Error("Failed to look up user", "error", err)
		h.redirect(w, r, "/login", "error", "Internal Server Error")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		h.render(w, r, http.StatusUnauthorized, "login.html", map[string]any{
			"Error": "Invalid email or password.",
			"Email": email,
		})
		return
	}

	fallback := "/"
	if user.IsAdmin() {
		fallback = "/admin"
	}
	target := h.afterLogin(r, fallback)
	if err := h.logIn(w, r, user); err != nil {
		h.serverError(w, "Failed to save session", err)
		return
	}

	slog.Info("Login successful", "user_id", user.ID, "role", user.Role)
	h.redirect(w, r, target, "success", "Welcome back, "+user.Name+"!")
}

func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if h.currentUser(r) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "register.html", map[string]any{"Values": map[string]string{}})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	values := map[string]string{
		"name":  strings.TrimSpace(r.FormValue("name")),
		"email": strings.TrimSpace(r.FormValue("email")),
		"phone": strings.TrimSpace(r.FormValue("phone")),
	}
	password := r.FormValue("password")

	errs := make(map[string]string)
	if values["name"] == "" {
		errs["name"] = "Your name is required."
	}
	if values["email"] == "" {
		errs["email"] = "Email address is required."
	} else if !isValidEmail(values["email"]) {
		errs["email"] = "Please enter a valid email address."
	}
	if values["phone"] != "" && !checkout.ValidPhone(values["phone"]) {
		errs["phone"] = "Please enter a valid 10-digit phone number."
	}
	if len(password) < minPasswordLength {
		errs["password"] = "Password must be at least 6 characters."
	} else if password != r.FormValue("confirm_password") {
		errs["confirm_password"] = "Passwords do not match."
	}
	if _, bad := errs["email"]; !bad {
		exists, err := h.Store.EmailExists(r.Context(), values["email"])
		if err != nil {
			h.serverError(w, "Failed to check email", err)
			return
		}
		if exists {
			errs["email"] = "An account with this email already exists."
		}
	}
	if len(errs) > 0 {
		h.render(w, r, http.StatusUnprocessableEntity, "register.html", map[string]any{
			"Errors": errs,
			"Values": values,
		})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		h.serverError(w, "Failed to hash password", err)
		return
	}
	user := &models.User{
		Name:     values["name"],
		Email:    values["email"],
		Phone:    values["phone"],
		Password: string(hash),
		Role:     models.RoleCustomer,
	}
	user.ID, err = h.Store.CreateUser(r.Context(), user)
	if errors.Is(err, store.ErrEmailTaken) {
		h.render(w, r, http.StatusUnprocessableEntity, "register.html", map[string]any{
			"Errors": map[string]string{"email": "An account with this email already exists."},
			"Values": values,
		})
		return
	}
	if err != nil {
		h.serverError(w, "Failed to create user", err)
		return
	}

	target := h.afterLogin(r, "/")
	if err := h.logIn(w, r, user); err != nil {
		h.serverError(w, "Failed to save session", err)
		return
	}
	slog.Info("Customer registered", "user_id", user.ID)
	h.redirect(w, r, target, "success", "Welcome to Sekuwa Kerner, "+user.Name+"!")
}

// Logout forgets the user and destroys the session's cart.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	if sid, _ := session.Values[keySessionID].(string); sid != "" {
		if err := h.States.Delete(r.Context(), sid); err != nil {
			slog.Error("Failed to delete session state", "error", err)
		}
	}
	for _, k := range []string{keySessionID, keyUserID, keyUserName, keyUserRole, keyAfterLoginURL} {
		delete(session.Values, k)
	}
	h.redirect(w, r, "/", "success", "Logged out successfully!")
}
