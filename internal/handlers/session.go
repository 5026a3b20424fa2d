package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/sessions"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/toast"
)

const (
	sessionName = "terra-eye"
	tokenKey    = "token"
	identityKey = "identity"
)

// NewSessionStore creates the cookie store holding operator sessions
func NewSessionStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

func (s *Server) session(r *http.Request) *sessions.Session {
	if s.Sessions == nil {
		return sessions.NewSession(nil, sessionName)
	}
	sess, err := s.Sessions.Get(r, sessionName)
	if err != nil {
		// undecodable cookie, start over
		log.Debugf("session decode failed: %v", err)
	}
	return sess
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *sessions.Session) {
	if s.Sessions == nil {
		return
	}
	if err := sess.Save(r, w); err != nil {
		log.Printf("❌ Error saving session: %v", err)
	}
}

// token returns the operator bearer token, empty when signed out
func (s *Server) token(r *http.Request) string {
	tok, _ := s.session(r).Values[tokenKey].(string)
	return tok
}

func (s *Server) operator(r *http.Request) string {
	id, _ := s.session(r).Values[identityKey].(string)
	return id
}

// flash queues a toast for the next rendered page
func (s *Server) flash(w http.ResponseWriter, r *http.Request, t *toast.Toast) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	sess := s.session(r)
	sess.AddFlash(string(data))
	s.saveSession(w, r, sess)
}

// takeFlashes pops the queued toasts
func (s *Server) takeFlashes(w http.ResponseWriter, r *http.Request) []*toast.Toast {
	sess := s.session(r)
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	s.saveSession(w, r, sess)

	out := make([]*toast.Toast, 0, len(raw))
	for _, f := range raw {
		str, ok := f.(string)
		if !ok {
			continue
		}
		var t toast.Toast
		if err := json.Unmarshal([]byte(str), &t); err == nil {
			out = append(out, &t)
		}
	}
	return out
}

// HandleLogin signs the operator in against the backend and keeps the token
// in the session
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	identity := strings.TrimSpace(r.PostForm.Get("identity"))
	password := r.PostForm.Get("password")

	if identity == "" || password == "" || s.Auth == nil {
		s.flash(w, r, toast.Error("Email and password are required"))
		http.Redirect(w, r, backTo(r), http.StatusSeeOther)
		return
	}

	tok, err := s.Auth.AuthWithPassword(r.Context(), identity, password)
	if err != nil {
		log.WithField("identity", identity).Warnf("⚠️ sign in failed: %v", err)
		s.flash(w, r, toast.Error("Sign in failed"))
		http.Redirect(w, r, backTo(r), http.StatusSeeOther)
		return
	}

	sess := s.session(r)
	sess.Values[tokenKey] = tok
	sess.Values[identityKey] = identity
	sess.AddFlash(mustToastJSON(toast.Success("Signed in as " + identity)))
	s.saveSession(w, r, sess)
	log.Printf("🔑 Operator signed in: %s", identity)
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

// HandleLogout forgets the operator token
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	delete(sess.Values, tokenKey)
	delete(sess.Values, identityKey)
	sess.AddFlash(mustToastJSON(toast.Success("Signed out")))
	s.saveSession(w, r, sess)
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

func mustToastJSON(t *toast.Toast) string {
	data, _ := json.Marshal(t)
	return string(data)
}

// backTo returns the same-origin page the form was posted from
func backTo(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return "/"
	}
	return ref.Path
}
