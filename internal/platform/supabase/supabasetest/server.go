// Package supabasetest provides an in-memory stand-in for the hosted backend:
// the GoTrue endpoints the app uses, the organizations and
// organization_members tables under row-level security, and the three
// stored procedures. It is meant for tests only.
package supabasetest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"crm/internal/platform/config"
)

const AnonKey = "test-anon-key"

type user struct {
	ID        string
	Email     string
	Password  string
	Confirmed bool
}

type accessToken struct {
	UserID    string
	ExpiresAt time.Time
}

type organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type member struct {
	OrgID  string
	UserID string
	Role   string
}

type invite struct {
	Token      string
	OrgID      string
	Email      string
	Role       string
	ExpiresAt  time.Time
	AcceptedBy string
}

type Server struct {
	*httptest.Server

	// JWTSecret makes access tokens HS256 JWTs signed with this secret.
	// Empty means opaque random tokens.
	JWTSecret string
	// AutoConfirm makes sign-up return a session immediately.
	AutoConfirm bool
	AccessTTL   time.Duration

	mu             sync.Mutex
	users          map[string]*user // by email
	usersByID      map[string]*user
	access         map[string]accessToken
	refresh        map[string]string
	confirmations  map[string]string
	orgs           []*organization
	members        []member
	invites        map[string]*invite
	calls          map[string]int
	lastRedirectTo string
}

func NewServer() *Server {
	s := &Server{
		AccessTTL:     time.Hour,
		users:         make(map[string]*user),
		usersByID:     make(map[string]*user),
		access:        make(map[string]accessToken),
		refresh:       make(map[string]string),
		confirmations: make(map[string]string),
		invites:       make(map[string]*invite),
		calls:         make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/v1/health", s.health)
	mux.HandleFunc("POST /auth/v1/token", s.token)
	mux.HandleFunc("POST /auth/v1/signup", s.signup)
	mux.HandleFunc("POST /auth/v1/verify", s.verify)
	mux.HandleFunc("GET /auth/v1/user", s.getUser)
	mux.HandleFunc("POST /auth/v1/logout", s.logout)
	mux.HandleFunc("GET /rest/v1/organizations", s.selectOrganizations)
	mux.HandleFunc("GET /rest/v1/organization_members", s.selectMembers)
	mux.HandleFunc("POST /rest/v1/rpc/create_org_with_admin", s.createOrgWithAdmin)
	mux.HandleFunc("POST /rest/v1/rpc/create_org_invite", s.createOrgInvite)
	mux.HandleFunc("POST /rest/v1/rpc/accept_org_invite", s.acceptOrgInvite)

	s.Server = httptest.NewServer(s.countCalls(s.requireAPIKey(mux)))
	return s
}

// Config returns client settings pointing at the fake.
func (s *Server) Config() config.SupabaseConfig {
	return config.SupabaseConfig{
		URL:       s.URL,
		AnonKey:   AnonKey,
		JWTSecret: s.JWTSecret,
		Timeout:   5 * time.Second,
	}
}

// Calls counts requests for a path below /auth/v1 or /rest/v1, e.g.
// "rpc/create_org_with_admin" or "token".
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *Server) LastRedirectTo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRedirectTo
}

// AddUser registers a confirmed user and returns its id.
func (s *Server) AddUser(email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &user{ID: uuid.NewString(), Email: strings.ToLower(email), Password: password, Confirmed: true}
	s.users[u.Email] = u
	s.usersByID[u.ID] = u
	return u.ID
}

// IssueSession returns an access and refresh token pair for userID. A
// negative ttl issues an already expired access token.
func (s *Server) IssueSession(userID string, ttl time.Duration) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.newSessionLocked(s.usersByID[userID], ttl)
	return session["access_token"].(string), session["refresh_token"].(string)
}

// AddOrganization creates an org with the given admin.
func (s *Server) AddOrganization(name, adminUserID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createOrgLocked(name, adminUserID)
}

func (s *Server) AddMember(orgID, userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append(s.members, member{OrgID: orgID, UserID: userID, Role: role})
}

// AddInvite stores a pending invite and returns its token.
func (s *Server) AddInvite(orgID, email, role string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := &invite{Token: randomHex(24), OrgID: orgID, Email: strings.ToLower(email), Role: role, ExpiresAt: time.Now().Add(7 * 24 * time.Hour)}
	s.invites[inv.Token] = inv
	return inv.Token
}

// RoleOf returns the role userID holds in orgID, or "".
func (s *Server) RoleOf(orgID, userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roleLocked(orgID, userID)
}

// ConfirmationToken returns the pending email confirmation hash for email.
func (s *Server) ConfirmationToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[strings.ToLower(email)]
	if u == nil {
		return ""
	}
	for hash, id := range s.confirmations {
		if id == u.ID {
			return hash
		}
	}
	return ""
}

func (s *Server) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/auth/v1/"), "/rest/v1/")
		s.mu.Lock()
		s.calls[name]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != AnonKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": "GoTrue"})
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Query().Get("grant_type") {
	case "password":
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		u := s.users[strings.ToLower(body.Email)]
		if u == nil || u.Password != body.Password {
			gotrueError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
			return
		}
		if !u.Confirmed {
			gotrueError(w, http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
			return
		}
		writeJSON(w, http.StatusOK, s.newSessionLocked(u, s.AccessTTL))
	case "refresh_token":
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		userID, ok := s.refresh[body.RefreshToken]
		if !ok {
			gotrueError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		delete(s.refresh, body.RefreshToken)
		writeJSON(w, http.StatusOK, s.newSessionLocked(s.usersByID[userID], s.AccessTTL))
	default:
		gotrueError(w, http.StatusBadRequest, "validation_failed", "unsupported grant_type")
	}
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRedirectTo = r.URL.Query().Get("redirect_to")
	email := strings.ToLower(body.Email)
	if _, exists := s.users[email]; exists {
		gotrueError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}

	u := &user{ID: uuid.NewString(), Email: email, Password: body.Password, Confirmed: s.AutoConfirm}
	s.users[email] = u
	s.usersByID[u.ID] = u

	if s.AutoConfirm {
		writeJSON(w, http.StatusOK, s.newSessionLocked(u, s.AccessTTL))
		return
	}
	s.confirmations[randomHex(16)] = u.ID
	writeJSON(w, http.StatusOK, userJSON(u))
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type      string `json:"type"`
		TokenHash string `json:"token_hash"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.confirmations[body.TokenHash]
	if !ok || (body.Type != "signup" && body.Type != "email") {
		gotrueError(w, http.StatusForbidden, "otp_expired", "Email link is invalid or has expired")
		return
	}
	delete(s.confirmations, body.TokenHash)
	u := s.usersByID[userID]
	u.Confirmed = true
	writeJSON(w, http.StatusOK, s.newSessionLocked(u, s.AccessTTL))
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.callerLocked(r)
	if u == nil {
		gotrueError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT: unable to parse or verify signature, token is expired")
		return
	}
	writeJSON(w, http.StatusOK, userJSON(u))
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.callerLocked(r)
	if u == nil {
		gotrueError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return
	}
	for token, entry := range s.access {
		if entry.UserID == u.ID {
			delete(s.access, token)
		}
	}
	for token, userID := range s.refresh {
		if userID == u.ID {
			delete(s.refresh, token)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectOrganizations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	caller := s.callerLocked(r)
	visible := []*organization{}
	for _, org := range s.orgs {
		if caller != nil && s.roleLocked(org.ID, caller.ID) != "" {
			visible = append(visible, org)
		}
	}
	if r.URL.Query().Get("order") == "created_at.desc" {
		sort.SliceStable(visible, func(i, j int) bool { return visible[i].CreatedAt.After(visible[j].CreatedAt) })
	}

	rows := make([]map[string]interface{}, 0, len(visible))
	for _, org := range visible {
		rows = append(rows, project(r, map[string]interface{}{
			"id": org.ID, "name": org.Name, "created_at": org.CreatedAt.Format(time.RFC3339Nano),
		}))
	}
	writeRows(w, r, rows)
}

func (s *Server) selectMembers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := r.URL.Query()
	for _, column := range []string{"org_id", "user_id"} {
		if v := q.Get(column); v != "" {
			if _, err := uuid.Parse(strings.TrimPrefix(v, "eq.")); err != nil {
				postgrestError(w, http.StatusBadRequest, "22P02", `invalid input syntax for type uuid: "`+strings.TrimPrefix(v, "eq.")+`"`)
				return
			}
		}
	}

	caller := s.callerLocked(r)
	rows := []map[string]interface{}{}
	for _, m := range s.members {
		// RLS: members see the membership rows of their own organizations.
		if caller == nil || s.roleLocked(m.OrgID, caller.ID) == "" {
			continue
		}
		if v := q.Get("org_id"); v != "" && v != "eq."+m.OrgID {
			continue
		}
		if v := q.Get("user_id"); v != "" && v != "eq."+m.UserID {
			continue
		}
		rows = append(rows, project(r, map[string]interface{}{
			"org_id": m.OrgID, "user_id": m.UserID, "role": m.Role,
		}))
	}
	writeRows(w, r, rows)
}

func (s *Server) createOrgWithAdmin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrgName string `json:"org_name"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	caller := s.callerLocked(r)
	if caller == nil {
		postgrestError(w, http.StatusUnauthorized, "42501", "not authenticated")
		return
	}
	if strings.TrimSpace(body.OrgName) == "" {
		postgrestError(w, http.StatusBadRequest, "P0001", "organization name is required")
		return
	}
	writeJSON(w, http.StatusOK, s.createOrgLocked(strings.TrimSpace(body.OrgName), caller.ID))
}

func (s *Server) createOrgInvite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrgID string `json:"p_org_id"`
		Email string `json:"p_email"`
		Role  string `json:"p_role"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	caller := s.callerLocked(r)
	if caller == nil {
		postgrestError(w, http.StatusUnauthorized, "42501", "not authenticated")
		return
	}
	if s.roleLocked(body.OrgID, caller.ID) != "admin" {
		postgrestError(w, http.StatusForbidden, "42501", "only organization admins can invite members")
		return
	}
	if body.Role != "admin" && body.Role != "member" {
		postgrestError(w, http.StatusBadRequest, "P0001", "invalid role")
		return
	}

	inv := &invite{Token: randomHex(24), OrgID: body.OrgID, Email: strings.ToLower(body.Email), Role: body.Role, ExpiresAt: time.Now().Add(7 * 24 * time.Hour)}
	s.invites[inv.Token] = inv
	writeJSON(w, http.StatusOK, inv.Token)
}

func (s *Server) acceptOrgInvite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"p_token"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	caller := s.callerLocked(r)
	if caller == nil {
		postgrestError(w, http.StatusUnauthorized, "42501", "not authenticated")
		return
	}
	inv := s.invites[body.Token]
	if inv == nil || inv.AcceptedBy != "" || time.Now().After(inv.ExpiresAt) {
		postgrestError(w, http.StatusBadRequest, "P0001", "invite is invalid or has expired")
		return
	}
	if inv.Email != caller.Email {
		postgrestError(w, http.StatusBadRequest, "P0001", "invite was issued for a different email")
		return
	}

	inv.AcceptedBy = caller.ID
	if s.roleLocked(inv.OrgID, caller.ID) == "" {
		s.members = append(s.members, member{OrgID: inv.OrgID, UserID: caller.ID, Role: inv.Role})
	}
	writeJSON(w, http.StatusOK, inv.OrgID)
}

func (s *Server) createOrgLocked(name, adminUserID string) string {
	org := &organization{ID: uuid.NewString(), Name: name, CreatedAt: time.Now()}
	// Keep creation times strictly increasing so ordering is deterministic.
	if n := len(s.orgs); n > 0 && !org.CreatedAt.After(s.orgs[n-1].CreatedAt) {
		org.CreatedAt = s.orgs[n-1].CreatedAt.Add(time.Microsecond)
	}
	s.orgs = append(s.orgs, org)
	s.members = append(s.members, member{OrgID: org.ID, UserID: adminUserID, Role: "admin"})
	return org.ID
}

func (s *Server) roleLocked(orgID, userID string) string {
	for _, m := range s.members {
		if m.OrgID == orgID && m.UserID == userID {
			return m.Role
		}
	}
	return ""
}

func (s *Server) callerLocked(r *http.Request) *user {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	entry, ok := s.access[token]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return nil
	}
	return s.usersByID[entry.UserID]
}

func (s *Server) newSessionLocked(u *user, ttl time.Duration) map[string]interface{} {
	expiresAt := time.Now().Add(ttl)
	sessionID := uuid.NewString()

	access := randomHex(32)
	if s.JWTSecret != "" {
		claims := jwt.MapClaims{
			"sub":           u.ID,
			"email":         u.Email,
			"aud":           "authenticated",
			"role":          "authenticated",
			"session_id":    sessionID,
			"app_metadata":  map[string]interface{}{"provider": "email"},
			"user_metadata": map[string]interface{}{},
			"iat":           time.Now().Unix(),
			"exp":           expiresAt.Unix(),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.JWTSecret))
		if err == nil {
			access = signed
		}
	}
	refresh := randomHex(16)

	s.access[access] = accessToken{UserID: u.ID, ExpiresAt: expiresAt}
	s.refresh[refresh] = u.ID

	return map[string]interface{}{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    int(ttl.Seconds()),
		"expires_at":    expiresAt.Unix(),
		"refresh_token": refresh,
		"user":          userJSON(u),
	}
}

func userJSON(u *user) map[string]interface{} {
	return map[string]interface{}{
		"id":    u.ID,
		"email": u.Email,
		"aud":   "authenticated",
		"role":  "authenticated",

		"app_metadata":  map[string]interface{}{"provider": "email"},
		"user_metadata": map[string]interface{}{},
	}
}

// project keeps only the columns named in the select parameter.
func project(r *http.Request, row map[string]interface{}) map[string]interface{} {
	sel := r.URL.Query().Get("select")
	if sel == "" || sel == "*" {
		return row
	}
	out := make(map[string]interface{})
	for _, column := range strings.Split(sel, ",") {
		if v, ok := row[strings.TrimSpace(column)]; ok {
			out[strings.TrimSpace(column)] = v
		}
	}
	return out
}

func writeRows(w http.ResponseWriter, r *http.Request, rows []map[string]interface{}) {
	if r.Header.Get("Accept") == "application/vnd.pgrst.object+json" {
		if len(rows) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotAcceptable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code":    "PGRST116",
				"details": "The result contains " + strconv.Itoa(len(rows)) + " rows",
				"hint":    nil,
				"message": "JSON object requested, multiple (or no) rows returned",
			})
			return
		}
		writeJSON(w, http.StatusOK, rows[0])
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func gotrueError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]interface{}{"code": status, "error_code": code, "msg": msg})
}

func postgrestError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{"code": code, "details": nil, "hint": nil, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
