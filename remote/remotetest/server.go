// Package remotetest runs an in-process fake of the hosted auth and data
// service for tests and local demos. Tokens are real HS256 JWTs, passwords
// are bcrypt hashes and the clock is controllable, so expiry paths can be
// exercised without sleeping.
package remotetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	authclient "github.com/goliatone/go-authclient"
)

const (
	// APIKey is the key the server expects in the apikey header.
	APIKey = "test-anon-key"
	// ReferralFunction is the edge function that registers referred users.
	ReferralFunction = "register-with-referral"
)

// RPCHandler answers an RPC function call for an authenticated user.
type RPCHandler func(userID string, params map[string]any) (any, error)

type account struct {
	user         authclient.User
	passwordHash []byte
	confirmed    bool
}

// Server is the fake service.
type Server struct {
	*httptest.Server

	secret []byte

	mu            sync.Mutex
	now           time.Time
	ttl           time.Duration
	autoConfirm   bool
	failRefresh   bool
	refreshDelay  time.Duration
	accounts      map[string]*account
	refreshTokens map[string]string
	profiles      map[string]*authclient.Profile
	referrals     map[string]string
	rpcs          map[string]RPCHandler
	calls         map[string]int
	recovered     []string
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the access token lifetime, one hour by default.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithAutoConfirm makes sign ups return a session right away.
func WithAutoConfirm(v bool) Option {
	return func(s *Server) {
		s.autoConfirm = v
	}
}

// WithNow sets the initial server time.
func WithNow(t time.Time) Option {
	return func(s *Server) {
		s.now = t
	}
}

// New starts a server. Call Close when done.
func New(opts ...Option) *Server {
	s := &Server{
		secret:        []byte("remotetest-jwt-secret"),
		now:           time.Now().Truncate(time.Second),
		ttl:           time.Hour,
		autoConfirm:   true,
		accounts:      map[string]*account{},
		refreshTokens: map[string]string{},
		profiles:      map[string]*authclient.Profile{},
		referrals:     map[string]string{},
		rpcs:          map[string]RPCHandler{},
		calls:         map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", s.handleToken)
	mux.HandleFunc("POST /auth/v1/signup", s.handleSignUp)
	mux.HandleFunc("POST /auth/v1/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/v1/user", s.handleGetUser)
	mux.HandleFunc("PUT /auth/v1/user", s.handleUpdateUser)
	mux.HandleFunc("POST /auth/v1/recover", s.handleRecover)
	mux.HandleFunc("POST /rest/v1/rpc/{fn}", s.handleRPC)
	mux.HandleFunc("GET /rest/v1/profiles", s.handleProfiles)
	mux.HandleFunc("POST /functions/v1/{name}", s.handleFunction)

	s.Server = httptest.NewServer(s.requireAPIKey(mux))
	return s
}

// Secret returns the JWT signing secret.
func (s *Server) Secret() []byte { return s.secret }

// Now returns the server clock.
func (s *Server) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the server clock forward.
func (s *Server) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// SetFailRefresh makes every refresh token grant fail as revoked.
func (s *Server) SetFailRefresh(v bool) {
	s.mu.Lock()
	s.failRefresh = v
	s.mu.Unlock()
}

// SetRefreshDelay slows down refresh token grants, to widen races in tests.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	s.refreshDelay = d
	s.mu.Unlock()
}

// Calls returns how many times an endpoint was hit. Keys are "password",
// "refresh", "signup", "logout", "user", "update_user", "recover",
// "profile", "rpc:<fn>" and "function:<name>".
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// Recovered lists the emails a password reset was requested for.
func (s *Server) Recovered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recovered...)
}

// HandleRPC registers an RPC function.
func (s *Server) HandleRPC(fn string, h RPCHandler) {
	s.mu.Lock()
	s.rpcs[fn] = h
	s.mu.Unlock()
}

// AddUser creates a confirmed account and its profile.
func (s *Server) AddUser(email, password string, role authclient.Role) authclient.User {
	return s.addUser(email, password, role, true, nil)
}

// AddUnconfirmedUser creates an account that cannot sign in yet.
func (s *Server) AddUnconfirmedUser(email, password string) authclient.User {
	return s.addUser(email, password, authclient.RoleUser, false, nil)
}

// AddReferralCode makes code resolve to the referrer's user id.
func (s *Server) AddReferralCode(code, referrerID string) {
	s.mu.Lock()
	s.referrals[code] = referrerID
	s.mu.Unlock()
}

// Profile returns the stored profile of a user.
func (s *Server) Profile(userID string) (*authclient.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, false
	}
	out := *p
	return &out, true
}

// MintAccessToken signs an access token for an existing user, expiring ttl
// after the server clock.
func (s *Server) MintAccessToken(userID string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accountByID(userID)
	if acc == nil {
		return "", fmt.Errorf("remotetest: unknown user %s", userID)
	}
	return s.mint(acc.user, ttl)
}

// RefreshTokenCount returns how many refresh tokens are live.
func (s *Server) RefreshTokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refreshTokens)
}

func (s *Server) addUser(email, password string, role authclient.Role, confirmed bool, meta map[string]any) authclient.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	id := uuid.NewString()
	if hid, err := hashid.NewUUID(email); err == nil {
		id = hid.String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now
	user := authclient.User{
		ID:           id,
		Email:        email,
		Role:         "authenticated",
		UserMetadata: meta,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}
	if confirmed {
		user.EmailConfirmedAt = &now
	}
	s.accounts[strings.ToLower(email)] = &account{user: user, passwordHash: hash, confirmed: confirmed}

	profile := &authclient.Profile{
		ID:           id,
		Email:        email,
		Role:         role,
		ReferralCode: strings.ToUpper(id[:8]),
	}
	if meta != nil {
		profile.Username, _ = meta["username"].(string)
		profile.FullName, _ = meta["full_name"].(string)
		profile.Phone, _ = meta["phone"].(string)
	}
	s.profiles[id] = profile
	return user
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"message": "Invalid API key",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("grant_type") {
	case "password":
		s.passwordGrant(w, r)
	case "refresh_token":
		s.refreshGrant(w, r)
	default:
		authError(w, http.StatusBadRequest, "unsupported_grant_type", "Unsupported grant type")
	}
}

func (s *Server) passwordGrant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	s.mu.Lock()
	s.calls["password"]++
	acc := s.accounts[strings.ToLower(body.Email)]
	s.mu.Unlock()

	if acc == nil || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(body.Password)) != nil {
		authError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
		return
	}
	if !acc.confirmed {
		authError(w, http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
		return
	}

	s.mu.Lock()
	resp, err := s.issue(acc.user)
	s.mu.Unlock()
	if err != nil {
		authError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) refreshGrant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	s.mu.Lock()
	s.calls["refresh"]++
	delay := s.refreshDelay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.refreshTokens[body.RefreshToken]
	if s.failRefresh || !ok {
		authError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
		return
	}
	delete(s.refreshTokens, body.RefreshToken)

	acc := s.accountByID(userID)
	if acc == nil {
		authError(w, http.StatusBadRequest, "user_not_found", "User not found")
		return
	}

	resp, err := s.issue(acc.user)
	if err != nil {
		authError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
		Data     map[string]any `json:"data"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	s.mu.Lock()
	s.calls["signup"]++
	_, exists := s.accounts[strings.ToLower(body.Email)]
	autoConfirm := s.autoConfirm
	s.mu.Unlock()

	if exists {
		authError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	if len(body.Password) < 6 {
		authError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters")
		return
	}

	user := s.addUser(body.Email, body.Password, authclient.RoleUser, autoConfirm, body.Data)
	if !autoConfirm {
		writeJSON(w, http.StatusOK, user)
		return
	}

	s.mu.Lock()
	resp, err := s.issue(user)
	s.mu.Unlock()
	if err != nil {
		authError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.count("logout")
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	for token, owner := range s.refreshTokens {
		if owner == userID {
			delete(s.refreshTokens, token)
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.count("user")
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	acc := s.accountByID(userID)
	s.mu.Unlock()
	if acc == nil {
		authError(w, http.StatusNotFound, "user_not_found", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	s.count("update_user")
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var attrs authclient.UserAttributes
	if !readJSON(w, r, &attrs) {
		return
	}

	var hash []byte
	if attrs.Password != "" {
		if len(attrs.Password) < 6 {
			authError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters")
			return
		}
		var err error
		if hash, err = bcrypt.GenerateFromPassword([]byte(attrs.Password), bcrypt.MinCost); err != nil {
			authError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.accountByID(userID)
	if acc == nil {
		authError(w, http.StatusNotFound, "user_not_found", "User not found")
		return
	}
	if hash != nil {
		acc.passwordHash = hash
	}
	if attrs.Phone != "" {
		acc.user.Phone = attrs.Phone
	}
	if len(attrs.Data) > 0 {
		if acc.user.UserMetadata == nil {
			acc.user.UserMetadata = map[string]any{}
		}
		for k, v := range attrs.Data {
			acc.user.UserMetadata[k] = v
		}
		if p := s.profiles[userID]; p != nil {
			if v, ok := attrs.Data["username"].(string); ok {
				p.Username = v
			}
			if v, ok := attrs.Data["full_name"].(string); ok {
				p.FullName = v
			}
			if v, ok := attrs.Data["phone"].(string); ok {
				p.Phone = v
			}
		}
	}
	now := s.now
	acc.user.UpdatedAt = &now
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	s.mu.Lock()
	s.calls["recover"]++
	s.recovered = append(s.recovered, body.Email)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	fn := r.PathValue("fn")
	s.count("rpc:" + fn)

	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	h := s.rpcs[fn]
	s.mu.Unlock()
	if h == nil {
		dataError(w, http.StatusNotFound, "PGRST202", "Could not find the function public."+fn)
		return
	}

	params := map[string]any{}
	if !readJSON(w, r, &params) {
		return
	}

	out, err := h(userID, params)
	if err != nil {
		dataError(w, http.StatusBadRequest, "P0001", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	s.count("profile")
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
	profile, ok := s.Profile(id)
	if !ok {
		dataError(w, http.StatusNotAcceptable, "PGRST116", "JSON object requested, multiple (or no) rows returned")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleFunction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.count("function:" + name)

	if name != ReferralFunction {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Function not found"})
		return
	}

	var body struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		Username     string `json:"username"`
		FullName     string `json:"full_name"`
		Phone        string `json:"phone"`
		ReferralCode string `json:"referral_code"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	s.mu.Lock()
	referrerID, validCode := s.referrals[body.ReferralCode]
	_, exists := s.accounts[strings.ToLower(body.Email)]
	autoConfirm := s.autoConfirm
	s.mu.Unlock()

	switch {
	case !validCode:
		writeJSON(w, http.StatusOK, map[string]any{"error": "Invalid referral code"})
		return
	case exists:
		writeJSON(w, http.StatusOK, map[string]any{"error": "User already registered"})
		return
	}

	user := s.addUser(body.Email, body.Password, authclient.RoleUser, autoConfirm, map[string]any{
		"username":    body.Username,
		"full_name":   body.FullName,
		"phone":       body.Phone,
		"referred_by": referrerID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// authenticate checks the bearer token. Expired or invalid tokens get the
// data API's JWT error.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		dataError(w, http.StatusUnauthorized, "PGRST302", "Anonymous access is disabled")
		return "", false
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.Now),
	)
	if err != nil {
		dataError(w, http.StatusUnauthorized, "PGRST301", "JWT expired")
		return "", false
	}
	return claims.Subject, true
}

func (s *Server) issue(user authclient.User) (map[string]any, error) {
	token, err := s.mint(user, s.ttl)
	if err != nil {
		return nil, err
	}
	refresh := uuid.NewString()
	s.refreshTokens[refresh] = user.ID

	return map[string]any{
		"access_token":  token,
		"token_type":    "bearer",
		"expires_in":    int(s.ttl.Seconds()),
		"expires_at":    s.now.Add(s.ttl).Unix(),
		"refresh_token": refresh,
		"user":          user,
	}, nil
}

func (s *Server) mint(user authclient.User, ttl time.Duration) (string, error) {
	claims := authclient.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(s.now),
			ExpiresAt: jwt.NewNumericDate(s.now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Email:     user.Email,
		Role:      user.Role,
		SessionID: uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) accountByID(id string) *account {
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc
		}
	}
	return nil
}

func (s *Server) count(key string) {
	s.mu.Lock()
	s.calls[key]++
	s.mu.Unlock()
}

func readJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		authError(w, http.StatusBadRequest, "bad_json", err.Error())
		return false
	}
	if len(data) == 0 {
		return true
	}
	if err := json.Unmarshal(data, out); err != nil {
		authError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func authError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"code":       status,
		"error_code": code,
		"msg":        msg,
	})
}

func dataError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": msg,
		"details": nil,
		"hint":    nil,
	})
}
