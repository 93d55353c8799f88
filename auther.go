package authclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

// Auther is the single authority over the client session. It wraps the
// remote auth calls, normalizes their outcome into Result values and is the
// only writer of its Store.
type Auther struct {
	remote       RemoteAuth
	cfg          Config
	store        *Store
	events       *EventBus
	storage      Storage
	inspector    *TokenInspector
	logger       Logger
	activitySink ActivitySink
	metrics      *Metrics
	now          func() time.Time

	refreshGroup singleflight.Group

	// persistMu keeps storage writes in the order the store committed them.
	persistMu sync.Mutex

	pendingMu sync.Mutex
	pending   int

	refresherMu sync.Mutex
	refresher   *AutoRefresher
	closeOnce   sync.Once
}

var _ SessionSource = (*Auther)(nil)

// Option configures an Auther.
type Option func(*Auther)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(a *Auther) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithStorage sets where sessions are persisted. Only used when
// Config.PersistSession is true.
func WithStorage(storage Storage) Option {
	return func(a *Auther) {
		a.storage = normalizeStorage(storage)
	}
}

// WithTokenInspector overrides how access tokens are decoded.
func WithTokenInspector(ti *TokenInspector) Option {
	return func(a *Auther) {
		if ti != nil {
			a.inspector = ti
		}
	}
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func WithActivitySink(sink ActivitySink) Option {
	return func(a *Auther) {
		a.activitySink = normalizeActivitySink(sink)
	}
}

// WithMetrics enables prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(a *Auther) {
		a.metrics = m
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(a *Auther) {
		if now != nil {
			a.now = now
		}
	}
}

// WithEventBus shares an existing bus instead of creating one.
func WithEventBus(bus *EventBus) Option {
	return func(a *Auther) {
		if bus != nil {
			a.events = bus
		}
	}
}

// NewAuther returns an Auther in the Loading state. Call Initialize to
// resolve the starting session.
func NewAuther(remote RemoteAuth, cfg Config, opts ...Option) *Auther {
	a := &Auther{
		remote:       remote,
		cfg:          cfg.WithDefaults(),
		events:       NewEventBus(),
		storage:      NewMemoryStorage(),
		inspector:    NewTokenInspector(),
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if !a.cfg.PersistSession {
		a.storage = noopStorage{}
	}

	a.store = newStore(AuthState{Status: StatusLoading, IsLoading: true}, a.logger)
	return a
}

// Config returns the effective configuration.
func (a *Auther) Config() Config { return a.cfg }

// Store returns the read only session store.
func (a *Auther) Store() *Store { return a.store }

// Events returns the event bus session changes are published on.
func (a *Auther) Events() *EventBus { return a.events }

// State returns the current snapshot.
func (a *Auther) State() AuthState { return a.store.Snapshot() }

// Subscribe is a shortcut for Store().Subscribe().
func (a *Auther) Subscribe() (<-chan AuthState, func()) { return a.store.Subscribe() }

// IsAuthenticated reports whether a session is present.
func (a *Auther) IsAuthenticated() bool { return a.store.Snapshot().IsAuthenticated() }

// CurrentSession returns a copy of the active session, or nil.
func (a *Auther) CurrentSession() *Session {
	return a.store.Snapshot().Session
}

// AccessToken returns the current access token, "" when signed out.
func (a *Auther) AccessToken() string {
	return a.store.Snapshot().AccessToken()
}

// InitOptions are inputs to Initialize.
type InitOptions struct {
	// URL is the landing URL, inspected for a session when
	// Config.DetectSessionInURL is enabled.
	URL string
}

// Initialize resolves the starting session: a session in the landing URL,
// then the persisted one. Persisted sessions close to expiry are refreshed.
func (a *Auther) Initialize(ctx context.Context, opts InitOptions) Result[*Session] {
	a.begin()
	var res Result[*Session]
	defer func() { endOp(a, res) }()

	if a.cfg.DetectSessionInURL && opts.URL != "" {
		detected, ok, err := ParseSessionFromURL(opts.URL, a.now())
		if err != nil {
			a.logger.Warn("Initialize session in URL error", "error", err)
			res = Fail[*Session](err)
			return res
		}
		if ok {
			res = a.establishFromURL(ctx, detected)
			return res
		}
	}

	stored, err := a.storage.Load(ctx, a.cfg.StorageKey)
	if err != nil {
		a.logger.Error("Initialize load session error", "error", err)
		res = a.fail(ctx, err, StatusErrored)
		return res
	}

	if stored == nil {
		res = Ok[*Session](nil, "")
		a.startAutoRefresh()
		return res
	}

	session := a.inspector.normalizeSession(stored, a.now())
	if session.ExpiresWithin(a.cfg.RefreshMargin, a.now()) {
		refreshed, err := safeCall(func() (*Session, error) {
			return a.remote.RefreshSession(ctx, session.RefreshToken)
		})
		a.metrics.observeRefresh("initialize", err)
		if err != nil {
			a.logger.Warn("Initialize refresh stored session error", "error", err)
			if IsAuthError(err) {
				_ = a.storage.Delete(ctx, a.cfg.StorageKey)
				res = a.fail(ctx, err, StatusAnonymous)
				return res
			}
			res = a.fail(ctx, err, StatusErrored)
			return res
		}
		if refreshed == nil {
			res = a.fail(ctx, ErrRefreshFailed, StatusErrored)
			return res
		}
		if refreshed.User == nil {
			refreshed.User = session.User
		}
		session = a.inspector.normalizeSession(refreshed, a.now())
	} else {
		user, err := safeCall(func() (*User, error) {
			return a.remote.GetUser(ctx, session.AccessToken)
		})
		switch {
		case IsAuthError(err):
			a.logger.Warn("Initialize stored session rejected", "error", err)
			_ = a.storage.Delete(ctx, a.cfg.StorageKey)
			res = a.fail(ctx, err, StatusAnonymous)
			return res
		case err != nil:
			// offline start keeps the stored session until a call proves it bad
			a.logger.Warn("Initialize validate stored session error", "error", err)
		case user != nil:
			session.User = user
		}
	}

	if err := a.HandleEvent(ctx, Event{Type: EventSignedIn, Session: session}); err != nil {
		res = a.fail(ctx, err, StatusErrored)
		return res
	}

	a.recordActivity(ctx, ActivityEventSessionRestored, session.User, nil)
	a.startAutoRefresh()
	res = Ok(session.Clone(), "")
	return res
}

func (a *Auther) establishFromURL(ctx context.Context, detected URLSession) Result[*Session] {
	session := a.inspector.normalizeSession(detected.Session, a.now())

	user, err := safeCall(func() (*User, error) {
		return a.remote.GetUser(ctx, session.AccessToken)
	})
	if err != nil {
		a.logger.Warn("Initialize URL session user lookup error", "error", err)
		return a.fail(ctx, err, StatusAnonymous)
	}
	if user != nil {
		session.User = user
	}

	evtType := EventSignedIn
	if detected.IsRecovery() {
		evtType = EventPasswordRecovery
	}
	if err := a.HandleEvent(ctx, Event{Type: evtType, Session: session}); err != nil {
		return a.fail(ctx, err, StatusErrored)
	}

	a.recordActivity(ctx, ActivityEventSessionDetectedInURL, session.User, map[string]any{
		"type": detected.Type,
	})
	a.startAutoRefresh()
	return Ok(session.Clone(), "")
}

// Login signs in with email and password.
func (a *Auther) Login(ctx context.Context, email, password string) Result[*Session] {
	a.begin()
	var res Result[*Session]
	defer func() { endOp(a, res) }()

	creds := Credentials{Email: strings.TrimSpace(email), Password: password}
	if err := creds.Validate(); err != nil {
		res = Fail[*Session](validationError(err))
		return res
	}

	session, err := safeCall(func() (*Session, error) {
		return a.remote.SignInWithPassword(ctx, creds)
	})
	if err == nil && session == nil {
		err = ErrNoSession
	}
	if err != nil {
		a.logger.Error("Login remote error", "error", err)
		a.recordActivity(ctx, ActivityEventLoginFailure, nil, map[string]any{
			"email": creds.Email,
			"error": err.Error(),
		})
		res = Fail[*Session](err)
		return res
	}

	session = a.inspector.normalizeSession(session, a.now())
	if err := a.HandleEvent(ctx, Event{Type: EventSignedIn, Session: session}); err != nil {
		res = Fail[*Session](err)
		return res
	}

	a.recordActivity(ctx, ActivityEventLoginSuccess, session.User, nil)
	a.startAutoRefresh()
	res = Ok(session.Clone(), MessageLoginSuccess)
	return res
}

// Register creates an account. When the remote returns a session right
// away the user is signed in, otherwise the result asks for confirmation.
func (a *Auther) Register(ctx context.Context, req SignUpRequest) Result[*SignUpResult] {
	a.begin()
	var res Result[*SignUpResult]
	defer func() { endOp(a, res) }()

	req, err := a.prepareSignUp(req)
	if err != nil {
		res = Fail[*SignUpResult](err)
		return res
	}

	out, err := safeCall(func() (*SignUpResult, error) {
		return a.remote.SignUp(ctx, req)
	})
	if err != nil {
		a.logger.Error("Register remote error", "error", err)
		res = Fail[*SignUpResult](err)
		return res
	}
	if out == nil {
		out = &SignUpResult{}
	}

	res = a.completeSignUp(ctx, out, map[string]any{"email": req.Email})
	return res
}

// RegisterWithReferral creates the account through the referral edge
// function, which links the referrer, then signs in to obtain a session.
func (a *Auther) RegisterWithReferral(ctx context.Context, req SignUpRequest, referralCode string) Result[*SignUpResult] {
	a.begin()
	var res Result[*SignUpResult]
	defer func() { endOp(a, res) }()

	req, err := a.prepareSignUp(req)
	if err != nil {
		res = Fail[*SignUpResult](err)
		return res
	}

	payload := referralPayload{
		Email:        req.Email,
		Password:     req.Password,
		Username:     req.Username,
		FullName:     req.FullName,
		Phone:        req.Phone,
		ReferralCode: strings.TrimSpace(referralCode),
	}

	var created referralResponse
	_, err = safeCall(func() (struct{}, error) {
		return struct{}{}, a.remote.InvokeFunction(ctx, "", a.cfg.ReferralFunction, payload, &created)
	})
	if err == nil && created.Error != "" {
		err = &FunctionError{Function: a.cfg.ReferralFunction, Message: created.Error}
	}
	if err != nil {
		a.logger.Error("RegisterWithReferral function error", "error", err)
		res = Fail[*SignUpResult](err)
		return res
	}

	session, err := safeCall(func() (*Session, error) {
		return a.remote.SignInWithPassword(ctx, Credentials{Email: req.Email, Password: req.Password})
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "email not confirmed") {
			res = a.completeSignUp(ctx, &SignUpResult{User: created.User}, map[string]any{
				"email":    req.Email,
				"referral": payload.ReferralCode,
			})
			return res
		}
		a.logger.Error("RegisterWithReferral sign in error", "error", err)
		res = Fail[*SignUpResult](err)
		return res
	}

	out := &SignUpResult{User: created.User, Session: session}
	if out.User == nil && session != nil {
		out.User = session.User
	}
	res = a.completeSignUp(ctx, out, map[string]any{
		"email":    req.Email,
		"referral": payload.ReferralCode,
	})
	return res
}

type referralPayload struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Username     string `json:"username,omitempty"`
	FullName     string `json:"full_name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	ReferralCode string `json:"referral_code"`
}

type referralResponse struct {
	User  *User  `json:"user,omitempty"`
	Error string `json:"error,omitempty"`
}

func (a *Auther) prepareSignUp(req SignUpRequest) (SignUpRequest, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := req.Validate(); err != nil {
		return req, validationError(err)
	}
	if req.Phone != "" {
		phone, err := NormalizePhone(req.Phone)
		if err != nil {
			return req, validationError(err)
		}
		req.Phone = phone
	}
	return req, nil
}

func (a *Auther) completeSignUp(ctx context.Context, out *SignUpResult, meta map[string]any) Result[*SignUpResult] {
	if out.Session != nil {
		out.Session = a.inspector.normalizeSession(out.Session, a.now())
		if out.Session.User == nil {
			out.Session.User = out.User
		}
		if err := a.HandleEvent(ctx, Event{Type: EventSignedIn, Session: out.Session}); err != nil {
			return Fail[*SignUpResult](err)
		}
		a.startAutoRefresh()
	}

	a.recordActivity(ctx, ActivityEventRegister, out.User, meta)

	if out.NeedsConfirmation() {
		return Ok(out, MessageConfirmEmail)
	}
	return Ok(out, MessageRegisterSuccess)
}

// Logout signs out. It is idempotent: logging out without a session
// succeeds. The remote sign out is best effort, local state is always
// cleared.
func (a *Auther) Logout(ctx context.Context) Result[struct{}] {
	a.begin()
	var res Result[struct{}]
	defer func() { endOp(a, res) }()

	session := a.CurrentSession()
	if session != nil {
		_, err := safeCall(func() (struct{}, error) {
			return struct{}{}, a.remote.SignOut(ctx, session.AccessToken)
		})
		if err != nil {
			a.logger.Warn("Logout remote sign out error", "error", err)
		}
	}

	if err := a.HandleEvent(ctx, Event{Type: EventSignedOut, Reason: "logout"}); err != nil {
		res = Fail[struct{}](err)
		return res
	}

	if session != nil {
		a.recordActivity(ctx, ActivityEventLogout, session.User, nil)
	}
	res = Ok(struct{}{}, MessageLogoutSuccess)
	return res
}

// ResetPassword asks the remote to email a password reset link.
func (a *Auther) ResetPassword(ctx context.Context, email string) Result[struct{}] {
	a.begin()
	var res Result[struct{}]
	defer func() { endOp(a, res) }()

	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		res = Fail[struct{}](validationError(err))
		return res
	}

	_, err := safeCall(func() (struct{}, error) {
		return struct{}{}, a.remote.ResetPasswordForEmail(ctx, email, a.cfg.PasswordResetRedirect)
	})
	if err != nil {
		a.logger.Error("ResetPassword remote error", "error", err)
		res = Fail[struct{}](err)
		return res
	}

	a.recordActivity(ctx, ActivityEventPasswordResetRequest, nil, map[string]any{"email": email})
	res = Ok(struct{}{}, MessageResetEmailSent)
	return res
}

// UpdatePassword changes the password of the signed in user.
func (a *Auther) UpdatePassword(ctx context.Context, newPassword string) Result[*User] {
	a.begin()
	var res Result[*User]
	defer func() { endOp(a, res) }()

	if err := ValidatePassword(newPassword); err != nil {
		res = Fail[*User](validationError(err))
		return res
	}

	res = a.updateUser(ctx, UserAttributes{Password: newPassword}, ActivityEventPasswordUpdated, MessagePasswordUpdated)
	return res
}

// UpdateProfile updates the profile attributes kept in user metadata.
func (a *Auther) UpdateProfile(ctx context.Context, update ProfileUpdate) Result[*User] {
	a.begin()
	var res Result[*User]
	defer func() { endOp(a, res) }()

	update.Username = strings.TrimSpace(update.Username)
	update.FullName = strings.TrimSpace(update.FullName)
	if err := update.Validate(); err != nil {
		res = Fail[*User](validationError(err))
		return res
	}

	data := map[string]any{}
	if update.Username != "" {
		data["username"] = update.Username
	}
	if update.FullName != "" {
		data["full_name"] = update.FullName
	}
	attrs := UserAttributes{Data: data}
	if update.Phone != "" {
		phone, err := NormalizePhone(update.Phone)
		if err != nil {
			res = Fail[*User](validationError(err))
			return res
		}
		attrs.Phone = phone
		data["phone"] = phone
	}

	res = a.updateUser(ctx, attrs, ActivityEventProfileUpdated, MessageProfileUpdated)
	return res
}

func (a *Auther) updateUser(ctx context.Context, attrs UserAttributes, activity ActivityEventType, message string) Result[*User] {
	session := a.CurrentSession()
	if session == nil {
		return Fail[*User](ErrNoSession)
	}

	user, err := safeCall(func() (*User, error) {
		return a.remote.UpdateUser(ctx, session.AccessToken, attrs)
	})
	if err != nil {
		a.logger.Error("UpdateUser remote error", "error", err)
		return Fail[*User](err)
	}
	if user == nil {
		user = session.User
	}

	if err := a.HandleEvent(ctx, Event{Type: EventUserUpdated, User: user}); err != nil {
		return Fail[*User](err)
	}

	a.recordActivity(ctx, activity, user, nil)
	return Ok(user.Clone(), message)
}

// RefreshSession refreshes the session on demand and reports the outcome
// as a Result. Concurrent callers share one remote refresh.
func (a *Auther) RefreshSession(ctx context.Context) Result[*Session] {
	a.begin()
	var res Result[*Session]
	defer func() { endOp(a, res) }()

	session, err := a.refresh(ctx, "manual")
	if err != nil {
		res = Fail[*Session](err)
		return res
	}
	res = Ok(session, MessageSessionRefreshed)
	return res
}

// Refresh exchanges the refresh token for a new session. It never toggles
// the loading flag and concurrent calls share one remote refresh. When the
// remote rejects the refresh token the session is destroyed.
func (a *Auther) Refresh(ctx context.Context) (*Session, error) {
	return a.refresh(ctx, "policy")
}

func (a *Auther) refresh(ctx context.Context, trigger string) (*Session, error) {
	ch := a.refreshGroup.DoChan("refresh", func() (any, error) {
		return a.refreshOnce(context.WithoutCancel(ctx), trigger)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		session, _ := r.Val.(*Session)
		return session.Clone(), nil
	}
}

func (a *Auther) refreshOnce(ctx context.Context, trigger string) (*Session, error) {
	current := a.CurrentSession()
	if current == nil || current.RefreshToken == "" {
		a.metrics.observeRefresh(trigger, ErrNoSession)
		return nil, ErrNoSession
	}

	session, err := safeCall(func() (*Session, error) {
		return a.remote.RefreshSession(ctx, current.RefreshToken)
	})
	if err == nil && session == nil {
		err = ErrRefreshFailed
	}
	a.metrics.observeRefresh(trigger, err)

	if err != nil {
		a.logger.Warn("Refresh session error", "error", err, "trigger", trigger)
		a.recordActivity(ctx, ActivityEventRefreshFailure, current.User, map[string]any{
			"trigger": trigger,
			"error":   err.Error(),
		})
		if IsAuthError(err) {
			a.destroySessionIf(ctx, "refresh_rejected", sameRefreshToken(current.RefreshToken))
		}
		return nil, err
	}

	if session.User == nil {
		session.User = current.User
	}
	session = a.inspector.normalizeSession(session, a.now())

	applied, err := a.applyEvent(ctx, Event{Type: EventTokenRefreshed, Session: session}, sameRefreshToken(current.RefreshToken))
	if err != nil {
		return nil, err
	}
	if !applied {
		// signed out or signed in again while the remote call was in flight
		a.logger.Info("Refresh result dropped, session changed", "trigger", trigger)
		latest := a.CurrentSession()
		if latest == nil {
			return nil, ErrNoSession
		}
		return latest, nil
	}

	a.recordActivity(ctx, ActivityEventRefreshSuccess, session.User, map[string]any{"trigger": trigger})
	return session, nil
}

// ForceLogout clears the local session without calling the remote, used
// when the credential is known to be unusable.
func (a *Auther) ForceLogout(ctx context.Context, reason string) {
	a.destroySession(ctx, reason)
}

func (a *Auther) destroySession(ctx context.Context, reason string) {
	a.destroySessionIf(ctx, reason, nil)
}

func (a *Auther) destroySessionIf(ctx context.Context, reason string, cond func(AuthState) bool) {
	session := a.CurrentSession()
	if session == nil {
		return
	}
	applied, err := a.applyEvent(ctx, Event{Type: EventSignedOut, Reason: reason}, func(s AuthState) bool {
		return s.Session != nil && (cond == nil || cond(s))
	})
	if err != nil {
		a.logger.Error("ForceLogout clear session error", "error", err)
		return
	}
	if applied {
		a.recordActivity(ctx, ActivityEventForcedLogout, session.User, map[string]any{"reason": reason})
	}
}

// sameRefreshToken matches states still holding the session that owns token.
func sameRefreshToken(token string) func(AuthState) bool {
	return func(s AuthState) bool {
		return s.Session != nil && s.Session.RefreshToken == token
	}
}

// HandleEvent applies a session event to the store, syncs persisted
// storage and publishes the event. It is the only path that changes the
// session.
func (a *Auther) HandleEvent(ctx context.Context, evt Event) error {
	_, err := a.applyEvent(ctx, evt, nil)
	return err
}

// applyEvent is HandleEvent guarded by cond. When cond rejects the state
// at commit time nothing is stored, persisted or published.
func (a *Auther) applyEvent(ctx context.Context, evt Event, cond func(AuthState) bool) (bool, error) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = a.now()
	}

	var persist *Session
	clear := false

	a.persistMu.Lock()
	_, applied, err := a.store.updateIf(cond, func(s *AuthState) {
		switch evt.Type {
		case EventSignedIn, EventPasswordRecovery:
			if evt.Session == nil {
				return
			}
			s.Session = evt.Session.Clone()
			s.User = s.Session.User.Clone()
			if evt.User != nil {
				s.User = evt.User.Clone()
				s.Session.User = evt.User.Clone()
			}
			s.Status = StatusAuthenticated
			s.Err = nil
			persist = s.Session
		case EventSignedOut:
			s.Session = nil
			s.User = nil
			s.Status = StatusAnonymous
			clear = true
		case EventTokenRefreshed:
			if evt.Session == nil {
				return
			}
			next := evt.Session.Clone()
			if next.User == nil {
				next.User = s.User.Clone()
			}
			s.Session = next
			s.User = next.User.Clone()
			s.Status = StatusAuthenticated
			persist = s.Session
		case EventUserUpdated:
			if evt.User == nil {
				return
			}
			s.User = evt.User.Clone()
			if s.Session != nil {
				s.Session.User = evt.User.Clone()
				persist = s.Session
			}
		}
	})
	if err != nil || !applied {
		a.persistMu.Unlock()
		return false, err
	}

	switch {
	case persist != nil:
		if err := a.storage.Save(ctx, a.cfg.StorageKey, persist); err != nil {
			a.logger.Warn("persist session error", "error", err)
		}
	case clear:
		if err := a.storage.Delete(ctx, a.cfg.StorageKey); err != nil {
			a.logger.Warn("delete persisted session error", "error", err)
		}
	}
	a.persistMu.Unlock()

	a.events.Publish(evt)
	return true, nil
}

// Close stops background work and releases subscribers.
func (a *Auther) Close() {
	a.closeOnce.Do(func() {
		a.refresherMu.Lock()
		if a.refresher != nil {
			a.refresher.Stop()
		}
		a.refresherMu.Unlock()
		a.store.closeAll()
	})
}

func (a *Auther) begin() {
	a.pendingMu.Lock()
	a.pending++
	a.pendingMu.Unlock()

	_, _ = a.store.update(func(s *AuthState) {
		s.IsLoading = true
		s.Status = StatusLoading
		s.Err = nil
		s.Message = ""
	})
}

// endOp always runs at the end of an operation, so the loading flag can
// never outlive it. Overlapping operations keep the flag up until the last
// one ends.
func endOp[T any](a *Auther, res Result[T]) {
	a.pendingMu.Lock()
	a.pending--
	stillPending := a.pending > 0
	a.pendingMu.Unlock()

	_, err := a.store.update(func(s *AuthState) {
		s.IsLoading = stillPending
		if !stillPending && s.Status == StatusLoading {
			s.Status = settledStatus(s.Session)
		}
		if res.Success {
			s.Err = nil
		} else {
			s.Err = res.Err
		}
		s.Message = res.Message
	})
	if err != nil {
		a.logger.Error("end operation state error", "error", err)
	}
}

// fail records the error in the store with the given resting status.
func (a *Auther) fail(ctx context.Context, err error, status AuthStatus) Result[*Session] {
	_, _ = a.store.update(func(s *AuthState) {
		if status == StatusAnonymous {
			s.Session = nil
			s.User = nil
		}
		s.Status = status
	})
	return Fail[*Session](err)
}

func (a *Auther) startAutoRefresh() {
	if !a.cfg.AutoRefreshToken {
		return
	}
	a.refresherMu.Lock()
	defer a.refresherMu.Unlock()
	if a.refresher != nil {
		return
	}
	r, err := NewAutoRefresher(a, a.cfg.AutoRefreshInterval, a.cfg.RefreshMargin,
		WithAutoRefreshLogger(a.logger),
		WithAutoRefreshClock(a.now),
	)
	if err != nil {
		a.logger.Error("auto refresh setup error", "error", err)
		return
	}
	a.refresher = r
	r.Start()
}

func (a *Auther) recordActivity(ctx context.Context, eventType ActivityEventType, user *User, meta map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   meta,
		OccurredAt: a.now(),
	}
	if user != nil {
		event.UserID = user.ID
		event.Email = user.Email
	}
	if err := a.activitySink.Record(ctx, event); err != nil {
		a.logger.Warn("activity sink error", "error", err)
	}
}

func safeCall[T any](fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = goerrors.New(fmt.Sprintf("remote call panicked: %v", r), goerrors.CategoryInternal).
				WithCode(goerrors.CodeInternal)
		}
	}()
	return fn()
}
