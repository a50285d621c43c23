// Package service implements the account use cases on top of the
// repositories, the credential hasher and the token service.  Every
// error it returns is an *apperr.Error.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/iliyamo/webshop-accounts/internal/apperr"
	"github.com/iliyamo/webshop-accounts/internal/auth"
	"github.com/iliyamo/webshop-accounts/internal/metrics"
	"github.com/iliyamo/webshop-accounts/internal/model"
	"github.com/iliyamo/webshop-accounts/internal/queue"
	"github.com/iliyamo/webshop-accounts/internal/repository"
)

// AccountStore is the persistence the service needs.  *repository.AccountRepo
// satisfies it.
type AccountStore interface {
	CreateWithProfile(ctx context.Context, a model.NewAccount, p model.Profile) (*model.Account, error)
	GetByID(ctx context.Context, id uint64) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetPasswordHash(ctx context.Context, id uint64) (string, error)
	UpdateProfile(ctx context.Context, id uint64, p model.Profile) (*model.Account, error)
	SetStatus(ctx context.Context, id uint64, s model.Status) error
	SetVerified(ctx context.Context, id uint64, verified bool) error
	SetPassword(ctx context.Context, id uint64, hash string) error
	TouchLastLogin(ctx context.Context, id uint64, at time.Time) error
	BumpForceLogout(ctx context.Context, id uint64) (uint32, error)
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, limit, offset int) ([]model.Account, int, error)
}

// TokenStore persists selector/verifier tokens.
type TokenStore interface {
	Create(ctx context.Context, t model.EphemeralToken) error
	FindBySelector(ctx context.Context, kind model.TokenKind, selector string) (*model.EphemeralToken, error)
	DeleteBySelector(ctx context.Context, kind model.TokenKind, selector string) error
}

// PasswordHasher is implemented by *auth.Hasher.
type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, digest string) bool
}

// TokenIssuer is implemented by *auth.TokenService.
type TokenIssuer interface {
	Issue(a *model.Account) (string, time.Time, error)
}

const (
	confirmationTTL      = 24 * time.Hour
	confirmationSelector = 8 // bytes; users_confirmations.selector is 16 chars
	publishTimeout       = 3 * time.Second
	dummyPassword        = "Dummy-password-1"
)

// AccountService implements registration, login, logout, profile and
// admin operations.
type AccountService struct {
	accounts AccountStore
	tokens   TokenStore
	hasher   PasswordHasher
	issuer   TokenIssuer
	events   Publisher
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time

	dummyMu   sync.Mutex
	dummyHash string
}

// Deps bundles the collaborators of AccountService.  Events, Metrics and
// Log may be nil.
type Deps struct {
	Accounts AccountStore
	Tokens   TokenStore
	Hasher   PasswordHasher
	Issuer   TokenIssuer
	Events   Publisher
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

func NewAccountService(d Deps) *AccountService {
	s := &AccountService{
		accounts: d.Accounts,
		tokens:   d.Tokens,
		hasher:   d.Hasher,
		issuer:   d.Issuer,
		events:   d.Events,
		metrics:  d.Metrics,
		log:      d.Log,
		now:      time.Now,
	}
	if s.events == nil {
		s.events = NopPublisher{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// LoginResult is returned by Login.
type LoginResult struct {
	Account   *model.Account
	Token     string
	ExpiresAt time.Time
}

// Register creates an inactive account with its profile.  A confirmation
// token is issued afterwards on a best-effort basis.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	_, err := s.accounts.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, emailTaken()
	case !errors.Is(err, repository.ErrNotFound):
		return nil, s.internal("lookup email", err)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, s.internal("hash password", err)
	}

	acct, err := s.accounts.CreateWithProfile(ctx, model.NewAccount{
		Email:        in.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
	}, in.profile())
	if errors.Is(err, repository.ErrEmailExists) {
		return nil, emailTaken()
	}
	if err != nil {
		return nil, s.internal("create account", err)
	}

	s.publish(ctx, queue.NewAccountEvent(queue.EventRegistered, acct.ID, acct.ID).With("email", acct.Email))
	s.requestConfirmation(ctx, acct)
	return acct, nil
}

func (s *AccountService) requestConfirmation(ctx context.Context, acct *model.Account) {
	if s.tokens == nil {
		return
	}
	pair, err := auth.NewSelectorPair(confirmationSelector, confirmationTTL)
	if err != nil {
		s.log.Warn("confirmation token generation failed", "account_id", acct.ID, "err", err)
		return
	}
	err = s.tokens.Create(ctx, model.EphemeralToken{
		Kind:         model.TokenConfirmation,
		UserID:       acct.ID,
		Email:        acct.Email,
		Selector:     pair.Selector,
		VerifierHash: auth.HashVerifier(pair.Verifier),
		Expires:      pair.Expires,
	})
	if err != nil {
		s.log.Warn("confirmation token not stored", "account_id", acct.ID, "err", err)
		return
	}
	ev := queue.NewAccountEvent(queue.EventConfirmationRequested, acct.ID, acct.ID).
		With("email", acct.Email).
		With("expires", pair.Expires.Format(time.RFC3339))
	ev.Secret = map[string]string{"selector": pair.Selector, "token": pair.Verifier}
	s.publish(ctx, ev)
}

// Login checks credentials and issues a session token.  An inactive
// account becomes active on its first successful login.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	acct, err := s.accounts.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		// burn the same bcrypt time as a real comparison
		s.hasher.Verify(ctx, in.Password, s.dummyDigest(ctx))
		s.metrics.LoginAttempt(metrics.LoginBadCredentials)
		return nil, badCredentials()
	}
	if err != nil {
		s.metrics.LoginAttempt(metrics.LoginError)
		return nil, s.internal("lookup account", err)
	}
	if !s.hasher.Verify(ctx, in.Password, acct.PasswordHash) {
		if ctx.Err() != nil {
			s.metrics.LoginAttempt(metrics.LoginError)
			return nil, s.internal("verify password", ctx.Err())
		}
		s.metrics.LoginAttempt(metrics.LoginBadCredentials)
		return nil, badCredentials()
	}
	if acct.Status.Blocked() {
		s.metrics.LoginAttempt(metrics.LoginBlocked)
		return nil, apperr.Forbidden("Account is suspended or banned").WithCode(apperr.CodeAccountBlocked)
	}

	if acct.Status == model.StatusInactive {
		if err := s.accounts.SetStatus(ctx, acct.ID, model.StatusActive); err != nil {
			s.metrics.LoginAttempt(metrics.LoginError)
			return nil, s.internal("activate account", err)
		}
	}
	if err := s.accounts.TouchLastLogin(ctx, acct.ID, s.now()); err != nil {
		s.metrics.LoginAttempt(metrics.LoginError)
		return nil, s.internal("touch last login", err)
	}

	// issue from the stored row so the counter snapshot is current
	fresh, err := s.accounts.GetByID(ctx, acct.ID)
	if err != nil {
		s.metrics.LoginAttempt(metrics.LoginError)
		return nil, s.internal("reload account", err)
	}
	token, exp, err := s.issuer.Issue(fresh)
	if err != nil {
		s.metrics.LoginAttempt(metrics.LoginError)
		return nil, s.internal("issue token", err)
	}

	s.metrics.LoginAttempt(metrics.LoginSuccess)
	s.publish(ctx, queue.NewAccountEvent(queue.EventLoggedIn, fresh.ID, fresh.ID))
	return &LoginResult{Account: fresh, Token: token, ExpiresAt: exp}, nil
}

// dummyDigest lazily hashes a throwaway password with the real cost.  A
// failed attempt is retried on the next call.
func (s *AccountService) dummyDigest(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash == "" {
		h, err := s.hasher.Hash(context.WithoutCancel(ctx), dummyPassword)
		if err != nil {
			s.log.Warn("dummy hash failed", "err", err)
			return ""
		}
		s.dummyHash = h
	}
	return s.dummyHash
}

// Logout ends every session of the caller by bumping its force-logout
// counter.
func (s *AccountService) Logout(ctx context.Context, caller *model.Account) error {
	n, err := s.accounts.BumpForceLogout(ctx, caller.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound()
	}
	if err != nil {
		return s.internal("bump force logout", err)
	}
	s.metrics.ForceLogout("logout")
	s.publish(ctx, queue.NewAccountEvent(queue.EventLoggedOut, caller.ID, caller.ID).
		With("force_logout", strconv.FormatUint(uint64(n), 10)))
	return nil
}

// Get returns account id for the caller, who must be the same account or
// hold the admin role.
func (s *AccountService) Get(ctx context.Context, caller *model.Account, id uint64) (*model.Account, error) {
	if caller.ID != id && !caller.Role.AtLeast(model.RoleAdmin) {
		return nil, apperr.Forbidden("Access denied").WithCode(apperr.CodeInsufficientRole)
	}
	return s.load(ctx, id)
}

// UpdateProfile merges in onto the caller's profile.
func (s *AccountService) UpdateProfile(ctx context.Context, caller *model.Account, in ProfileUpdateInput) (*model.Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	cur, err := s.load(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	if cur.Profile == nil {
		return nil, apperr.NotFound("Profile not found")
	}
	acct, err := s.accounts.UpdateProfile(ctx, caller.ID, in.apply(*cur.Profile))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Profile not found")
	}
	if err != nil {
		return nil, s.internal("update profile", err)
	}
	s.publish(ctx, queue.NewAccountEvent(queue.EventProfileUpdated, caller.ID, caller.ID))
	return acct, nil
}

// ChangePassword replaces the caller's password and ends all its sessions.
func (s *AccountService) ChangePassword(ctx context.Context, caller *model.Account, in PasswordChangeInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	digest, err := s.accounts.GetPasswordHash(ctx, caller.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound()
	}
	if err != nil {
		return s.internal("load password", err)
	}
	if !s.hasher.Verify(ctx, in.CurrentPassword, digest) {
		if ctx.Err() != nil {
			return s.internal("verify password", ctx.Err())
		}
		return apperr.Auth("Current password is incorrect").WithCode(apperr.CodeBadCredentials)
	}
	hash, err := s.hasher.Hash(ctx, in.NewPassword)
	if err != nil {
		return s.internal("hash password", err)
	}
	if err := s.accounts.SetPassword(ctx, caller.ID, hash); err != nil {
		return s.internal("set password", err)
	}
	if _, err := s.accounts.BumpForceLogout(ctx, caller.ID); err != nil {
		return s.internal("bump force logout", err)
	}
	s.metrics.ForceLogout("password_change")
	s.publish(ctx, queue.NewAccountEvent(queue.EventPasswordChanged, caller.ID, caller.ID))
	return nil
}

// ConfirmEmail consumes a confirmation token and marks the account verified.
func (s *AccountService) ConfirmEmail(ctx context.Context, in ConfirmEmailInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	invalid := apperr.Validation("Invalid or expired confirmation token")

	tok, err := s.tokens.FindBySelector(ctx, model.TokenConfirmation, in.Selector)
	if errors.Is(err, repository.ErrNotFound) {
		return invalid
	}
	if err != nil {
		return s.internal("find confirmation", err)
	}
	if !auth.VerifierMatches(in.Token, tok.VerifierHash) {
		return invalid
	}
	if tok.Expired(s.now()) {
		_ = s.tokens.DeleteBySelector(ctx, model.TokenConfirmation, tok.Selector)
		return invalid
	}
	err = s.accounts.SetVerified(ctx, tok.UserID, true)
	if errors.Is(err, repository.ErrNotFound) {
		return invalid
	}
	if err != nil {
		return s.internal("set verified", err)
	}
	if err := s.tokens.DeleteBySelector(ctx, model.TokenConfirmation, tok.Selector); err != nil {
		s.log.Warn("confirmation token not deleted", "account_id", tok.UserID, "err", err)
	}
	s.publish(ctx, queue.NewAccountEvent(queue.EventEmailConfirmed, tok.UserID, tok.UserID))
	return nil
}

// Page is one page of a listing.
type Page struct {
	Accounts []model.Account
	Total    int
	Page     int
	Limit    int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// List returns page (1-based) of accounts.  Out-of-range arguments are
// clamped.
func (s *AccountService) List(ctx context.Context, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	accts, total, err := s.accounts.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, s.internal("list accounts", err)
	}
	return &Page{Accounts: accts, Total: total, Page: page, Limit: limit}, nil
}

// Delete removes account id.  Admins cannot delete themselves.
func (s *AccountService) Delete(ctx context.Context, caller *model.Account, id uint64) error {
	if err := selfGuard(caller, id, "Cannot delete your own account"); err != nil {
		return err
	}
	err := s.accounts.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound()
	}
	if err != nil {
		return s.internal("delete account", err)
	}
	s.publish(ctx, queue.NewAccountEvent(queue.EventDeleted, id, caller.ID))
	return nil
}

// SetStatus changes the status of account id and returns it.
func (s *AccountService) SetStatus(ctx context.Context, caller *model.Account, id uint64, in AdminStatusInput) (*model.Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := selfGuard(caller, id, "Cannot change your own status"); err != nil {
		return nil, err
	}
	status := model.Status(*in.Status)
	err := s.accounts.SetStatus(ctx, id, status)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, s.internal("set status", err)
	}
	s.publish(ctx, queue.NewAccountEvent(queue.EventStatusChanged, id, caller.ID).With("status", status.String()))
	return s.load(ctx, id)
}

// SetVerification changes the verified flag of account id and returns it.
func (s *AccountService) SetVerification(ctx context.Context, caller *model.Account, id uint64, in AdminVerifyInput) (*model.Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := selfGuard(caller, id, "Cannot change your own verification status"); err != nil {
		return nil, err
	}
	err := s.accounts.SetVerified(ctx, id, *in.Verified)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, s.internal("set verified", err)
	}
	s.publish(ctx, queue.NewAccountEvent(queue.EventVerificationChanged, id, caller.ID).
		With("verified", strconv.FormatBool(*in.Verified)))
	return s.load(ctx, id)
}

// ForceLogout ends every session of account id.
func (s *AccountService) ForceLogout(ctx context.Context, caller *model.Account, id uint64) error {
	if err := selfGuard(caller, id, "Cannot force logout yourself"); err != nil {
		return err
	}
	n, err := s.accounts.BumpForceLogout(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound()
	}
	if err != nil {
		return s.internal("bump force logout", err)
	}
	s.metrics.ForceLogout("admin")
	s.publish(ctx, queue.NewAccountEvent(queue.EventForceLogout, id, caller.ID).
		With("force_logout", strconv.FormatUint(uint64(n), 10)))
	return nil
}

func (s *AccountService) load(ctx context.Context, id uint64) (*model.Account, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, s.internal("load account", err)
	}
	return acct, nil
}

// publish never fails the caller; the request already committed.  The
// broker publisher only enqueues, so this does not wait on RabbitMQ.
func (s *AccountService) publish(ctx context.Context, ev queue.AccountEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("account event not published", "type", ev.Type, "account_id", ev.AccountID, "err", err)
	}
}

func (s *AccountService) internal(op string, err error) error {
	s.log.Error(op+" failed", "err", err)
	return apperr.Internal(err)
}

func selfGuard(caller *model.Account, id uint64, msg string) error {
	if caller.ID == id {
		return apperr.Validation(msg).WithCode(apperr.CodeSelfAction)
	}
	return nil
}

func emailTaken() error { return apperr.Duplicate("User with this email already exists") }

func badCredentials() error {
	return apperr.Auth("Invalid credentials").WithCode(apperr.CodeBadCredentials)
}

func notFound() error { return apperr.NotFound("User not found") }
