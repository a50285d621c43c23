package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/webshop-accounts/internal/model"
	"github.com/iliyamo/webshop-accounts/internal/queue"
	"github.com/iliyamo/webshop-accounts/internal/repository"
)

// memAccounts is an in-memory AccountStore.
type memAccounts struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.Account
	failOn map[string]error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[uint64]*model.Account{}, failOn: map[string]error{}}
}

func (m *memAccounts) fail(op string) error { return m.failOn[op] }

func (m *memAccounts) public(a *model.Account) *model.Account {
	cp := *a
	cp.PasswordHash = ""
	if a.Profile != nil {
		p := *a.Profile
		cp.Profile = &p
	}
	return &cp
}

func (m *memAccounts) CreateWithProfile(_ context.Context, a model.NewAccount, p model.Profile) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create"); err != nil {
		return nil, err
	}
	email := repository.NormalizeEmail(a.Email)
	for _, r := range m.rows {
		if r.Email == email {
			return nil, repository.ErrEmailExists
		}
	}
	m.nextID++
	row := &model.Account{
		ID: m.nextID, Email: email, PasswordHash: a.PasswordHash, Role: a.Role,
		Registered: time.Now().UTC(), Resettable: true, Profile: &p,
	}
	m.rows[row.ID] = row
	return m.public(row), nil
}

func (m *memAccounts) GetByID(_ context.Context, id uint64) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get"); err != nil {
		return nil, err
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.public(r), nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get_email"); err != nil {
		return nil, err
	}
	email = repository.NormalizeEmail(email)
	for _, r := range m.rows {
		if r.Email == email {
			cp := *r
			cp.Profile = nil
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAccounts) GetPasswordHash(_ context.Context, id uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	return r.PasswordHash, nil
}

func (m *memAccounts) with(id uint64, fn func(*model.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(r)
	return nil
}

func (m *memAccounts) UpdateProfile(ctx context.Context, id uint64, p model.Profile) (*model.Account, error) {
	if err := m.with(id, func(a *model.Account) { a.Profile = &p }); err != nil {
		return nil, err
	}
	return m.GetByID(ctx, id)
}

func (m *memAccounts) SetStatus(_ context.Context, id uint64, s model.Status) error {
	return m.with(id, func(a *model.Account) { a.Status = s })
}

func (m *memAccounts) SetVerified(_ context.Context, id uint64, v bool) error {
	return m.with(id, func(a *model.Account) { a.Verified = v })
}

func (m *memAccounts) SetPassword(_ context.Context, id uint64, hash string) error {
	return m.with(id, func(a *model.Account) { a.PasswordHash = hash })
}

func (m *memAccounts) TouchLastLogin(_ context.Context, id uint64, at time.Time) error {
	return m.with(id, func(a *model.Account) { t := at.UTC(); a.LastLogin = &t })
}

func (m *memAccounts) BumpForceLogout(_ context.Context, id uint64) (uint32, error) {
	var n uint32
	err := m.with(id, func(a *model.Account) { a.ForceLogout++; n = a.ForceLogout })
	return n, err
}

func (m *memAccounts) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memAccounts) List(_ context.Context, limit, offset int) ([]model.Account, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := []model.Account{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, *m.public(m.rows[ids[i]]))
	}
	return out, len(ids), nil
}

// memTokens is an in-memory TokenStore.
type memTokens struct {
	mu   sync.Mutex
	rows map[string]model.EphemeralToken
}

func newMemTokens() *memTokens { return &memTokens{rows: map[string]model.EphemeralToken{}} }

func (m *memTokens) Create(_ context.Context, t model.EphemeralToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.Selector]; ok {
		return repository.ErrDuplicateSelector
	}
	m.rows[t.Selector] = t
	return nil
}

func (m *memTokens) FindBySelector(_ context.Context, kind model.TokenKind, sel string) (*model.EphemeralToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[sel]
	if !ok || t.Kind != kind {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (m *memTokens) DeleteBySelector(_ context.Context, _ model.TokenKind, sel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, sel)
	return nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AccountEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AccountEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) last(typ string) (queue.AccountEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == typ {
			return p.events[i], true
		}
	}
	return queue.AccountEvent{}, false
}
