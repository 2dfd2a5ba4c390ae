package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/umx-auth/backend/internal/repository"
)

// memDB is an in-memory stand-in for the PostgreSQL repositories. A single
// mutex plays the role of the bootstrap advisory lock.
type memDB struct {
	mu       sync.Mutex
	tenants  map[uuid.UUID]*repository.Tenant
	users    map[uuid.UUID]*repository.User
	pending  map[int64]*repository.PendingRegistration
	sessions map[uuid.UUID]*repository.Session
	nextID   int64

	// skipUserInsert makes ActivateMember report success without a user row
	skipUserInsert bool
}

func newMemDB() *memDB {
	return &memDB{
		tenants:  make(map[uuid.UUID]*repository.Tenant),
		users:    make(map[uuid.UUID]*repository.User),
		pending:  make(map[int64]*repository.PendingRegistration),
		sessions: make(map[uuid.UUID]*repository.Session),
	}
}

func (db *memDB) userByEmail(email string) *repository.User {
	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) && u.DeletedAt == nil {
			return u
		}
	}
	return nil
}

func (db *memDB) activeTenants() []*repository.Tenant {
	var out []*repository.Tenant
	for _, t := range db.tenants {
		if t.IsActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (db *memDB) insertUser(user *repository.User, at time.Time) error {
	if db.userByEmail(user.Email) != nil {
		return repository.ErrEmailAlreadyExists
	}
	db.nextID++
	user.ID = db.nextID
	if user.UUID == uuid.Nil {
		user.UUID = uuid.New()
	}
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = at
	user.UpdatedAt = at
	cp := *user
	db.users[user.UUID] = &cp
	return nil
}

// memUsers implements repository.UserRepository
type memUsers struct{ db *memDB }

func (m memUsers) GetByUUID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if u, ok := m.db.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m memUsers) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if u := m.db.userByEmail(email); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m memUsers) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.LastLogin = &at
	return nil
}

func (m memUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.userByEmail(email) != nil, nil
}

// memTenants implements repository.TenantRepository
type memTenants struct{ db *memDB }

func (m memTenants) GetByID(ctx context.Context, id uuid.UUID) (*repository.Tenant, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if t, ok := m.db.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, repository.ErrTenantNotFound
}

func (m memTenants) FindActive(ctx context.Context) (*repository.Tenant, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	active := m.db.activeTenants()
	if len(active) == 0 {
		return nil, repository.ErrTenantNotFound
	}
	cp := *active[0]
	return &cp, nil
}

func (m memTenants) CountActive(ctx context.Context) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return len(m.db.activeTenants()), nil
}

// memPending implements repository.PendingRegistrationRepository
type memPending struct{ db *memDB }

func (m memPending) Create(ctx context.Context, p *repository.PendingRegistration) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.pending {
		if existing.Email == p.Email {
			return repository.ErrPendingAlreadyExists
		}
	}
	m.db.nextID++
	p.ID = m.db.nextID
	cp := *p
	m.db.pending[p.ID] = &cp
	return nil
}

func (m memPending) GetByEmail(ctx context.Context, email string) (*repository.PendingRegistration, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, p := range m.db.pending {
		if p.Email == strings.ToLower(email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrPendingNotFound
}

func (m memPending) Delete(ctx context.Context, id int64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.pending[id]; !ok {
		return repository.ErrPendingNotFound
	}
	delete(m.db.pending, id)
	return nil
}

func (m memPending) ReplaceCode(ctx context.Context, id int64, codeHash string, createdAt, expiresAt time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.pending[id]
	if !ok || p.Verified {
		return repository.ErrPendingNotFound
	}
	p.CodeHash = codeHash
	p.CreatedAt = createdAt
	p.ExpiresAt = expiresAt
	return nil
}

func (m memPending) MarkVerified(ctx context.Context, id int64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.pending[id]
	if !ok || p.Verified {
		return repository.ErrPendingNotFound
	}
	p.Verified = true
	return nil
}

// memRegistrations implements repository.RegistrationRepository
type memRegistrations struct{ db *memDB }

func (m memRegistrations) ActivateMember(ctx context.Context, pendingID int64, tenantID uuid.UUID, user *repository.User, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.pending[pendingID]
	if !ok || p.Verified {
		return repository.ErrPendingNotFound
	}
	t, ok := m.db.tenants[tenantID]
	if !ok {
		return repository.ErrTenantNotFound
	}
	if !t.HasCapacity() {
		return repository.ErrTenantFull
	}
	user.TenantID = tenantID
	user.IsVerified = true
	user.IsActive = true
	if !m.db.skipUserInsert {
		if err := m.db.insertUser(user, at); err != nil {
			return err
		}
	}
	t.CurrentUsersCount++
	delete(m.db.pending, pendingID)
	return nil
}

func (m memRegistrations) BootstrapTenant(ctx context.Context, pendingID int64, tenant *repository.Tenant, admin *repository.User, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.pending[pendingID]
	if !ok || !p.Verified {
		return repository.ErrPendingNotFound
	}
	if len(m.db.activeTenants()) > 0 {
		return repository.ErrTenantAlreadyExists
	}
	for _, t := range m.db.tenants {
		if t.Slug == tenant.Slug {
			return repository.ErrSlugAlreadyExists
		}
	}
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	tenant.IsActive = true
	tenant.IsMaster = true
	tenant.CreatedAt = at
	tenant.UpdatedAt = at

	admin.TenantID = tenant.ID
	admin.IsVerified = true
	admin.IsActive = true
	admin.IsTenantAdmin = true
	if err := m.db.insertUser(admin, at); err != nil {
		return err
	}
	owner := admin.UUID
	tenant.OwnerUserID = &owner
	tenant.CurrentUsersCount = 1
	cp := *tenant
	m.db.tenants[tenant.ID] = &cp
	delete(m.db.pending, pendingID)
	return nil
}

// memSessions implements repository.SessionRepository
type memSessions struct{ db *memDB }

func (m memSessions) Create(ctx context.Context, session *repository.Session) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.IsActive = true
	cp := *session
	m.db.sessions[session.ID] = &cp
	return nil
}

func (m memSessions) GetByID(ctx context.Context, id uuid.UUID) (*repository.Session, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if s, ok := m.db.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, repository.ErrSessionNotFound
}

func (m memSessions) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]repository.Session, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []repository.Session
	for _, s := range m.db.sessions {
		if s.UserID == userID && s.IsActive {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoginAt.After(out[j].LoginAt) })
	return out, nil
}

func (m memSessions) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.IsActive = false
	if s.LogoutAt == nil {
		s.LogoutAt = &at
	}
	return nil
}

func (m memSessions) DeactivateAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for _, s := range m.db.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			s.LogoutAt = &at
			n++
		}
	}
	return n, nil
}

// recordingMailer captures the last code sent to each address
type recordingMailer struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
	fail  bool
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{codes: make(map[string]string)}
}

func (m *recordingMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.codes[to] = code
	m.sent++
	return nil
}

func (m *recordingMailer) codeFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

// countingFailures records FailureRecorder calls per IP
type countingFailures struct {
	mu       sync.Mutex
	failures map[string]int
	cleared  map[string]int
}

func newCountingFailures() *countingFailures {
	return &countingFailures{failures: make(map[string]int), cleared: make(map[string]int)}
}

func (c *countingFailures) RecordFailure(ctx context.Context, ip, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ip]++
	return nil
}

func (c *countingFailures) ClearFailures(ctx context.Context, ip string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared[ip]++
	delete(c.failures, ip)
	return nil
}

func (c *countingFailures) count(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures[ip]
}
