package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/shagun/internal/metrics"
	"github.com/hitoshi/shagun/internal/model"
	"github.com/hitoshi/shagun/internal/repository"
)

// --- モック定義 ---

// memUserRepo はメモリ上のUserRepository。
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	updateNameFn func(ctx context.Context, id, name string) error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*model.User)}
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, _ *model.Identity) error {
	return r.Create(ctx, user)
}

func (r *memUserRepo) update(id string, fn func(u *model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

func (r *memUserRepo) UpdateName(ctx context.Context, id, name string) error {
	if r.updateNameFn != nil {
		return r.updateNameFn(ctx, id, name)
	}
	return r.update(id, func(u *model.User) { u.Name = name })
}

func (r *memUserRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return r.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (r *memUserRepo) MarkEmailVerified(_ context.Context, id string) error {
	return r.update(id, func(u *model.User) { u.EmailVerified = true })
}

func (r *memUserRepo) RevokeTokens(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *model.User) {
		if at.After(u.TokensValidAfter) {
			u.TokensValidAfter = at
		}
	})
}

func (r *memUserRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
	createFn         func(ctx context.Context, identity *model.Identity) error
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	if m.createFn != nil {
		return m.createFn(ctx, identity)
	}
	return nil
}

// memSessionRepo はメモリ上のSessionRepository。
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *memSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if r.findByIDFn != nil {
		return r.findByIDFn(ctx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (r *memSessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if r.deleteByUserIDFn != nil {
		return r.deleteByUserIDFn(ctx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func (r *memSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// recordingMetrics は呼び出しを記録するMetricsCollector。
type recordingMetrics struct {
	mu             sync.Mutex
	authAttempts   map[string]int
	validations    map[string]int
	revokeFailures int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{authAttempts: map[string]int{}, validations: map[string]int{}}
}

func (m *recordingMetrics) RecordAuthAttempt(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authAttempts[op+":"+outcome]++
}

func (m *recordingMetrics) RecordSessionValidation(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations[outcome]++
}

func (m *recordingMetrics) RecordSessionRevokeFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeFailures++
}

func (m *recordingMetrics) RecordAuthzDenial(string, string)     {}
func (m *recordingMetrics) RecordAggregateLatency(time.Duration) {}
func (m *recordingMetrics) RecordContributionAdded()             {}
func (m *recordingMetrics) RecordSessionsPurged(int)             {}
func (m *recordingMetrics) RecordHTTPStatus(int)                 {}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*memUserRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*memSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)
var _ metrics.MetricsCollector = (*recordingMetrics)(nil)
