package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"krishilok/internal/domain"
	"krishilok/internal/repository"
)

// memStore hace de users, otp_verifications y role_counters a la vez para que
// CommitRegistration pueda ser atomico igual que la transaccion de Postgres.
type memStore struct {
	mu       sync.Mutex
	users    map[string]domain.User
	otps     map[string][]domain.OTPEntry
	counters map[string]int64
	lookups  int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]domain.User),
		otps:     make(map[string][]domain.OTPEntry),
		counters: make(map[string]int64),
	}
}

func (m *memStore) FindByIdentifier(_ context.Context, id domain.Identifier) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if id.Empty() {
		return domain.User{}, repository.ErrNotFound
	}
	for _, u := range m.users {
		if (id.Email != "" && u.Email == id.Email) ||
			(id.Mobile != "" && u.Mobile == id.Mobile) ||
			(id.Aadhaar != "" && u.Aadhaar == id.Aadhaar) {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memStore) Replace(_ context.Context, entry domain.OTPEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps[entry.Email] = []domain.OTPEntry{entry}
	return nil
}

func (m *memStore) Latest(_ context.Context, email string) (domain.OTPEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.otps[email]
	if len(entries) == 0 {
		return domain.OTPEntry{}, repository.ErrNotFound
	}
	return entries[len(entries)-1], nil
}

func (m *memStore) Consume(_ context.Context, entry domain.OTPEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumeLocked(entry)
}

func (m *memStore) consumeLocked(entry domain.OTPEntry) error {
	for _, e := range m.otps[entry.Email] {
		if e.ID == entry.ID {
			delete(m.otps, entry.Email)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for email, entries := range m.otps {
		kept := entries[:0]
		for _, e := range entries {
			if e.ExpiresAt.After(before) {
				kept = append(kept, e)
			} else {
				n++
			}
		}
		if len(kept) == 0 {
			delete(m.otps, email)
		} else {
			m.otps[email] = kept
		}
	}
	return n, nil
}

func (m *memStore) CommitRegistration(_ context.Context, user domain.User, otp domain.OTPEntry) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, e := range m.otps[otp.Email] {
		if e.ID == otp.ID {
			found = true
		}
	}
	if !found {
		return domain.User{}, fmt.Errorf("consume otp: %w", repository.ErrNotFound)
	}
	for _, u := range m.users {
		if u.Email == user.Email || u.Mobile == user.Mobile || u.Aadhaar == user.Aadhaar {
			return domain.User{}, fmt.Errorf("insert user: %w", repository.ErrAlreadyExists)
		}
	}
	m.counters[user.PrimaryRole()]++
	user.DisplayID = domain.FormatDisplayID(user.PrimaryRole(), m.counters[user.PrimaryRole()])
	m.users[user.ID] = user
	delete(m.otps, otp.Email)
	return user, nil
}

func (m *memStore) otpCount(email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.otps[email])
}

func (m *memStore) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memStore) put(user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

type mockSender struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
	err   error
}

func newMockSender() *mockSender {
	return &mockSender{codes: make(map[string]string)}
}

func (m *mockSender) SendVerificationOTP(_ context.Context, to, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes[to] = code
	m.sent++
	return nil
}

func (m *mockSender) lastCode(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.LoginHistoryEntry
	err     error
}

func (m *mockHistoryRepo) Append(_ context.Context, entry domain.LoginHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

// recordingRecorder guarda los intentos aunque el repo falle, para poder
// comprobar que el login los reporto.
type recordingRecorder struct {
	inner    LoginRecorder
	mu       sync.Mutex
	attempts []LoginAttempt
}

func (r *recordingRecorder) Record(ctx context.Context, attempt LoginAttempt) {
	r.mu.Lock()
	r.attempts = append(r.attempts, attempt)
	r.mu.Unlock()
	if r.inner != nil {
		r.inner.Record(ctx, attempt)
	}
}

var errBoom = errors.New("boom")
