package client

import "sync"

// Session es una foto del estado de autenticacion local.
type Session struct {
	Authenticated bool
	UserID        string
	Roles         []string
}

// SessionState guarda la sesion y avisa a los suscriptores de cada cambio.
type SessionState struct {
	mu      sync.RWMutex
	current Session
	nextID  int
	subs    map[int]func(Session)
}

func NewSessionState() *SessionState {
	return &SessionState{subs: make(map[int]func(Session))}
}

func (s *SessionState) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.current
	out.Roles = append([]string(nil), s.current.Roles...)
	return out
}

func (s *SessionState) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Authenticated
}

// SignIn fija la identidad tras un login.
func (s *SessionState) SignIn(userID string, roles []string) {
	s.update(func(cur *Session) {
		*cur = Session{Authenticated: true, UserID: userID, Roles: append([]string(nil), roles...)}
	})
}

// MarkAuthenticated se usa tras un refresh: la identidad no cambia.
func (s *SessionState) MarkAuthenticated() {
	s.update(func(cur *Session) { cur.Authenticated = true })
}

func (s *SessionState) Clear() {
	s.update(func(cur *Session) { *cur = Session{} })
}

// Subscribe registra fn y devuelve la funcion para darse de baja.
func (s *SessionState) Subscribe(fn func(Session)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// update notifica fuera del lock para que un suscriptor pueda leer el estado.
func (s *SessionState) update(mutate func(*Session)) {
	s.mu.Lock()
	mutate(&s.current)
	snap := s.current
	snap.Roles = append([]string(nil), s.current.Roles...)
	subs := make([]func(Session), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
