package session

import "sync"

// authState is the session-local authentication record. It starts
// unauthenticated, transitions once on the first AuthRequest, and never
// mutates again until the session drains it on exit. Both the ingress
// and egress tasks read it, hence the mutex.
type authState struct {
	mu       sync.Mutex
	id       string
	password string
	set      bool
}

// authenticate records the credentials. It reports false when the
// session already authenticated; a node cannot change identity
// mid-stream.
func (a *authState) authenticate(id, password string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.set {
		return false
	}
	a.id = id
	a.password = password
	a.set = true
	return true
}

func (a *authState) authenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set
}

// matches reports whether the session authenticated with exactly the
// given pair.
func (a *authState) matches(id, password string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set && a.id == id && a.password == password
}

// take drains the credentials for deregistration. Subsequent calls
// report false.
func (a *authState) take() (id, password string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.set {
		return "", "", false
	}
	id, password = a.id, a.password
	a.id, a.password, a.set = "", "", false
	return id, password, true
}
