package sfrest

import "sync"

// session owns the shared mutable state of a client: the current
// access token, the instance URL, and the cached header set. Only the
// authentication path writes it; the cached headers are cleared
// exactly when the token changes.
type session struct {
	mu          sync.RWMutex
	accessToken string
	instanceURL string
	headers     map[string]string
}

// setToken installs a new token pair and invalidates the cached
// headers so the next request regenerates them.
func (s *session) setToken(accessToken, instanceURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	s.instanceURL = instanceURL
	s.headers = nil
}

func (s *session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.instanceURL = ""
	s.headers = nil
}

func (s *session) token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *session) baseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instanceURL
}

// cachedHeaders returns a copy of the cached header set, or nil when
// no headers are cached. Headers are never cached without a token.
func (s *session) cachedHeaders() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.headers == nil {
		return nil
	}
	return copyHeaders(s.headers)
}

// cacheHeaders stores the header set, refusing to cache anything while
// no token is installed.
func (s *session) cacheHeaders(headers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken == "" {
		return
	}
	s.headers = copyHeaders(headers)
}

func copyHeaders(headers map[string]string) map[string]string {
	dup := make(map[string]string, len(headers))
	for k, v := range headers {
		dup[k] = v
	}
	return dup
}
