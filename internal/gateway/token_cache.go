package gateway

import (
	"sync"
	"time"
)

// tokenSkew — запас до истечения токена, после которого кэш считается пустым.
const tokenSkew = 30 * time.Second

// tokenCache — процессный кэш OAuth-токена {token, expiry}.
// Кэш экономит только латентность: промах означает повторный fetch,
// корректность от содержимого кэша не зависит. В multi-instance
// развертывании каждый процесс держит свой токен.
type tokenCache struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
}

// Get возвращает токен, если он ещё действителен на момент now.
func (c *tokenCache) Get(now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !now.Add(tokenSkew).Before(c.expiry) {
		return "", false
	}
	return c.token, true
}

// Put сохраняет токен с меткой истечения.
func (c *tokenCache) Put(token string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiry = expiry
}

// Invalidate сбрасывает кэш; вызывается после отказа провайдера в авторизации.
func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = time.Time{}
}
