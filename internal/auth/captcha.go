package auth

import (
	"sync"
	"time"
)

// CaptchaGuard enforces that captcha tokens are present and used once.
// Tokens are remembered for the replay window, after which the captcha
// vendor would reject them anyway.
type CaptchaGuard struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func NewCaptchaGuard(window time.Duration) *CaptchaGuard {
	return &CaptchaGuard{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Consume accepts token once. An empty or replayed token is a
// *ValidationError on the captchaToken field.
func (g *CaptchaGuard) Consume(token string) error {
	if token == "" {
		return &ValidationError{Field: "captchaToken", Message: "Please complete the captcha"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for seen, at := range g.seen {
		if now.Sub(at) > g.window {
			delete(g.seen, seen)
		}
	}
	if _, used := g.seen[token]; used {
		return &ValidationError{Field: "captchaToken", Message: "Captcha already used, please complete it again"}
	}
	g.seen[token] = now
	return nil
}
