package auth

import (
	"net/http"
	"sync"
	"time"
)

// Cookie names used by the session relay.
const (
	AccessTokenCookie  = "kanojo-access-token"
	RefreshTokenCookie = "kanojo-refresh-token"
	VerifierCookie     = "kanojo-code-verifier"
	StateCookie        = "kanojo-oauth-state"
)

// CookieOptions carries the attributes the auth service asks for. Zero values
// mean "not reported" and are filled in by Normalize.
type CookieOptions struct {
	Path     string
	Domain   string
	MaxAge   int
	Expires  time.Time
	SameSite http.SameSite
	HttpOnly *bool
}

// Cookie is one cookie the auth service wants set on the client.
type Cookie struct {
	Name    string
	Value   string
	Options CookieOptions
}

// CookieSink receives cookie batches emitted by the auth service.
type CookieSink interface {
	SetAll(cookies []Cookie)
}

// Normalize renders c as an http.Cookie: path defaults to "/", SameSite to
// Lax, HttpOnly to false, and Secure is set everywhere except local development.
func (c Cookie) Normalize(local bool) *http.Cookie {
	path := c.Options.Path
	if path == "" {
		path = "/"
	}
	sameSite := c.Options.SameSite
	if sameSite == 0 || sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	httpOnly := false
	if c.Options.HttpOnly != nil {
		httpOnly = *c.Options.HttpOnly
	}

	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     path,
		Domain:   c.Options.Domain,
		MaxAge:   c.Options.MaxAge,
		Expires:  c.Options.Expires,
		SameSite: sameSite,
		HttpOnly: httpOnly,
		Secure:   !local,
	}
}

// PendingCookies is an ordered cookie set. Setting a name twice keeps the
// position of the first emission and the value of the last. It is safe for
// concurrent use.
type PendingCookies struct {
	mu      sync.Mutex
	cookies []Cookie
	index   map[string]int
}

// SetAll implements CookieSink.
func (p *PendingCookies) SetAll(cookies []Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index == nil {
		p.index = make(map[string]int)
	}
	for _, c := range cookies {
		if i, ok := p.index[c.Name]; ok {
			p.cookies[i] = c
			continue
		}
		p.index[c.Name] = len(p.cookies)
		p.cookies = append(p.cookies, c)
	}
}

// List returns a snapshot of the collected cookies in emission order.
func (p *PendingCookies) List() []Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Cookie, len(p.cookies))
	copy(out, p.cookies)
	return out
}

// Len reports how many distinct cookies are pending.
func (p *PendingCookies) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cookies)
}

// Apply writes every pending cookie to w. It must run before the response
// header is written.
func (p *PendingCookies) Apply(w http.ResponseWriter, local bool) {
	ApplyCookies(w, p.List(), local)
}

// ApplyCookies writes cookies to w with normalized attributes.
func ApplyCookies(w http.ResponseWriter, cookies []Cookie, local bool) {
	for _, c := range cookies {
		http.SetCookie(w, c.Normalize(local))
	}
}

// cookieCollector is a PendingCookies that also signals the first emitted batch.
type cookieCollector struct {
	PendingCookies
	done chan struct{}
	once sync.Once
}

func newCookieCollector() *cookieCollector {
	return &cookieCollector{done: make(chan struct{})}
}

func (c *cookieCollector) SetAll(cookies []Cookie) {
	c.PendingCookies.SetAll(cookies)
	c.once.Do(func() { close(c.done) })
}

// Done is closed once the first batch has been collected.
func (c *cookieCollector) Done() <-chan struct{} {
	return c.done
}

func boolPtr(v bool) *bool {
	return &v
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c != nil && c.Name == name {
			return c.Value
		}
	}
	return ""
}

func expiredCookie(name string) Cookie {
	return Cookie{
		Name:    name,
		Options: CookieOptions{MaxAge: -1, HttpOnly: boolPtr(true)},
	}
}
