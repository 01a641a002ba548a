package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCookieNormalizeDefaults(t *testing.T) {
	c := Cookie{Name: "sb", Value: "v"}

	got := c.Normalize(false)
	if got.Path != "/" {
		t.Fatalf("expected default path / got %q", got.Path)
	}
	if got.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected SameSite=Lax got %v", got.SameSite)
	}
	if got.HttpOnly {
		t.Fatal("expected HttpOnly to default to false")
	}
	if !got.Secure {
		t.Fatal("expected Secure outside local development")
	}

	local := c.Normalize(true)
	if local.Secure {
		t.Fatal("expected Secure to be off in local development")
	}
}

func TestCookieNormalizeKeepsReportedAttributes(t *testing.T) {
	c := Cookie{
		Name:  "sb",
		Value: "v",
		Options: CookieOptions{
			Path:     "/api",
			SameSite: http.SameSiteStrictMode,
			HttpOnly: boolPtr(true),
			MaxAge:   60,
		},
	}

	got := c.Normalize(true)
	if got.Path != "/api" || got.SameSite != http.SameSiteStrictMode || !got.HttpOnly || got.MaxAge != 60 {
		t.Fatalf("unexpected normalized cookie: %+v", got)
	}
}

func TestPendingCookiesLastWriteWins(t *testing.T) {
	var pending PendingCookies
	pending.SetAll([]Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}})
	pending.SetAll([]Cookie{{Name: "c", Value: "3"}, {Name: "a", Value: "4"}})

	got := pending.List()
	want := []Cookie{{Name: "a", Value: "4"}, {Name: "b", Value: "2"}, {Name: "c", Value: "3"}}
	if len(got) != len(want) {
		t.Fatalf("expected %d cookies got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Name != want[i].Name || got[i].Value != want[i].Value {
			t.Fatalf("cookie %d: got %s=%s want %s=%s", i, got[i].Name, got[i].Value, want[i].Name, want[i].Value)
		}
	}
}

func TestPendingCookiesApply(t *testing.T) {
	var pending PendingCookies
	pending.SetAll([]Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}})

	rec := httptest.NewRecorder()
	pending.Apply(rec, false)

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies got %d", len(cookies))
	}
	for _, c := range cookies {
		if !c.Secure || c.Path != "/" {
			t.Fatalf("cookie %s not normalized: %+v", c.Name, c)
		}
	}
}

func TestCookieCollectorSignalsOnce(t *testing.T) {
	collector := newCookieCollector()

	select {
	case <-collector.Done():
		t.Fatal("collector should not be done before any batch")
	default:
	}

	collector.SetAll([]Cookie{{Name: "a", Value: "1"}})
	collector.SetAll([]Cookie{{Name: "b", Value: "2"}})

	select {
	case <-collector.Done():
	default:
		t.Fatal("collector should be done after a batch")
	}
	if collector.Len() != 2 {
		t.Fatalf("expected both batches collected got %d", collector.Len())
	}
}
