package fetch

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestExtractReadable_UsesReadabilityWhenAvailable(t *testing.T) {
	html := `<html><head><title>My Article</title></head><body>
<article><p>This is the first paragraph of a long enough article body to satisfy readability heuristics.</p>
<p>This is the second paragraph, adding more real sentence content so extraction succeeds reliably.</p></article>
</body></html>`

	u, _ := url.Parse("https://example.com/article")
	title, text := extractReadable([]byte(html), u)

	if text == "" {
		t.Fatal("expected non-empty extracted text")
	}
	if !strings.Contains(text, "first paragraph") {
		t.Errorf("expected extracted text to contain article body, got %q", text)
	}
	_ = title
}

func TestExtractReadable_FallsBackToGoqueryOnUnparseableHTML(t *testing.T) {
	html := `<title>Fallback Title</title><p>fallback paragraph one</p><p>fallback paragraph two</p>`

	title, text := extractReadable([]byte(html), nil)

	if !strings.Contains(text, "fallback paragraph one") || !strings.Contains(text, "fallback paragraph two") {
		t.Errorf("expected goquery fallback to collect paragraph text, got %q", text)
	}
	if title != "Fallback Title" {
		t.Errorf("expected fallback title extracted, got %q", title)
	}
}

func TestExtractReadable_NoContentReturnsEmpty(t *testing.T) {
	title, text := extractReadable([]byte("not even html"), nil)
	if title != "" || text != "" {
		t.Errorf("expected empty title/text for unextractable input, got title=%q text=%q", title, text)
	}
}

func newTestPlainFetcher() *PlainFetcher {
	cfg := DefaultConfig()
	cfg.DenyPrivateIPs = false // httptest servers bind to 127.0.0.1
	cfg.Timeout = 5 * time.Second
	return NewPlainFetcher(cfg)
}

func TestExtractMetadata_AuthorAndImages(t *testing.T) {
	html := `<html><head><meta name="author" content="Jane Doe"></head><body>
<article>
<img src="https://cdn.example.com/a.jpg">
<img src="/relative/b.jpg">
<img src="data:image/png;base64,abc">
</article>
</body></html>`

	u, _ := url.Parse("https://example.com/article")
	author, images := extractMetadata([]byte(html), u)

	if author != "Jane Doe" {
		t.Errorf("expected author %q, got %q", "Jane Doe", author)
	}
	want := []string{"https://cdn.example.com/a.jpg", "https://example.com/relative/b.jpg"}
	if len(images) != len(want) {
		t.Fatalf("expected %d images, got %d: %v", len(want), len(images), images)
	}
	for i := range want {
		if images[i] != want[i] {
			t.Errorf("image %d: got %q, want %q", i, images[i], want[i])
		}
	}
}

func TestPlainFetcher_Fetch_HappyPath(t *testing.T) {
	html := `<html><head><title>Server Article</title></head><body>
<article><p>Served content paragraph with enough words to be extracted as the main body text.</p></article>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(html))
	}))
	defer srv.Close()

	f := newTestPlainFetcher()
	body, err := f.Fetch(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body.BodyText, "Served content paragraph") {
		t.Errorf("expected body text extracted, got %q", body.BodyText)
	}
	if f.Kind() != "plain_http" {
		t.Errorf("unexpected kind: %s", f.Kind())
	}
}

func TestPlainFetcher_Fetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestPlainFetcher()
	_, err := f.Fetch(t.Context(), srv.URL)
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestPlainFetcher_Fetch_NoExtractableContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body></body></html>"))
	}))
	defer srv.Close()

	f := newTestPlainFetcher()
	_, err := f.Fetch(t.Context(), srv.URL)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestPlainFetcher_Fetch_InvalidURL(t *testing.T) {
	f := newTestPlainFetcher()
	_, err := f.Fetch(t.Context(), "not-a-url")
	if !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

func TestPlainFetcher_Fetch_BodyTooLarge(t *testing.T) {
	big := strings.Repeat("a", 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>" + big + "</p></body></html>"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.DenyPrivateIPs = false
	cfg.MaxBodySize = 100
	f := NewPlainFetcher(cfg)

	_, err := f.Fetch(t.Context(), srv.URL)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("expected ErrBodyTooLarge, got %v", err)
	}
}
