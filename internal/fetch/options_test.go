package fetch

import "testing"

func TestApplyFetchOptions_Defaults(t *testing.T) {
	o := applyFetchOptions(nil)
	if o.noCache {
		t.Error("expected noCache false by default")
	}
	if o.waitSelector != "body" {
		t.Errorf("expected default waitSelector %q, got %q", "body", o.waitSelector)
	}
}

func TestWithNoCache(t *testing.T) {
	o := applyFetchOptions([]FetchOption{WithNoCache()})
	if !o.noCache {
		t.Error("expected noCache true after WithNoCache")
	}
}

func TestWithWaitSelector(t *testing.T) {
	o := applyFetchOptions([]FetchOption{WithWaitSelector("#article-body")})
	if o.waitSelector != "#article-body" {
		t.Errorf("expected waitSelector %q, got %q", "#article-body", o.waitSelector)
	}
}

func TestApplyFetchOptions_Combined(t *testing.T) {
	o := applyFetchOptions([]FetchOption{WithNoCache(), WithWaitSelector(".content")})
	if !o.noCache || o.waitSelector != ".content" {
		t.Errorf("unexpected combined options: %+v", o)
	}
}
