package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestApifyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acts/apify~website-content-crawler/run-sync-get-dataset-items" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("token") != "tok" {
			t.Errorf("token missing")
		}
		var in apifyInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		if len(in.StartURLs) != 1 || in.StartURLs[0].URL != "https://shop.test/p/1" || in.MaxCrawlPages != 1 {
			t.Errorf("input = %+v", in)
		}
		_, _ = io.WriteString(w, `[{"url":"https://shop.test/p/1","text":"","markdown":"# Shoe\nGreat shoe","metadata":{"title":"Shoe","description":"A shoe"}}]`)
	}))
	defer srv.Close()

	p, err := NewApify(srv.URL, "tok", "", nil).Page(context.Background(), "https://shop.test/p/1")
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if p.Title != "Shoe" || !strings.Contains(p.Text, "Great shoe") {
		t.Fatalf("page = %+v", p)
	}
}

func TestApifyNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := NewApify(srv.URL, "tok", "", nil).Page(context.Background(), "https://shop.test")
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}

func TestApifyRejectsBadURL(t *testing.T) {
	if _, err := NewApify("", "tok", "", nil).Page(context.Background(), "javascript:alert(1)"); err == nil {
		t.Fatalf("expected invalid url error")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 2); got != "hé" {
		t.Fatalf("truncate = %q", got)
	}
}
