package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAccessDefaults(t *testing.T) {
	a, err := LoadAccess("")
	if err != nil {
		t.Fatalf("load embedded access: %v", err)
	}
	if got := a.RolesFor("marketing-hooks"); len(got) != 3 {
		t.Fatalf("marketing-hooks roles = %v, want default roles", got)
	}
	got := a.RolesFor("image-to-video")
	if len(got) != 2 || got[0] != "pro" || got[1] != "admin" {
		t.Fatalf("image-to-video roles = %v", got)
	}
}

func TestLoadAccessFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.yaml")
	body := "default: [admin]\nassets:\n  faq: [user]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	a, err := LoadAccess(path)
	if err != nil {
		t.Fatalf("load access: %v", err)
	}
	if got := a.RolesFor("faq"); len(got) != 1 || got[0] != "user" {
		t.Fatalf("faq roles = %v", got)
	}
	if got := a.RolesFor("seo"); len(got) != 1 || got[0] != "admin" {
		t.Fatalf("seo roles = %v", got)
	}
}

func TestParseAccessRequiresDefault(t *testing.T) {
	if _, err := ParseAccess([]byte("assets:\n  faq: [user]\n")); err == nil {
		t.Fatalf("expected error for missing default roles")
	}
}

func TestTrustedProxiesFromEnv(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "")
	if got := Load().TrustedProxies; got != nil {
		t.Fatalf("unset proxies = %v, want nil", got)
	}
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,192.168.1.5 ")
	got := Load().TrustedProxies
	if len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "192.168.1.5" {
		t.Fatalf("proxies = %v", got)
	}
}
