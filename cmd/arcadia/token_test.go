package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "arcadia")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	if got := cfgDir(); got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(tokenPath(), base) || !strings.HasSuffix(tokenPath(), "token.json") {
		t.Fatalf("tokenPath unexpected: %s", tokenPath())
	}
}

func Test_token_SaveLoadRemove(t *testing.T) {
	_ = withTmpConfig(t)
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	if _, err := loadToken(now); !errors.Is(err, errNoSession) {
		t.Fatalf("want errNoSession for missing file, got %v", err)
	}
	if err := saveToken(tokenFile{AccessToken: "tok", Username: "alice", ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	info, err := os.Stat(tokenPath())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode = %v, want 0600", info.Mode().Perm())
	}
	tf, err := loadToken(now)
	if err != nil || tf.AccessToken != "tok" || tf.Username != "alice" {
		t.Fatalf("loadToken: %+v err=%v", tf, err)
	}
	if _, err := loadToken(now.Add(time.Minute)); !errors.Is(err, errNoSession) {
		t.Fatalf("want errNoSession at expiry, got %v", err)
	}

	if err := removeToken(); err != nil {
		t.Fatalf("removeToken: %v", err)
	}
	if err := removeToken(); err != nil {
		t.Fatalf("second removeToken: %v", err)
	}
}

func Test_loadToken_Corrupt(t *testing.T) {
	_ = withTmpConfig(t)
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tokenPath(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadToken(time.Now()); err == nil || errors.Is(err, errNoSession) {
		t.Fatalf("want decode error, got %v", err)
	}
}
