package cocgw

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Valid(t *testing.T) {
	data := `{
		"accounts": [
			{"email": "a@example.com", "password": "pw-a"},
			{"email": "b@example.com", "password": "pw-b"}
		],
		"refresh": {"interval_seconds": 600, "concurrency": 2}
	}`
	path := writeTempFile(t, "config.json", data)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Accounts) != 2 {
		t.Errorf("expected 2 accounts, got %d", len(cfg.Accounts))
	}
	if cfg.Refresh.Interval() != 10*time.Minute {
		t.Errorf("expected interval 10m, got %s", cfg.Refresh.Interval())
	}
	if err := ValidateConfig(*cfg); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig("/tmp/does-not-exist-config-12345.json")
	if err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeTempFile(t, "bad.json", `{invalid`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoadConfig_ExpandsPasswordEnv(t *testing.T) {
	t.Setenv("COCGW_TEST_PASSWORD", "from-env")
	data := `
accounts:
  - email: a@example.com
    password: ${COCGW_TEST_PASSWORD}
`
	path := writeTempFile(t, "config.yaml", data)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Accounts[0].Password; got != "from-env" {
		t.Errorf("expected expanded password, got %q", got)
	}
}

func TestValidateConfig_Valid(t *testing.T) {
	cfg := Config{
		Accounts: []AccountConfig{{Email: "a@example.com", Password: "pw"}},
		Portal:   PortalConfig{BaseURL: "http://127.0.0.1:9000/api"},
		Refresh:  RefreshConfig{AutoCreateKey: "cocgw"},
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateConfig_NoAccounts(t *testing.T) {
	if err := ValidateConfig(Config{}); err == nil {
		t.Fatal("expected error for empty accounts")
	}
}

func TestValidateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing password",
			cfg:  Config{Accounts: []AccountConfig{{Email: "a@example.com"}}},
		},
		{
			name: "malformed email",
			cfg:  Config{Accounts: []AccountConfig{{Email: "not-an-email", Password: "pw"}}},
		},
		{
			name: "duplicate email",
			cfg: Config{Accounts: []AccountConfig{
				{Email: "a@example.com", Password: "pw"},
				{Email: "A@Example.com", Password: "pw2"},
			}},
			want: "duplicates accounts[0]",
		},
		{
			name: "bad portal url",
			cfg: Config{
				Accounts: []AccountConfig{{Email: "a@example.com", Password: "pw"}},
				Portal:   PortalConfig{BaseURL: "ftp://portal"},
			},
		},
		{
			name: "negative concurrency",
			cfg: Config{
				Accounts: []AccountConfig{{Email: "a@example.com", Password: "pw"}},
				Refresh:  RefreshConfig{Concurrency: -1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	data := `
accounts:
  - email: a@example.com
    password: pw
portal:
  base_url: http://localhost:8081/api
  timeout_seconds: 5
refresh:
  auto_create_key: cocgw
`
	path := writeTempFile(t, "config.yaml", data)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Portal.BaseURL != "http://localhost:8081/api" {
		t.Errorf("expected portal base url, got %q", cfg.Portal.BaseURL)
	}
	if cfg.Portal.Timeout() != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.Portal.Timeout())
	}
	if cfg.Refresh.AutoCreateKey != "cocgw" {
		t.Errorf("expected auto_create_key cocgw, got %q", cfg.Refresh.AutoCreateKey)
	}
	if len(cfg.ManagerOptions()) != 2 {
		t.Errorf("expected 2 manager options, got %d", len(cfg.ManagerOptions()))
	}
}

func TestLoadConfig_YML(t *testing.T) {
	data := `
accounts:
  - email: a@example.com
    password: pw
`
	path := writeTempFile(t, "config.yml", data)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Refresh.Interval() != DefaultRefreshInterval {
		t.Errorf("expected default interval, got %s", cfg.Refresh.Interval())
	}
	if cfg.API.Timeout() != DefaultTimeout {
		t.Errorf("expected default timeout, got %s", cfg.API.Timeout())
	}
}

func TestLoadConfig_UnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "config.toml", "key = value")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
