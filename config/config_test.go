package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Sections: []string{"Internal", "Others"},
		Rules: []Rule{
			{ID: "wire-transfer", Field: FieldSubject, Pattern: "wire transfer", Action: "flagged"},
		},
		Recipients: []Recipient{
			{ID: "fraud-team", Address: "fraud@example.com", Sections: []string{"Internal"}},
		},
		Renames: map[string]string{"Internal": "Internal Fraud"},
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
sections = ["Internal", "Others"]

[[rule]]
id = "wire-transfer"
field = "subject"
pattern = "wire transfer"
action = "flagged"

[[recipient]]
id = "fraud-team"
address = "fraud@example.com"
sections = ["Internal"]

[rename]
Internal = "Internal Fraud"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Internal", "Others"}, cfg.Sections)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "wire-transfer", cfg.Rules[0].ID)
	require.Len(t, cfg.Recipients, 1)
	assert.Equal(t, "fraud@example.com", cfg.Recipients[0].Address)
	assert.Equal(t, "Internal Fraud", cfg.Renames["Internal"])
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
sections = ["Internal"]
bogus = true

[[rule]]
id = "r1"
field = "subject"
pattern = "x"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no sections", func(c *Config) { c.Sections = nil }},
		{"empty section label", func(c *Config) { c.Sections = []string{" "} }},
		{"duplicate section", func(c *Config) { c.Sections = []string{"A", "A"} }},
		{"no rules", func(c *Config) { c.Rules = nil }},
		{"rule without id", func(c *Config) { c.Rules[0].ID = "" }},
		{"rule without pattern", func(c *Config) { c.Rules[0].Pattern = "" }},
		{"unknown rule field", func(c *Config) { c.Rules[0].Field = "header" }},
		{"recipient without id", func(c *Config) { c.Recipients[0].ID = "" }},
		{"recipient without address", func(c *Config) { c.Recipients[0].Address = "" }},
		{"duplicate rule id", func(c *Config) {
			c.Rules = append(c.Rules, c.Rules[0])
		}},
		{"duplicate recipient id", func(c *Config) {
			c.Recipients = append(c.Recipients, c.Recipients[0])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	assert.NoError(t, validConfig().Validate())
}

func TestDisplayName(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "Internal Fraud", cfg.DisplayName("Internal"))
	assert.Equal(t, "Others", cfg.DisplayName("Others"))
}

func TestFingerprint(t *testing.T) {
	a := validConfig()
	b := validConfig()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "identical configs must fingerprint identically")

	b.Rules[0].Pattern = "transfer request"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint(), "pattern change must change the fingerprint")

	c := validConfig()
	c.Renames["Others"] = "Miscellaneous"
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint(), "rename change must change the fingerprint")
}

func TestWriteExampleLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.toml")
	require.NoError(t, WriteExample(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Sections)
	assert.NotEmpty(t, cfg.Rules)
}
