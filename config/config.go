package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"lukechampine.com/blake3"
)

// ErrInvalid marks configuration errors that must abort the run before
// any extraction begins.
var ErrInvalid = errors.New("invalid configuration")

// Rule fields that a pattern can be matched against.
const (
	FieldSender     = "sender"
	FieldSubject    = "subject"
	FieldBody       = "body"
	FieldAttachment = "attachment"
)

// Rule is one filter rule of the rule set. Rules are evaluated in
// declared order; the first matching rule determines the primary
// classification of a message.
type Rule struct {
	ID      string `toml:"id"`
	Field   string `toml:"field"`
	Pattern string `toml:"pattern"`
	Action  string `toml:"action"`
}

// Recipient maps one report consumer to the section labels they receive.
type Recipient struct {
	ID       string   `toml:"id"`
	Address  string   `toml:"address"`
	Sections []string `toml:"sections"`
}

// Config is the immutable run configuration: which sections to scan,
// the rule set, the recipient table and the rename table. It is loaded
// once per run and passed by value into each component.
type Config struct {
	Sections   []string          `toml:"sections"`
	Rules      []Rule            `toml:"rule"`
	Recipients []Recipient       `toml:"recipient"`
	Renames    map[string]string `toml:"rename"`
}

// Load reads and validates a TOML configuration file.
func Load(path string) (Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%w: unknown keys: %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the structural invariants of the configuration.
func (c Config) Validate() error {
	if len(c.Sections) == 0 {
		return fmt.Errorf("%w: at least one section label is required", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(c.Sections))
	for _, label := range c.Sections {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("%w: empty section label", ErrInvalid)
		}
		if _, dup := seen[label]; dup {
			return fmt.Errorf("%w: duplicate section label %q", ErrInvalid, label)
		}
		seen[label] = struct{}{}
	}

	if len(c.Rules) == 0 {
		return fmt.Errorf("%w: at least one rule is required", ErrInvalid)
	}
	ruleIDs := make(map[string]struct{}, len(c.Rules))
	for i, r := range c.Rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rule %d has no id", ErrInvalid, i)
		}
		if _, dup := ruleIDs[r.ID]; dup {
			return fmt.Errorf("%w: duplicate rule id %q", ErrInvalid, r.ID)
		}
		ruleIDs[r.ID] = struct{}{}
		switch r.Field {
		case FieldSender, FieldSubject, FieldBody, FieldAttachment:
		default:
			return fmt.Errorf("%w: rule %q: unknown field %q", ErrInvalid, r.ID, r.Field)
		}
		if r.Pattern == "" {
			return fmt.Errorf("%w: rule %q has no pattern", ErrInvalid, r.ID)
		}
	}

	recipientIDs := make(map[string]struct{}, len(c.Recipients))
	for i, r := range c.Recipients {
		if r.ID == "" {
			return fmt.Errorf("%w: recipient %d has no id", ErrInvalid, i)
		}
		if _, dup := recipientIDs[r.ID]; dup {
			return fmt.Errorf("%w: duplicate recipient id %q", ErrInvalid, r.ID)
		}
		recipientIDs[r.ID] = struct{}{}
		if r.Address == "" {
			return fmt.Errorf("%w: recipient %q has no address", ErrInvalid, r.ID)
		}
	}

	return nil
}

// DisplayName resolves a section label through the rename table, falling
// back to the raw label when no entry exists.
func (c Config) DisplayName(label string) string {
	if name, ok := c.Renames[label]; ok && name != "" {
		return name
	}
	return label
}

// Fingerprint derives a stable identifier for this exact configuration
// snapshot. Reports are stamped with it so a stale plan can be detected
// when the configuration changes between extraction and distribution.
func (c Config) Fingerprint() string {
	h := blake3.New(32, nil)
	writeField := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
		h.Write([]byte{'\n'})
	}

	writeField(c.Sections...)
	for _, r := range c.Rules {
		writeField(r.ID, r.Field, r.Pattern, r.Action)
	}
	for _, r := range c.Recipients {
		writeField(append([]string{r.ID, r.Address}, r.Sections...)...)
	}
	keys := make([]string, 0, len(c.Renames))
	for k := range c.Renames {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(k, c.Renames[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// WriteExample writes a commented example configuration, used by the
// init subcommand.
func WriteExample(path string) error {
	const example = `# mail-audit run configuration

# Mail-store sections to scan, in processing order.
sections = ["Internal", "Others"]

[[rule]]
id = "wire-transfer"
field = "subject"
pattern = "wire transfer"
action = "flagged"

[[rule]]
id = "pattern-code"
field = "body"
pattern = "(?P<code>[A-Z][0-9]{3})"
action = "flagged"

[[recipient]]
id = "fraud-team"
address = "fraud-team@example.com"
sections = ["Internal"]

[rename]
Internal = "Internal Fraud"
`
	return os.WriteFile(path, []byte(example), 0o644)
}
