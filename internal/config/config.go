package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Trailing-edit policies for lines changed after the last checkpoint.
const (
	TrailingLastCheckpoint = "last-checkpoint"
	TrailingUnattributed   = "unattributed"
)

// SetDefaults registers every known key with its default value.
func SetDefaults() {
	viper.SetDefault("reconcile.timeout", "5s")
	viper.SetDefault("reconcile.trailing_edits", TrailingLastCheckpoint)
	viper.SetDefault("reconcile.seed_baseline", true)
	viper.SetDefault("ledger.notes_ref", "refs/notes/ai-track")
	viper.SetDefault("ledger.publish_attempts", 3)
	viper.SetDefault("ledger.remote", "origin")
	viper.SetDefault("retention.days", 30)
	viper.SetDefault("watch.debounce", "2s")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("stats.ignore", []string{})
}

// Load reads the user config ($HOME/.config/git-aitrack/config.toml) and then
// merges the repository config on top of it. Missing files are not an error.
func Load(userFile, repoFile string) error {
	SetDefaults()
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("AITRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for _, f := range []string{userFile, repoFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		viper.SetConfigFile(f)
		if err := viper.MergeInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", f, err)
		}
	}
	return nil
}

// UserFile returns the per-user config path.
func UserFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "git-aitrack", "config.toml")
}

// ReconcileTimeout bounds post-commit work so the host commit is never held up.
func ReconcileTimeout() time.Duration {
	return durationOr("reconcile.timeout", 5*time.Second)
}

// TrailingEdits returns the policy for edits made after the last checkpoint.
func TrailingEdits() string {
	if viper.GetString("reconcile.trailing_edits") == TrailingUnattributed {
		return TrailingUnattributed
	}
	return TrailingLastCheckpoint
}

// SeedBaseline reports whether unchanged base lines inherit prior ledger authorship.
func SeedBaseline() bool {
	return viper.GetBool("reconcile.seed_baseline")
}

// NotesRef returns the git notes ref holding ledger entries.
func NotesRef() string {
	return viper.GetString("ledger.notes_ref")
}

// PublishAttempts returns how often a ledger publish is tried before giving up.
func PublishAttempts() int {
	if n := viper.GetInt("ledger.publish_attempts"); n > 0 {
		return n
	}
	return 1
}

// Remote returns the remote ledger notes are pushed to.
func Remote() string {
	return viper.GetString("ledger.remote")
}

// RetentionDays returns how long archived checkpoint logs are kept.
func RetentionDays() int {
	return viper.GetInt("retention.days")
}

// WatchDebounce returns the quiet period before watch mode records a checkpoint.
func WatchDebounce() time.Duration {
	return durationOr("watch.debounce", 2*time.Second)
}

// LogLevel returns the configured log level name.
func LogLevel() string {
	return viper.GetString("log.level")
}

// IgnorePatterns returns glob patterns excluded from stats.
func IgnorePatterns() []string {
	return viper.GetStringSlice("stats.ignore")
}

func durationOr(key string, fallback time.Duration) time.Duration {
	d := viper.GetDuration(key)
	if d <= 0 {
		return fallback
	}
	return d
}

// File mirrors the on-disk TOML layout.
type File struct {
	Reconcile struct {
		Timeout       string `toml:"timeout"`
		TrailingEdits string `toml:"trailing_edits"`
		SeedBaseline  bool   `toml:"seed_baseline"`
	} `toml:"reconcile"`
	Ledger struct {
		NotesRef        string `toml:"notes_ref"`
		PublishAttempts int    `toml:"publish_attempts"`
		Remote          string `toml:"remote"`
	} `toml:"ledger"`
	Retention struct {
		Days int `toml:"days"`
	} `toml:"retention"`
	Watch struct {
		Debounce string `toml:"debounce"`
	} `toml:"watch"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
	Stats struct {
		Ignore []string `toml:"ignore"`
	} `toml:"stats"`
}

// Current snapshots the effective settings into a File.
func Current() File {
	var f File
	f.Reconcile.Timeout = ReconcileTimeout().String()
	f.Reconcile.TrailingEdits = TrailingEdits()
	f.Reconcile.SeedBaseline = SeedBaseline()
	f.Ledger.NotesRef = NotesRef()
	f.Ledger.PublishAttempts = PublishAttempts()
	f.Ledger.Remote = Remote()
	f.Retention.Days = RetentionDays()
	f.Watch.Debounce = WatchDebounce().String()
	f.Log.Level = LogLevel()
	f.Stats.Ignore = IgnorePatterns()
	return f
}

// Write stores f as TOML at path. Refuses to overwrite unless force is set.
func Write(path string, f File, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return Encode(out, f)
}

// Encode writes f as TOML.
func Encode(w io.Writer, f File) error {
	return toml.NewEncoder(w).Encode(f)
}
