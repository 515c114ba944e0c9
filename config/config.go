// Package config loads declarative routing files (YAML, TOML or JSON) with
// viper and turns them into an xroute.Configuration. Applying a file replaces
// the runtime's active configuration; live sessions re-register their own
// rules and sinks into it.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"

	"github.com/trickstertwo/xroute"
	"github.com/trickstertwo/xroute/sink/filter"
)

// EnvPrefix is the prefix for environment overrides, e.g. XROUTE_LOG_DIR
// for log_dir.
const EnvPrefix = "XROUTE"

// File is one routing file.
type File struct {
	// LogDir is the directory relative file sink paths are placed under when
	// a sink does not set its own dir.
	LogDir string     `mapstructure:"log_dir" json:"log_dir,omitempty"`
	Sinks  []SinkSpec `mapstructure:"sinks" json:"sinks,omitempty"`
	Rules  []RuleSpec `mapstructure:"rules" json:"rules,omitempty"`
}

// SinkSpec declares one sink.
type SinkSpec struct {
	Name string `mapstructure:"name" json:"name,omitempty"`
	// Type selects the factory, see SinkTypes.
	Type string `mapstructure:"type" json:"type,omitempty"`
	// Output is "stdout" (default) or "stderr" for stream sinks.
	Output string `mapstructure:"output" json:"output,omitempty"`

	// File sinks only.
	Path       string `mapstructure:"path" json:"path,omitempty"`
	Dir        string `mapstructure:"dir" json:"dir,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb,omitempty"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups,omitempty"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days,omitempty"`
	Compress   bool   `mapstructure:"compress" json:"compress,omitempty"`

	// Filter, when set, wraps the sink so only matching entries reach it.
	Filter *FilterSpec `mapstructure:"filter" json:"filter,omitempty"`
}

// FilterSpec is a conjunction of simple conditions. Empty fields are ignored.
type FilterSpec struct {
	LoggerPrefix    string `mapstructure:"logger_prefix" json:"logger_prefix,omitempty"`
	MessageContains string `mapstructure:"message_contains" json:"message_contains,omitempty"`
	MinLevel        string `mapstructure:"min_level" json:"min_level,omitempty"`
	HasField        string `mapstructure:"has_field" json:"has_field,omitempty"`
}

// RuleSpec declares one rule.
type RuleSpec struct {
	Name    string `mapstructure:"name" json:"name,omitempty"`
	Pattern string `mapstructure:"pattern" json:"pattern,omitempty"`
	// MinLevel is the threshold; default trace.
	MinLevel string `mapstructure:"min_level" json:"min_level,omitempty"`
	// Levels, when set, replaces the threshold with an explicit level set.
	Levels []string `mapstructure:"levels" json:"levels,omitempty"`
	Sinks  []string `mapstructure:"sinks" json:"sinks,omitempty"`
	Final  bool     `mapstructure:"final" json:"final,omitempty"`
}

// Load reads path into a File and validates it.
func Load(path string) (*File, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return decode(v)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("log_dir", "")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*File, error) {
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks names, types, levels and sink references. All problems are
// reported together; each wraps xroute.ErrInvalidArgument.
func (f *File) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{xroute.ErrInvalidArgument}, args...)...))
	}

	sinks := make(map[string]bool, len(f.Sinks))
	for i, s := range f.Sinks {
		switch {
		case strings.TrimSpace(s.Name) == "":
			invalid("sinks[%d]: missing name", i)
			continue
		case sinks[s.Name]:
			invalid("sink %q declared twice", s.Name)
		}
		sinks[s.Name] = true
		if _, ok := lookupFactory(s.Type); !ok {
			invalid("sink %q: unknown type %q", s.Name, s.Type)
		}
		if s.Output != "" && s.Output != "stdout" && s.Output != "stderr" {
			invalid("sink %q: output must be stdout or stderr, got %q", s.Name, s.Output)
		}
		if s.Filter != nil && s.Filter.MinLevel != "" {
			if _, err := xroute.ParseLevel(s.Filter.MinLevel); err != nil {
				invalid("sink %q filter: %v", s.Name, err)
			}
		}
	}

	rules := make(map[string]bool, len(f.Rules))
	for i, r := range f.Rules {
		switch {
		case strings.TrimSpace(r.Name) == "":
			invalid("rules[%d]: missing name", i)
		case rules[r.Name]:
			invalid("rule %q declared twice", r.Name)
		}
		rules[r.Name] = true
		if strings.TrimSpace(r.Pattern) == "" {
			invalid("rule %q: missing pattern", r.Name)
		}
		if r.MinLevel != "" {
			if _, err := xroute.ParseLevel(r.MinLevel); err != nil {
				invalid("rule %q: %v", r.Name, err)
			}
		}
		for _, l := range r.Levels {
			if _, err := xroute.ParseLevel(l); err != nil {
				invalid("rule %q: %v", r.Name, err)
			}
		}
		if len(r.Sinks) == 0 {
			invalid("rule %q: no sinks", r.Name)
		}
		for _, s := range r.Sinks {
			if !sinks[s] {
				invalid("rule %q: unknown sink %q", r.Name, s)
			}
		}
	}
	return errors.Join(errs...)
}

// Build constructs every declared sink and rule into a new Configuration.
func (f *File) Build() (*xroute.Configuration, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	cfg := xroute.NewConfiguration()
	built := make(map[string]xroute.Sink, len(f.Sinks))
	for _, spec := range f.Sinks {
		if spec.Type == "file" && spec.Dir == "" {
			spec.Dir = f.LogDir
		}
		s, err := buildSink(spec)
		if err != nil {
			closeAll(built)
			return nil, err
		}
		built[spec.Name] = s
		if err := cfg.AddSink(s); err != nil {
			closeAll(built)
			return nil, fmt.Errorf("sink %q: %w", spec.Name, err)
		}
	}

	for _, spec := range f.Rules {
		r, err := buildRule(spec, built)
		if err != nil {
			closeAll(built)
			return nil, err
		}
		cfg.AddRule(r)
	}
	return cfg, nil
}

func buildSink(spec SinkSpec) (xroute.Sink, error) {
	factory, _ := lookupFactory(spec.Type)
	s, err := factory(spec)
	if err != nil {
		return nil, fmt.Errorf("sink %q: %w", spec.Name, err)
	}
	if spec.Filter == nil {
		return s, nil
	}
	pred, err := spec.Filter.predicate()
	if err != nil {
		return nil, fmt.Errorf("sink %q: %w", spec.Name, err)
	}
	// The wrapper takes over the declared name.
	return filter.New(spec.Name, s, pred)
}

func (fs *FilterSpec) predicate() (filter.Predicate, error) {
	var ps []filter.Predicate
	if fs.LoggerPrefix != "" {
		ps = append(ps, filter.LoggerPrefix(fs.LoggerPrefix))
	}
	if fs.MessageContains != "" {
		ps = append(ps, filter.MessageContains(fs.MessageContains))
	}
	if fs.HasField != "" {
		ps = append(ps, filter.HasField(fs.HasField))
	}
	if fs.MinLevel != "" {
		l, err := xroute.ParseLevel(fs.MinLevel)
		if err != nil {
			return nil, err
		}
		ps = append(ps, filter.MinLevel(l))
	}
	return filter.All(ps...), nil
}

func buildRule(spec RuleSpec, sinks map[string]xroute.Sink) (*xroute.Rule, error) {
	threshold := xroute.LevelTrace
	if spec.MinLevel != "" {
		threshold, _ = xroute.ParseLevel(spec.MinLevel)
	}
	rs := make([]xroute.Sink, 0, len(spec.Sinks))
	for _, name := range spec.Sinks {
		rs = append(rs, sinks[name])
	}

	r, err := xroute.NewRuleBuilder().
		Pattern(spec.Pattern).
		Sinks(rs...).
		Threshold(threshold).
		Final(spec.Final).
		Build()
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", spec.Name, err)
	}

	if len(spec.Levels) > 0 {
		r.SetThreshold(xroute.LevelOff)
		for _, name := range spec.Levels {
			l, _ := xroute.ParseLevel(name)
			if err := r.SetLevel(l, true); err != nil {
				return nil, fmt.Errorf("rule %q: %w", spec.Name, err)
			}
		}
	}
	return r, nil
}

// Apply loads path, builds it and replaces rt's active configuration. Sinks
// built by the previous file that the new configuration no longer holds are
// closed when they implement io.Closer.
func Apply(rt *xroute.Runtime, path string) error {
	if rt == nil {
		return xroute.ErrNoRuntime
	}
	f, err := Load(path)
	if err != nil {
		return err
	}
	return applyFile(rt, f)
}

func applyFile(rt *xroute.Runtime, f *File) error {
	cfg, err := f.Build()
	if err != nil {
		return err
	}
	old := rt.Active()
	if err := rt.Replace(cfg); err != nil {
		return err
	}
	closeReplaced(old, rt.Active())
	return nil
}

func closeReplaced(old, cur *xroute.Configuration) {
	for _, s := range old.Sinks() {
		if cur.HasSink(s) {
			continue
		}
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func closeAll(sinks map[string]xroute.Sink) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
