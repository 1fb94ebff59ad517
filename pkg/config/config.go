package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// Config provides access to an INI-style configuration with typed getters.
// Sections use the [name] header form; options are "key: value" or
// "key = value" lines, with # and ; comments.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string
}

// New creates a new empty Config.
func New() *Config {
	return &Config{
		sections: make(map[string]*Section),
	}
}

// Load reads a configuration file and returns a Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()
	c := New()
	if err := c.parse(f, path); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse reads configuration from a reader (e.g., for testing).
func Parse(r io.Reader) (*Config, error) {
	c := New()
	if err := c.parse(r, "<reader>"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parse(r io.Reader, path string) error {
	var current *Section

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return fmt.Errorf("config: malformed section header at line %d in %s", lineNum, path)
			}
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return fmt.Errorf("config: empty section header at line %d in %s", lineNum, path)
			}
			current = c.getOrCreate(header)
			continue
		}

		// Skip options before the first section
		if current == nil {
			continue
		}

		// Parse key: value or key = value
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			kv = strings.SplitN(line, "=", 2)
		}
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(stripInlineComment(kv[1]))
		if key == "" {
			continue
		}
		current.options[strings.ToLower(key)] = value
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("config: error reading %s: %w", path, err)
	}
	return nil
}

func stripInlineComment(s string) string {
	for _, marker := range []string{" #", " ;"} {
		if i := strings.Index(s, marker); i >= 0 {
			s = s[:i]
		}
	}
	return s
}

func (c *Config) getOrCreate(name string) *Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(name)
	if s, ok := c.sections[key]; ok {
		return s
	}
	s := &Section{name: name, options: make(map[string]string)}
	c.sections[key] = s
	c.order = append(c.order, key)
	return s
}

// Section returns a named section, or false if it does not exist.
func (c *Config) Section(name string) (*Section, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sections[strings.ToLower(name)]
	return s, ok
}

// SectionOrDefault returns a named section, or an empty one so that callers
// fall through to their option defaults.
func (c *Config) SectionOrDefault(name string) *Section {
	if s, ok := c.Section(name); ok {
		return s
	}
	return &Section{name: name, options: make(map[string]string)}
}

// SectionNames returns all section names in file order.
func (c *Config) SectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Dump renders the config back as text, sections in file order and options
// sorted, mainly for diagnostics.
func (c *Config) Dump() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var sb strings.Builder
	for _, name := range c.order {
		s := c.sections[name]
		fmt.Fprintf(&sb, "[%s]\n", s.name)
		keys := make([]string, 0, len(s.options))
		for k := range s.options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s: %s\n", k, s.options[k])
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
