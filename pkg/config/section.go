package config

import (
	"strconv"
	"strings"

	"zprobe-go-migration/pkg/errors"
)

// Section provides typed access to the options of one config section.
type Section struct {
	name    string
	options map[string]string
}

// GetName returns the section name.
func (s *Section) GetName() string {
	return s.name
}

// HasOption checks if an option exists in this section.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

// Get returns a string option value, or the fallback when absent.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	if v, ok := s.options[strings.ToLower(option)]; ok {
		return v, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return "", errors.Newf(errors.ErrConfigOption, "option %q not found in section %q", option, s.name)
}

// GetInt returns an integer option value.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	if v, ok := s.options[strings.ToLower(option)]; ok {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errors.Newf(errors.ErrConfigOption, "option %q in section %q: %q is not an integer", option, s.name, v)
		}
		return i, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return 0, errors.Newf(errors.ErrConfigOption, "option %q not found in section %q", option, s.name)
}

// GetFloat returns a float option value.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	if v, ok := s.options[strings.ToLower(option)]; ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errors.Newf(errors.ErrConfigOption, "option %q in section %q: %q is not a number", option, s.name, v)
		}
		return f, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return 0, errors.Newf(errors.ErrConfigOption, "option %q not found in section %q", option, s.name)
}

// GetBool returns a boolean option value. Accepts true/false, 1/0, yes/no,
// on/off.
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	if v, ok := s.options[strings.ToLower(option)]; ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return false, errors.Newf(errors.ErrConfigOption, "option %q in section %q: %q is not a boolean", option, s.name, v)
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return false, errors.Newf(errors.ErrConfigOption, "option %q not found in section %q", option, s.name)
}
