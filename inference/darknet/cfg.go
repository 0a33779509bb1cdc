// Package darknet - Predictor that loads darknet .cfg/.weights networks through OpenCV DNN.
package darknet

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-darknet/inference"
)

// Section is one [name] block of a darknet .cfg file.
type Section struct {
	Name    string
	Options map[string]string
}

// Int returns the integer option key, or def when it is absent.
func (s Section) Int(key string, def int) (int, error) {
	v, ok := s.Options[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(inference.ErrInvalidNetwork, "[%s] %s=%q", s.Name, key, v)
	}
	return n, nil
}

// Floats returns the comma separated float list option key.
func (s Section) Floats(key string) ([]float32, error) {
	v, ok := s.Options[key]
	if !ok || v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, errors.Wrapf(inference.ErrInvalidNetwork, "[%s] %s=%q", s.Name, key, v)
		}
		out = append(out, float32(f))
	}
	return out, nil
}

// Config is the part of a darknet network description the predictor needs.
type Config struct {
	Sections []Section

	Width    int
	Height   int
	Channels int
	// Classes is taken from the last [region] or [yolo] section.
	Classes int
	// Anchors holds the width/height pairs of the last [region] section.
	Anchors []float32
}

// ParseConfig reads a darknet .cfg. Comments start with # or ; and option
// lines have the form key=value.
//
// Arguments:
//   - r: The .cfg contents.
//
// Returns:
//   - *Config: The parsed sections and the [net] geometry.
//   - error: ErrInvalidNetwork for malformed input.
func ParseConfig(r io.Reader) (*Config, error) {
	var sections []Section
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' || text[0] == ';' {
			continue
		}
		if text[0] == '[' {
			if !strings.HasSuffix(text, "]") {
				return nil, errors.Wrapf(inference.ErrInvalidNetwork, "line %d: unterminated section %q", line, text)
			}
			sections = append(sections, Section{
				Name:    strings.TrimSpace(text[1 : len(text)-1]),
				Options: map[string]string{},
			})
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, errors.Wrapf(inference.ErrInvalidNetwork, "line %d: expected key=value, got %q", line, text)
		}
		if len(sections) == 0 {
			return nil, errors.Wrapf(inference.ErrInvalidNetwork, "line %d: option outside of a section", line)
		}
		sections[len(sections)-1].Options[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading network config")
	}
	if len(sections) == 0 || (sections[0].Name != "net" && sections[0].Name != "network") {
		return nil, errors.Wrap(inference.ErrInvalidNetwork, "first section must be [net]")
	}

	c := &Config{Sections: sections}
	net := sections[0]
	var err error
	if c.Width, err = net.Int("width", 0); err != nil {
		return nil, err
	}
	if c.Height, err = net.Int("height", 0); err != nil {
		return nil, err
	}
	if c.Channels, err = net.Int("channels", 3); err != nil {
		return nil, err
	}
	if c.Width <= 0 || c.Height <= 0 || c.Channels <= 0 {
		return nil, errors.Wrapf(inference.ErrInvalidNetwork, "[net] geometry %dx%dx%d", c.Width, c.Height, c.Channels)
	}

	for _, s := range sections[1:] {
		switch s.Name {
		case "region", "yolo", "detection":
			if c.Classes, err = s.Int("classes", 0); err != nil {
				return nil, err
			}
			if s.Name == "region" {
				if c.Anchors, err = s.Floats("anchors"); err != nil {
					return nil, err
				}
			}
		}
	}
	if c.Classes <= 0 {
		return nil, errors.Wrap(inference.ErrInvalidNetwork, "no detection layer with classes")
	}
	return c, nil
}

// LoadConfig parses the .cfg file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(inference.ErrFileNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return ParseConfig(f)
}
