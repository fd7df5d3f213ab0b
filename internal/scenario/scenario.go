// Package scenario runs scripted navigation sessions against the sample units.
// A scenario is a YAML document listing steps (open, request, reply, back,
// tombstone, restore, ...) and expectations; Run replays it on a fresh host
// and navigator and returns a transcript.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Step operations.
const (
	OpOpen          = "open"
	OpRequest       = "request"
	OpSet           = "set"
	OpReply         = "reply"
	OpBack          = "back"
	OpTombstone     = "tombstone"
	OpRestore       = "restore"
	OpExpect        = "expect"
	OpExpectPending = "expect-pending"
	OpExpectFrames  = "expect-frames"
	OpWait          = "wait"
	OpSweep         = "sweep"
	OpGC            = "gc"
)

// Scenario is one scripted session.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// PendingMaxAge overrides Config.PendingMaxAge when set.
	PendingMaxAge Duration `yaml:"pendingMaxAge,omitempty"`
	Steps         []Step   `yaml:"steps"`
}

// Step is one action or expectation. Unit and As name units by alias.
type Step struct {
	Op       string   `yaml:"op"`
	Unit     string   `yaml:"unit,omitempty"`
	Kind     string   `yaml:"kind,omitempty"`
	As       string   `yaml:"as,omitempty"`
	Text     string   `yaml:"text,omitempty"`
	Field    string   `yaml:"field,omitempty"`
	Equals   string   `yaml:"equals,omitempty"`
	Count    *int     `yaml:"count,omitempty"`
	Duration Duration `yaml:"duration,omitempty"`
}

// Duration is a time.Duration written as "90s" or "5m" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("scenario: line %d: duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Parse decodes every YAML document in r. Unknown keys are rejected.
func Parse(r io.Reader) ([]Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var out []Scenario
	for {
		var sc Scenario
		err := dec.Decode(&sc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scenario: decode: %w", err)
		}
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if len(out) == 0 {
		return nil, errors.New("scenario: no documents")
	}
	return out, nil
}

// ParseFile reads scenarios from path.
func ParseFile(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	scenarios, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenarios, nil
}

// Validate checks that every step carries the fields its op needs.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("scenario: name required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %s: no steps", s.Name)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("scenario %s: step %d (%s): %w", s.Name, i+1, step.Op, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	need := func(field, value string) error {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s required", field)
		}
		return nil
	}
	switch s.Op {
	case OpOpen:
		if err := need("kind", s.Kind); err != nil {
			return err
		}
		return need("as", s.As)
	case OpRequest:
		if err := need("unit", s.Unit); err != nil {
			return err
		}
		return need("as", s.As)
	case OpSet, OpReply, OpTombstone, OpRestore:
		return need("unit", s.Unit)
	case OpExpect:
		if err := need("unit", s.Unit); err != nil {
			return err
		}
		return need("field", s.Field)
	case OpExpectPending, OpExpectFrames:
		if s.Count == nil {
			return errors.New("count required")
		}
		return nil
	case OpWait:
		if s.Duration <= 0 {
			return errors.New("positive duration required")
		}
		return nil
	case OpBack, OpSweep, OpGC:
		return nil
	case "":
		return errors.New("op required")
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}
