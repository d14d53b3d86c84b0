// Package script runs proof scripts: YAML files naming a theorem and the
// tactics that prove it.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/erg0nix/petanque/internal/session"
)

const (
	ExpectFinished = "finished"
	ExpectOpen     = "open"
)

var (
	ErrInvalidScript     = errors.New("script: invalid script")
	ErrExpectationFailed = errors.New("script: expectation failed")
)

// Script is one proof script. Root and File are absolute after Load.
type Script struct {
	Path    string   `yaml:"-"`
	Root    string   `yaml:"root,omitempty"`
	File    string   `yaml:"file"`
	Theorem string   `yaml:"theorem"`
	Tactics []string `yaml:"tactics"`
	Expect  string   `yaml:"expect,omitempty"`
}

// Load reads a script file. Relative root and file paths resolve against the
// script's directory; an empty root means that directory.
func Load(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("script: read %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Script{}, fmt.Errorf("script: resolve %s: %w", path, err)
	}

	sc, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return Script{}, fmt.Errorf("%s: %w", path, err)
	}
	sc.Path = path
	return sc, nil
}

// Parse decodes a script and resolves its paths against dir.
func Parse(data []byte, dir string) (Script, error) {
	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Script{}, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}

	sc.Theorem = strings.TrimSpace(sc.Theorem)
	sc.Expect = strings.ToLower(strings.TrimSpace(sc.Expect))
	sc.Root = resolve(dir, sc.Root)
	if strings.TrimSpace(sc.File) != "" {
		sc.File = resolve(dir, sc.File)
	}

	if err := sc.Validate(); err != nil {
		return Script{}, err
	}
	return sc, nil
}

func (s Script) Validate() error {
	if strings.TrimSpace(s.File) == "" {
		return fmt.Errorf("%w: missing file", ErrInvalidScript)
	}
	if s.Theorem == "" {
		return fmt.Errorf("%w: missing theorem", ErrInvalidScript)
	}
	for i, tac := range s.Tactics {
		if strings.TrimSpace(tac) == "" {
			return fmt.Errorf("%w: tactics[%d] is empty", ErrInvalidScript, i)
		}
	}
	switch s.Expect {
	case "", ExpectFinished, ExpectOpen:
	default:
		return fmt.Errorf("%w: expect must be %q or %q", ErrInvalidScript, ExpectFinished, ExpectOpen)
	}
	return nil
}

func resolve(dir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return dir
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

// Step records one executed tactic.
type Step struct {
	Tactic   string `json:"tactic" yaml:"tactic"`
	StateID  int    `json:"state_id" yaml:"state_id"`
	Finished bool   `json:"finished" yaml:"finished"`
}

// Outcome is what running a script produced, also on failure.
type Outcome struct {
	Theorem   string               `json:"theorem" yaml:"theorem"`
	Steps     []Step               `json:"steps" yaml:"steps"`
	Finished  bool                 `json:"finished" yaml:"finished"`
	OpenGoals int                  `json:"open_goals" yaml:"open_goals"`
	History   []session.ProofState `json:"history" yaml:"history"`
}

// Run executes sc on its own connection.
func Run(ctx context.Context, cfg session.Config, sc Script) (Outcome, error) {
	out := Outcome{Theorem: sc.Theorem}

	err := session.With(ctx, cfg, func(s *session.Session) error {
		defer func() { out.History = s.History() }()

		if err := s.Init(ctx, sc.Root); err != nil {
			return err
		}
		if err := s.Start(ctx, sc.File, sc.Theorem); err != nil {
			return err
		}

		for i, tac := range sc.Tactics {
			res, err := s.RunTactic(ctx, tac)
			if err != nil {
				return fmt.Errorf("tactic %d (%q): %w", i+1, tac, err)
			}
			out.Steps = append(out.Steps, Step{Tactic: tac, StateID: res.StateID, Finished: res.Finished()})
			out.Finished = res.Finished()
			if out.Finished && i < len(sc.Tactics)-1 {
				return fmt.Errorf("%w: proof finished after tactic %d, %d left", ErrExpectationFailed, i+1, len(sc.Tactics)-i-1)
			}
		}

		if !out.Finished {
			goals, err := s.Goals(ctx)
			if err != nil {
				return err
			}
			out.OpenGoals = len(goals.Goals)
		}
		return nil
	})
	if err != nil {
		return out, err
	}

	switch {
	case sc.Expect == ExpectFinished && !out.Finished:
		return out, fmt.Errorf("%w: %s left %d open goals", ErrExpectationFailed, sc.Theorem, out.OpenGoals)
	case sc.Expect == ExpectOpen && out.Finished:
		return out, fmt.Errorf("%w: %s was expected to stay open", ErrExpectationFailed, sc.Theorem)
	}
	return out, nil
}
