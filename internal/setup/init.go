// Package setup handles hatloop workspace initialization.
package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/msageha/hatloop/internal/model"
	atomicyaml "github.com/msageha/hatloop/internal/yaml"
	"github.com/msageha/hatloop/templates"
)

// Options controls Run.
type Options struct {
	// Force overwrites an existing hatloop.yml and PROMPT.md.
	Force bool
}

// Result lists what Run wrote, relative to the project directory.
type Result struct {
	Created []string
	Skipped []string
}

// Run initializes a hatloop workspace in projectDir: the state directory,
// the default configuration preset, and a starter prompt file.
func Run(projectDir string, opts Options) (Result, error) {
	var res Result
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return res, fmt.Errorf("resolve project dir: %w", err)
	}

	configPath := filepath.Join(absDir, model.DefaultConfigFile)
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return res, fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	preset, err := fs.ReadFile(templates.FS, model.DefaultConfigFile)
	if err != nil {
		return res, fmt.Errorf("read config template: %w", err)
	}
	cfg, err := model.Parse(preset)
	if err != nil {
		return res, fmt.Errorf("parse config template: %w", err)
	}
	cfg = model.ApplyDefaults(cfg)

	for _, d := range []string{cfg.Core.StateDir, filepath.Join(cfg.Core.StateDir, "logs")} {
		if err := os.MkdirAll(filepath.Join(absDir, d), 0755); err != nil {
			return res, fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	res.Created = append(res.Created, cfg.Core.StateDir+string(filepath.Separator))

	if err := atomicyaml.AtomicWriteRaw(configPath, preset); err != nil {
		return res, fmt.Errorf("write %s: %w", model.DefaultConfigFile, err)
	}
	res.Created = append(res.Created, model.DefaultConfigFile)

	promptPath := filepath.Join(absDir, cfg.EventLoop.PromptFile)
	written, err := copyTemplateFile(model.DefaultPromptFile, promptPath, opts.Force)
	if err != nil {
		return res, err
	}
	if written {
		res.Created = append(res.Created, cfg.EventLoop.PromptFile)
	} else {
		res.Skipped = append(res.Skipped, cfg.EventLoop.PromptFile)
	}
	return res, nil
}

func copyTemplateFile(name, dst string, overwrite bool) (bool, error) {
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("stat %s: %w", dst, err)
		}
	}
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return false, fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return false, fmt.Errorf("write %s: %w", dst, err)
	}
	return true, nil
}
