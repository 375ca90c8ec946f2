package artisan

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/deixis/tinker/internal/config"
	"github.com/deixis/tinker/internal/runner"
)

// Strategy decides how a code snippet reaches the PHP interpreter.
type Strategy interface {
	// Name identifies the strategy in records, logs and spans.
	Name() string
	// Marker is the file, relative to the project root, that must exist
	// before anything is spawned.
	Marker() string
	// NotFound is the text returned when the marker is missing.
	NotFound() string
	// Command builds the child process for one snippet.
	Command(php, project, code string) runner.Command
	// Text reduces the captured streams to the result text.
	Text(res *runner.Result) string
}

// NewStrategy returns the strategy selected in cfg.
func NewStrategy(cfg *config.Config) (Strategy, error) {
	switch cfg.Strategy() {
	case config.StrategyTinker:
		return Tinker{}, nil
	case config.StrategyInline:
		return InlineEval{AllowRemoteIncludes: cfg.InlineEval.AllowRemoteIncludes}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy())
}

// Tinker pipes the snippet into `php <project>/artisan tinker`. Closing
// stdin after the snippet ends the REPL read loop. The result is stdout
// followed by stderr, whatever the exit status.
type Tinker struct{}

func (Tinker) Name() string     { return config.StrategyTinker }
func (Tinker) Marker() string   { return "artisan" }
func (Tinker) NotFound() string { return "Artisan command not found" }

func (Tinker) Command(php, project, code string) runner.Command {
	return runner.Command{
		Argv:  []string{php, filepath.Join(project, "artisan"), "tinker"},
		Dir:   project,
		Stdin: []byte(code),
	}
}

func (Tinker) Text(res *runner.Result) string {
	return combined(res)
}

// InlineEval evaluates the snippet with `php -r` after requiring the
// project's Composer autoloader. The result is stdout on success and
// stderr otherwise.
//
// AllowRemoteIncludes turns on allow_url_fopen and allow_url_include,
// which lets the snippet include code fetched over the network.
type InlineEval struct {
	AllowRemoteIncludes bool
}

func (InlineEval) Name() string     { return config.StrategyInline }
func (InlineEval) Marker() string   { return filepath.Join("vendor", "autoload.php") }
func (InlineEval) NotFound() string { return "Autoload file not found" }

func (s InlineEval) Command(php, project, code string) runner.Command {
	autoload := filepath.Join(project, "vendor", "autoload.php")

	argv := []string{php}
	if s.AllowRemoteIncludes {
		argv = append(argv, "-d", "allow_url_fopen=On", "-d", "allow_url_include=On")
	}
	argv = append(argv, "-r", "require '"+phpQuote(autoload)+"'; "+stripOpenTag(code))

	return runner.Command{Argv: argv, Dir: project}
}

func (InlineEval) Text(res *runner.Result) string {
	if res.ExitCode == 0 {
		return string(res.Stdout)
	}
	return string(res.Stderr)
}

// combined concatenates stdout and stderr in that order.
func combined(res *runner.Result) string {
	out := make([]byte, 0, len(res.Stdout)+len(res.Stderr))
	out = append(out, res.Stdout...)
	out = append(out, res.Stderr...)
	return string(out)
}

// phpQuote escapes s for use inside a single-quoted PHP string.
func phpQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// stripOpenTag drops a leading <?php tag, which php -r rejects.
func stripOpenTag(code string) string {
	trimmed := strings.TrimLeft(code, " \t\r\n")
	if strings.HasPrefix(trimmed, "<?php") {
		return strings.TrimPrefix(trimmed, "<?php")
	}
	return code
}
