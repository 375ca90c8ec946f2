// Command tinker runs PHP code and artisan commands in Laravel projects,
// directly or as an MCP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/deixis/tinker"
	"github.com/deixis/tinker/internal/artisan"
	"github.com/deixis/tinker/internal/config"
	"github.com/deixis/tinker/internal/logging"
	tinkermcp "github.com/deixis/tinker/internal/mcp"
	"github.com/deixis/tinker/internal/metrics"
	"github.com/deixis/tinker/internal/report"
	"github.com/deixis/tinker/internal/runner"
	"github.com/deixis/tinker/internal/tracing"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// errFailed reports that the invocation ran but its kind was not ok.
var errFailed = errors.New("invocation failed")

func main() {
	log.SetFlags(0)
	log.SetPrefix("tinker: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "mcp":
		err = mcpMain(args)
	case "code":
		err = codeMain(args)
	case "artisan":
		err = artisanMain(args)
	case "inspect":
		err = inspectMain(args)
	case "version":
		fmt.Println(tinker.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "tinker: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if errors.Is(err, errFailed) {
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: tinker <command> [flags] [arguments]

Commands:
  code        Evaluate PHP code in a Laravel project (reads stdin when code is "-" or absent)
  artisan     Run an artisan command in a Laravel project
  inspect     Show the full record of an earlier run
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "tinker <command> -h" for command-specific flags.`)
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(tinkermcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp("", 0)
	if err != nil {
		return err
	}
	defer a.close()

	server := tinkermcp.NewServer(a.invoker, a.store, a.project)

	if *httpAddr != "" {
		return serveHTTP(ctx, a, server, *httpAddr)
	}
	a.logger.Info("serving MCP over stdio", "project", a.project)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, a *app, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	mux := http.NewServeMux()
	a.metrics.Register(mux)
	mux.Handle("/", handler)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	a.logger.Info("listening", "addr", addr, "project", a.project)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- code ---

func codeMain(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return runCode(ctx, os.Stdin, os.Stdout, args)
}

func runCode(ctx context.Context, stdin io.Reader, stdout io.Writer, args []string) error {
	fs := flag.NewFlagSet("code", flag.ExitOnError)
	pathFlag := fs.String("path", "", "Laravel project root (default: discovered from the working directory)")
	phpFlag := fs.String("php", "", "PHP binary (default: configured, then php)")
	timeoutFlag := fs.Duration("timeout", 0, "override configured timeout (e.g. 30s)")
	jsonFlag := fs.Bool("json", false, "output the outcome as JSON")
	_ = fs.Parse(args)

	code, err := readInput(fs.Args(), stdin)
	if err != nil {
		return err
	}

	a, err := newApp(*pathFlag, *timeoutFlag)
	if err != nil {
		return err
	}
	defer a.close()

	out, _ := a.invoker.RunCode(ctx, code, a.projectFor(*pathFlag), *phpFlag)
	return finish(stdout, out, *jsonFlag)
}

// --- artisan ---

func artisanMain(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return runArtisan(ctx, os.Stdout, args)
}

// runArtisan passes the remaining arguments to artisan as the shell split
// them; they are not joined and split again.
func runArtisan(ctx context.Context, stdout io.Writer, args []string) error {
	fs := flag.NewFlagSet("artisan", flag.ExitOnError)
	pathFlag := fs.String("path", "", "Laravel project root (default: discovered from the working directory)")
	phpFlag := fs.String("php", "", "PHP binary (default: configured, then php)")
	timeoutFlag := fs.Duration("timeout", 0, "override configured timeout (e.g. 30s)")
	jsonFlag := fs.Bool("json", false, "output the outcome as JSON")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return errors.New("artisan: missing command")
	}

	a, err := newApp(*pathFlag, *timeoutFlag)
	if err != nil {
		return err
	}
	defer a.close()

	out, _ := a.invoker.RunArgs(ctx, fs.Args(), a.projectFor(*pathFlag), *phpFlag)
	return finish(stdout, out, *jsonFlag)
}

// --- inspect ---

func inspectMain(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	opFlag := fs.String("op", "", "require the run to be a code or command run")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("inspect: expected exactly one run ID")
	}

	a, err := newApp("", 0)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := report.Lookup(a.store, fs.Arg(0), *opFlag)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	fmt.Print(rec.Format())
	return nil
}

// --- shared ---

// app holds the dependencies shared by every subcommand.
type app struct {
	project string
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   report.Store
	invoker *artisan.Invoker
	closers []func() error
}

// newApp loads configuration for the project at dir, or for the working
// directory when dir is empty.
func newApp(dir string, timeoutOverride time.Duration) (*app, error) {
	if dir == "" {
		workspace, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining workspace: %w", err)
		}
		dir = workspace
	}

	loaded, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	// stdout carries results and the MCP stream, so diagnostics go to stderr.
	logger, closeLog, err := logging.New(os.Stderr, cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{
		project: loaded.ProjectRoot,
		logger:  logger,
		metrics: metrics.New(tinker.Version),
		closers: []func() error{closeLog},
	}

	shutdown, err := tracing.Setup(cfg.Trace, tinker.Version, os.Stderr)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	})

	timeout := cfg.Timeout()
	if timeoutOverride > 0 {
		timeout = timeoutOverride
	}
	r := &runner.Runner{
		Timeout:   timeout,
		MaxOutput: cfg.MaxOutputBytes(),
	}

	inv, err := artisan.New(cfg, r)
	if err != nil {
		a.close()
		return nil, err
	}

	a.store = report.NewLRUStore(cfg.HistorySize(), report.NewDiskStore(cfg.HistoryDir()))
	inv.Store = a.store
	inv.Logger = logger
	inv.Metrics = a.metrics
	a.invoker = inv
	return a, nil
}

// close runs the closers in reverse order; tracing flushes before the
// log file is released.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func (a *app) projectFor(path string) string {
	if path != "" {
		return path
	}
	return a.project
}

// readInput returns the code given as arguments, or stdin when there are
// none or the only argument is "-".
func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading code from stdin: %w", err)
	}
	return string(data), nil
}

// finish writes the outcome and returns errFailed unless its kind is ok.
func finish(w io.Writer, out *artisan.Outcome, asJSON bool) error {
	if err := writeOutcome(w, out, asJSON); err != nil {
		return err
	}
	if out.Kind != artisan.KindOK {
		return errFailed
	}
	return nil
}

func writeOutcome(w io.Writer, out *artisan.Outcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	text := out.Text
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(w, text)
	return err
}
