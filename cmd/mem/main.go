// Command mem is the CLI driver for the memoized build engine (SPEC_FULL.md
// §6): `mem build`, `mem gc`, and `mem serve`, sharing a common set of
// global flags. Grounded on cmd/scriptweaver's main.go: a deterministic
// parse-then-execute boundary, translating sentinel errors into the exit
// codes of internal/cli's taxonomy rather than printing a stack trace.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"memo"
	"memo/internal/cli"
	"memo/internal/config"
	"memo/internal/digest"
	"memo/internal/govern"
	"memo/internal/loader"
	"memo/internal/logging"
	"memo/internal/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mem <build|gc|serve> [flags]")
		return cli.ExitInvalidInvocation
	}

	switch args[0] {
	case "build":
		return runBuild(args[1:])
	case "gc":
		return runGC(args[1:])
	case "serve":
		return runServe(args[1:])
	case "-h", "--help", "help":
		fmt.Fprintln(os.Stderr, "usage: mem <build|gc|serve> [flags]")
		return cli.ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "mem: unknown subcommand %q\n", args[0])
		return cli.ExitInvalidInvocation
	}
}

// globalFlags are accepted by every subcommand (§6's "Global flags").
type globalFlags struct {
	store       string
	configPath  string
	concurrency int
	digestName  string
}

func registerGlobalFlags(fs *flag.FlagSet) *globalFlags {
	g := &globalFlags{}
	fs.StringVar(&g.store, "store", "", "cache store directory (empty = use config/default)")
	fs.StringVar(&g.configPath, "config", config.DefaultConfigFile, "config file path (loaded only if present)")
	fs.IntVar(&g.concurrency, "concurrency", 0, "max in-flight tasks (0 = use config/default)")
	fs.StringVar(&g.digestName, "digest", "", "fingerprint digest: sha256|blake2b (empty = use config/default)")
	return g
}

// resolvedConfig loads memo.toml (if present at g.configPath — config.Load
// tolerates a missing file at a non-empty path) and layers the global flags
// over it, since flags are the more specific source.
func resolvedConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.store != "" {
		cfg.Store = g.store
	}
	if g.concurrency > 0 {
		cfg.Concurrency = g.concurrency
	}
	if g.digestName != "" {
		if _, err := digest.ParseAlgorithm(g.digestName); err != nil {
			return nil, err
		}
		cfg.Digest = g.digestName
	}
	return cfg, nil
}

func newEngine(ctx context.Context, cfg *config.Config) (*memo.Engine, error) {
	alg, err := digest.ParseAlgorithm(cfg.Digest)
	if err != nil {
		return nil, err
	}
	historyPath := ""
	if cfg.Store != "" {
		historyPath = filepath.Join(cfg.Store, "history.db")
	}
	return memo.New(ctx, cfg.Store,
		memo.WithConcurrency(cfg.Concurrency),
		memo.WithDigestAlgorithm(alg),
		memo.WithHistory(historyPath),
	)
}

// exitForErr maps a build-time error to the stable exit code taxonomy of
// §7's expansion, mirroring script-weaver's internal/cli codes.
func exitForErr(err error) int {
	switch {
	case err == nil:
		return cli.ExitSuccess
	case errors.Is(err, memo.ErrTaskFailure), errors.Is(err, govern.ErrFailed), errors.Is(err, memo.ErrMissingInput):
		return cli.ExitGraphFailure
	case errors.Is(err, memo.ErrCacheCorruption):
		return cli.ExitInternalError
	case errors.Is(err, memo.ErrBuildDescription):
		return cli.ExitConfigError
	default:
		return cli.ExitInternalError
	}
}

func runBuild(args []string) int {
	fs := flag.NewFlagSet("mem build", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	g := registerGlobalFlags(fs)
	pluginPath := fs.String("plugin", "", "path to the build-description plugin (.so)")
	entry := fs.String("entry", "", "entry point function exported by the plugin")
	watch := fs.Bool("watch", false, "watch the plugin file and re-run on change")
	if err := fs.Parse(args); err != nil {
		return cli.ExitInvalidInvocation
	}
	entryArgs := fs.Args()

	if *pluginPath == "" || *entry == "" {
		fmt.Fprintln(os.Stderr, "mem build: --plugin and --entry are required")
		return cli.ExitInvalidInvocation
	}

	cfg, err := resolvedConfig(g)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cli.ExitConfigError
	}

	ctx := context.Background()
	e, err := newEngine(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitForErr(err)
	}
	defer e.Close()

	runOnce := func() int {
		if err := loader.Run(e, *pluginPath, *entry, entryArgs); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitForErr(err)
		}
		return cli.ExitSuccess
	}

	if !*watch {
		return runOnce()
	}

	logger := logging.New(os.Stderr, "info", "loader")
	w, err := loader.Watch(*pluginPath, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitForErr(err)
	}
	defer w.Close()

	code := runOnce()
	w.OnReload(func(d *loader.Description) {
		fn, err := d.Lookup(*entry)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		if err := fn(e, entryArgs); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	return code
}

func runGC(args []string) int {
	fs := flag.NewFlagSet("mem gc", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	g := registerGlobalFlags(fs)
	maxAge := fs.Duration("max-age", 0, "only remove orphaned blobs at least this old")
	apply := fs.Bool("apply", false, "actually remove orphaned blob files (default: dry-run)")
	if err := fs.Parse(args); err != nil {
		return cli.ExitInvalidInvocation
	}

	cfg, err := resolvedConfig(g)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cli.ExitConfigError
	}

	ctx := context.Background()
	e, err := newEngine(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitForErr(err)
	}
	defer e.Close()

	report, err := memo.GC(e.Context(ctx), e, *maxAge, *apply)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitForErr(err)
	}

	mode := "dry-run"
	if *apply {
		mode = "applied"
	}
	fmt.Printf("mem gc (%s): %d deps scanned, %d results scanned, %d live blobs, %d orphaned blobs",
		mode, report.DepsScanned, report.ResultsScanned, report.LiveBlobs, len(report.OrphanedBlobs))
	if *apply {
		fmt.Printf(", %d removed", len(report.RemovedBlobs))
	}
	fmt.Println()
	return cli.ExitSuccess
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("mem serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	g := registerGlobalFlags(fs)
	addr := fs.String("addr", config.DefaultServerAddr, "listen address for the debug/status server")
	if err := fs.Parse(args); err != nil {
		return cli.ExitInvalidInvocation
	}

	cfg, err := resolvedConfig(g)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cli.ExitConfigError
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}

	ctx := context.Background()
	e, err := newEngine(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitForErr(err)
	}
	defer e.Close()

	srv := server.New(cfg.ServerAddr, e)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return cli.ExitInternalError
		}
		return cli.ExitSuccess
	case <-sigCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return cli.ExitInternalError
		}
		return cli.ExitSuccess
	}
}
