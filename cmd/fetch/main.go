// Command fetch prints the content of a URL through the shared page cache.
//
// Usage:
//
//	fetch [flags] <url>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sp3dr4/webcache/config"
	"github.com/sp3dr4/webcache/internal/application"
	"github.com/sp3dr4/webcache/internal/domain"
	fxmodules "github.com/sp3dr4/webcache/internal/fx"
)

const (
	exitOK = iota
	exitError
	exitUsage
	exitFetch
	exitStore

	exitHelp = -1
)

type options struct {
	showCount bool
	countOnly bool
	url       string
}

func main() {
	opts, code := parseFlags(os.Args[1:], os.Stderr)
	switch code {
	case exitOK:
	case exitHelp:
		os.Exit(exitOK)
	default:
		os.Exit(code)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, opts, os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (options, int) {
	var opts options

	flags := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.BoolVar(&opts.showCount, "count", false, "print the URL's access counter to stderr after fetching")
	flags.BoolVar(&opts.countOnly, "count-only", false, "print the URL's access counter without fetching")
	flags.String("store", "", "store backend: redis, memory, postgres, sqlite or dynamodb (memory lasts one run, so counters always start at 0)")
	flags.Duration("ttl", 0, "lifetime of cached content")
	flags.String("redis-addr", "", "redis address")
	flags.String("sqlite-path", "", "sqlite database file")
	flags.String("postgres-url", "", "postgres connection URL")
	flags.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "Usage: fetch [flags] <url>")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return opts, exitHelp
		}
		return opts, exitUsage
	}

	if flags.NArg() != 1 {
		flags.Usage()
		return opts, exitUsage
	}
	opts.url = flags.Arg(0)

	for key, name := range map[string]string{
		"store.type":         "store",
		"cache.ttl":          "ttl",
		"store.redis.addr":   "redis-addr",
		"store.sqlite.path":  "sqlite-path",
		"store.postgres.url": "postgres-url",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			_, _ = fmt.Fprintf(stderr, "bind flag %s: %v\n", name, err)
			return opts, exitError
		}
	}

	return opts, exitOK
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) int {
	var fetcher *application.CachingFetcher
	var cfg *config.Config

	app := fx.New(
		fxmodules.CLIModules,
		fx.Populate(&fetcher, &cfg),
	)
	if err := app.Err(); err != nil {
		_, _ = fmt.Fprintf(stderr, "fetch: %v\n", err)
		return exitError
	}

	if opts.countOnly && cfg.Store.Type == "memory" {
		_, _ = fmt.Fprintln(stderr, "fetch: --count-only needs a persistent store; the memory store is empty on every run")
		return exitUsage
	}

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		_, _ = fmt.Fprintf(stderr, "fetch: %v\n", err)
		return exitError
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	if opts.countOnly {
		count, err := fetcher.Count(ctx, opts.url)
		if err != nil {
			return report(stderr, err)
		}
		_, _ = fmt.Fprintln(stdout, count)
		return exitOK
	}

	res, err := fetcher.FetchResult(ctx, opts.url)
	if err != nil {
		return report(stderr, err)
	}

	_, _ = io.WriteString(stdout, res.Content)
	if opts.showCount {
		_, _ = fmt.Fprintf(stderr, "access count: %d (cache hit: %t)\n", res.Count, res.CacheHit)
	}
	return exitOK
}

func report(stderr io.Writer, err error) int {
	_, _ = fmt.Fprintf(stderr, "fetch: %v\n", err)

	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		return exitStore
	case errors.Is(err, domain.ErrFetch):
		return exitFetch
	default:
		return exitError
	}
}
