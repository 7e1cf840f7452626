package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/offerscrape/config"
	"github.com/use-agent/offerscrape/logging"
	"github.com/use-agent/offerscrape/models"
	"github.com/use-agent/offerscrape/scraper"
)

// fetcher is the part of the scraper the command needs.
type fetcher interface {
	FetchProduct(ctx context.Context, productID string) (models.ProductData, error)
}

type options struct {
	headless bool
	timeout  time.Duration
	dumpDir  string
	logLevel string
	pretty   bool
}

// result is one line of output.
type result struct {
	ProductID string              `json:"product_id"`
	Data      models.ProductData  `json:"data,omitempty"`
	Error     *models.ErrorDetail `json:"error,omitempty"`
}

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command. A nil build wires the real browser stack.
func newRootCmd(build func(cfg *config.Config, errOut io.Writer) fetcher) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "offerscrape-fetch <product_id>...",
		Short: "Fetch offer data for one or more product ids and print it as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if !numeric(id) {
					return fmt.Errorf("product id %q is not numeric", id)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = opts.headless
			}
			if opts.timeout > 0 {
				cfg.Scraper.RequestTimeout = opts.timeout
			}
			if opts.dumpDir != "" {
				cfg.Scraper.DebugDumpDir = opts.dumpDir
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}

			if build == nil {
				build = func(cfg *config.Config, errOut io.Writer) fetcher {
					return scraper.NewFromConfig(cfg, logging.New(cfg.Log, errOut), nil)
				}
			}
			f := build(cfg, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, f, args, cmd.OutOrStdout(), opts.pretty)
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&opts.headless, "headless", true, "run the browser headless")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "per-product deadline (default from config)")
	cmd.Flags().StringVar(&opts.dumpDir, "dump-dir", "", "write page sources of failed URLs here")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "indent JSON output")
	return cmd
}

// run fetches each id in turn and writes one JSON document per id. It fails
// if any id failed, after printing all of them.
func run(ctx context.Context, f fetcher, ids []string, out io.Writer, pretty bool) error {
	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}

	failed := 0
	for _, id := range ids {
		r := result{ProductID: id}
		data, err := f.FetchProduct(ctx, id)
		if err != nil {
			failed++
			r.Error = models.AsScrapeError(err).ToDetail()
		} else {
			r.Data = data
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d products failed", failed, len(ids))
	}
	return nil
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
