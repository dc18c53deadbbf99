package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/martsearch/internal/datasource"
	"github.com/kailas-cloud/martsearch/internal/domain"
	searchuc "github.com/kailas-cloud/martsearch/internal/usecase/search"
	"github.com/kailas-cloud/martsearch/internal/version"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Run one aggregated search and print the result as JSON",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Usage: "Result page (1-based)",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Bypass cache reads; fresh results are still written back",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return fmt.Errorf("search: a query is required")
			}

			a, err := bootstrap(ctx, c)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Search.Search(ctx, query, c.Int("page"), !c.Bool("no-cache"))
			if res != nil {
				if werr := writeResult(c.Root().Writer, res); werr != nil {
					return werr
				}
			}
			if err != nil {
				return fmt.Errorf("search %q: %w", query, err)
			}
			return nil
		},
	}
}

// searchOutput is the printed form of a search result.
type searchOutput struct {
	*searchuc.Result
	Records []*domain.Record     `json:"records"`
	Errors  []domain.SearchError `json:"errors"`
}

func writeResult(w io.Writer, res *searchuc.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(searchOutput{Result: res, Records: res.Records(), Errors: res.Errors()})
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the search cache",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Drop cached index pages and dataset payloads",
				Action: func(ctx context.Context, c *cli.Command) error {
					a, err := bootstrap(ctx, c)
					if err != nil {
						return err
					}
					defer a.Close()

					if err := a.Search.ClearCache(ctx); err != nil {
						return err
					}
					a.logger.Info("Cache cleared", zap.String("driver", a.Config.Cache.Driver))
					return nil
				},
			},
		},
	}
}

func fetchAllCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch-all",
		Usage: "Bulk-export a data source as TSV on stdout",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "datasource",
				Usage:    "Configured data source name",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "filter",
				Usage: "Filter as name=value; repeat the flag for several values",
			},
			&cli.StringSliceFlag{
				Name:     "attributes",
				Usage:    "Attributes to export",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			filters, err := parseFilters(c.StringSlice("filter"))
			if err != nil {
				return err
			}

			a, err := bootstrap(ctx, c)
			if err != nil {
				return err
			}
			defer a.Close()

			name := c.String("datasource")
			ds, ok := a.Sources.Get(name)
			if !ok {
				return fmt.Errorf("unknown data source %q (configured: %s)", name, strings.Join(a.Sources.Names(), ", "))
			}
			bulk, ok := ds.(datasource.BulkFetcher)
			if !ok {
				return fmt.Errorf("data source %q does not support bulk export", name)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			table, err := bulk.FetchAll(ctx, filters, c.StringSlice("attributes"))
			if err != nil {
				return fmt.Errorf("fetch-all %s: %w", name, err)
			}
			a.logger.Info("Bulk export complete", zap.String("datasource", name), zap.Int("rows", len(table.Rows)))
			return writeTable(c.Root().Writer, table)
		},
	}
}

// parseFilters turns repeated name=value flags into a filter map; values keep flag order.
func parseFilters(raw []string) (map[string][]string, error) {
	filters := make(map[string][]string)
	for _, f := range raw {
		name, value, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --filter %q: want name=value", f)
		}
		filters[name] = append(filters[name], strings.TrimSpace(value))
	}
	return filters, nil
}

func writeTable(w io.Writer, t domain.Table) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(_ context.Context, c *cli.Command) error {
			_, err := fmt.Fprintln(c.Root().Writer, version.String())
			return err
		},
	}
}
