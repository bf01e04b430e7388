package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/landslide-cli/internal/config"
)

// dataset is one configured source and the file type it resolves to.
type dataset struct {
	Name string
	ID   string
	Ext  string
}

// resolved is the outcome of fetching one dataset.
type resolved struct {
	dataset
	Path string
	Err  error
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and cache the configured datasets",
	Long:  "Resolves every configured source into the local cache, downloading remote datasets and unpacking zip archives. Use --refresh to revalidate cached HTTP downloads.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
			cfg.Fetch.Refresh = true
		}

		cache := newCache(cfg)
		results := fetchAll(cmd.Context(), cache, datasets(cfg.Sources))
		formatFetched(os.Stdout, results)

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return eris.Errorf("fetch: %d of %d datasets failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().Bool("refresh", false, "revalidate cached downloads")
	rootCmd.AddCommand(fetchCmd)
}

// datasets lists the configured sources. Roads are skipped when unset.
func datasets(s config.SourcesConfig) []dataset {
	out := []dataset{
		{Name: "elevation", ID: s.Elevation, Ext: ".asc"},
		{Name: "land_cover", ID: s.LandCover, Ext: ".asc"},
		{Name: "water_occurrence", ID: s.WaterOccurrence, Ext: ".asc"},
	}
	if s.Roads != "" {
		out = append(out, dataset{Name: "roads", ID: s.Roads, Ext: ".shp"})
	}
	return out
}

type resolver interface {
	Resolve(ctx context.Context, id string, exts ...string) (string, error)
}

// fetchAll resolves every dataset concurrently. One failure does not stop
// the others.
func fetchAll(ctx context.Context, r resolver, sets []dataset) []resolved {
	out := make([]resolved, len(sets))
	var g errgroup.Group
	for i, d := range sets {
		g.Go(func() error {
			path, err := r.Resolve(ctx, d.ID, d.Ext)
			out[i] = resolved{dataset: d, Path: path, Err: err}
			if err != nil {
				zap.L().Warn("fetch: dataset failed", zap.String("dataset", d.Name), zap.Error(err))
			} else {
				zap.L().Info("fetch: dataset ready", zap.String("dataset", d.Name), zap.String("path", path))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func formatFetched(out io.Writer, results []resolved) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tSTATUS\tPATH")
	for _, r := range results {
		if r.Err != nil {
			_, _ = fmt.Fprintf(w, "%s\tfailed\t%s\n", r.Name, truncate(r.Err.Error(), 80))
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\tok\t%s\n", r.Name, r.Path)
	}
	_ = w.Flush()
}
