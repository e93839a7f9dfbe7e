package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mongrel/internal/discovery"
	"mongrel/internal/relation"
	"mongrel/internal/schema"
	"mongrel/internal/source"
	"mongrel/internal/storage"
	"mongrel/internal/transfer"
)

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.stdout, "configuration is valid: %s\n", describe(a.cfgPath))
			return err
		},
	}
}

func (a *app) discoverCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Sample the collection and report the relations between its sub-documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			src, err := a.openSource(ctx)
			if err != nil {
				return err
			}
			defer a.closeSource(ctx, src)

			d := discovery.New(discovery.Options{
				Cutoff:        a.cfg.Runtime.Cutoff,
				FalsePositive: a.cfg.Runtime.FalsePositive,
				Logger:        a.printf(),
			})
			res, err := d.Run(ctx, src, a.cfg.Source.Collection)
			if err != nil {
				return err
			}
			if err := res.WriteReport(a.stdout); err != nil {
				return err
			}
			if out == "" {
				return nil
			}
			data, err := res.RelationConfig()
			if err != nil {
				return err
			}
			return a.writeFile(out, data)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the discovered relation configuration to this file")
	return cmd
}

func (a *app) autoconfigCmd() *cobra.Command {
	var mappingOut, relationsOut string
	cmd := &cobra.Command{
		Use:   "autoconfig",
		Short: "Write mapping and relation skeletons from the first document of the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			mappingOut = firstNonEmpty(mappingOut, a.cfg.Mapping.Columns, "mapping.json")
			relationsOut = firstNonEmpty(relationsOut, a.cfg.Mapping.Relations, "relations.json")

			src, err := a.openSource(ctx)
			if err != nil {
				return err
			}
			defer a.closeSource(ctx, src)

			example, err := source.First(ctx, src, a.cfg.Source.Collection)
			if err != nil {
				return fmt.Errorf("autoconfig: example document: %w", err)
			}
			mapping, err := discovery.BuildMapping(a.cfg.Source.Collection, example)
			if err != nil {
				return err
			}
			relations, err := discovery.RelationSkeleton(a.cfg.Source.Collection)
			if err != nil {
				return err
			}
			if err := a.writeFile(mappingOut, mapping); err != nil {
				return err
			}
			return a.writeFile(relationsOut, relations)
		},
	}
	cmd.Flags().StringVar(&mappingOut, "mapping-out", "", "column mapping file (default mapping.columns, else mapping.json)")
	cmd.Flags().StringVar(&relationsOut, "relations-out", "", "relation config file (default mapping.relations, else relations.json)")
	return cmd
}

func (a *app) ddlCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print the SQL script the mapping produces for the configured destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := a.buildPlan()
			if err != nil {
				return err
			}
			script := plan.Script()
			if out != "" {
				return a.writeFile(out, []byte(script))
			}
			_, err = fmt.Fprint(a.stdout, script)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the script to this file instead of stdout")
	return cmd
}

func (a *app) transferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer",
		Short: "Create the tables and stream the collection into them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			start := time.Now()

			closeMetrics := a.setupMetrics(ctx)
			defer closeMetrics()

			plan, err := a.buildPlan()
			if err != nil {
				return err
			}

			dest, err := storage.New(ctx, storage.Config{Kind: a.cfg.Destination.Kind, DSN: a.cfg.Destination.DSN})
			if err != nil {
				return err
			}
			defer dest.Close()

			src, err := a.openSource(ctx)
			if err != nil {
				return err
			}
			defer a.closeSource(ctx, src)

			a.log.Debug().
				Str("source", a.cfg.Source.Kind).
				Str("collection", a.cfg.Source.Collection).
				Str("destination", a.cfg.Destination.Kind).
				Int("tables", len(plan.Tables)).
				Msg("pipeline")

			e := &transfer.Engine{
				Dest:        dest,
				Logger:      a.printf(),
				BatchSize:   a.cfg.Runtime.BatchSize,
				Placeholder: a.cfg.Runtime.Placeholder,
			}
			stats, err := e.Run(ctx, plan, src, a.cfg.Source.Collection)
			if err != nil {
				return err
			}
			a.log.Info().
				Int64("documents", stats.Documents).
				Int("flushes", stats.Flushes).
				Dur("elapsed", time.Since(start).Truncate(time.Millisecond)).
				Msg("transfer complete")
			return nil
		},
	}
}

// buildPlan reads the mapping files and renders them for the destination's
// dialect and conflict mode.
func (a *app) buildPlan() (*schema.Plan, error) {
	relations, columns, err := a.cfg.ReadMapping()
	if err != nil {
		return nil, err
	}
	g, err := relation.BuildGraph(relations)
	if err != nil {
		return nil, err
	}
	dialect, err := storage.DialectFor(a.cfg.Destination.Kind)
	if err != nil {
		return nil, err
	}
	conflict, err := schema.ParseConflictMode(a.cfg.Runtime.Conflict)
	if err != nil {
		return nil, err
	}
	return schema.Build(g, columns, schema.Options{Dialect: dialect, Conflict: conflict})
}

func (a *app) openSource(ctx context.Context) (source.Source, error) {
	if a.cfg.Source.Collection == "" {
		return nil, fmt.Errorf("source.collection is required")
	}
	return source.New(ctx, source.Config{
		Kind:     a.cfg.Source.Kind,
		URI:      a.cfg.Source.URI,
		Database: a.cfg.Source.Database,
		Path:     a.cfg.Source.Path,
	})
}

func (a *app) closeSource(ctx context.Context, src source.Source) {
	if err := src.Close(ctx); err != nil {
		a.log.Warn().Err(err).Msg("source close")
	}
}

func (a *app) writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	a.log.Info().Str("path", path).Int("bytes", len(data)).Msg("wrote")
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
