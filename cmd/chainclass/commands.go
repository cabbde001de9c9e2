package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/CTAG07/chainclass/pkg/chain"
	"github.com/CTAG07/chainclass/pkg/store"
	"github.com/CTAG07/chainclass/pkg/tokenize"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries what every subcommand needs: the viper instance the flags are
// bound to and the config file path.
type cli struct {
	v          *viper.Viper
	configPath string
}

// withApp loads the config, opens the database and runs fn. Everything is
// released when fn returns.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	config, err := LoadConfig(c.v, c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(config.LogLevel, cmd.ErrOrStderr())

	a, err := openApp(config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()
	return fn(cmd.Context(), a)
}

func (c *cli) newTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train <label> [file...]",
		Short: "Train a label from text files (stdin when no file is given)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label, files := args[0], args[1:]
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if len(files) == 0 {
					return trainFrom(ctx, cmd.OutOrStdout(), a.store, label, "-", cmd.InOrStdin())
				}
				for _, name := range files {
					f, err := os.Open(name)
					if err != nil {
						return err
					}
					err = trainFrom(ctx, cmd.OutOrStdout(), a.store, label, name, f)
					_ = f.Close()
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func trainFrom(ctx context.Context, out io.Writer, st *store.Store, label, name string, r io.Reader) error {
	res, err := st.Train(ctx, label, r)
	if err != nil {
		return fmt.Errorf("training %q from %s: %w", label, name, err)
	}
	_, err = fmt.Fprintf(out, "%s\t%s\t%d sequences\t%d transitions\trun %s\n",
		label, name, res.Sequences, res.Transitions, res.RunID)
	return err
}

func (c *cli) newClassifyCmd() *cobra.Command {
	var stable, asJSON bool
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify text from a file (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				in := cmd.InOrStdin()
				if len(args) == 1 && args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return err
					}
					defer func(f *os.File) {
						_ = f.Close()
					}(f)
					in = f
				}
				seqs, err := tokenize.Sequences(a.store.Tokenizer(), in)
				if err != nil {
					return err
				}

				smoothing, err := parseSmoothing(a.config.Smoothing)
				if err != nil {
					return err
				}
				model, err := a.store.Load(ctx, chain.WithSmoothing(smoothing))
				if err != nil {
					return err
				}

				var post chain.Posterior[string]
				if stable {
					post, err = model.StablePosteriorOf(seqs)
				} else {
					post, err = model.PosteriorOf(seqs)
				}
				if err != nil {
					return err
				}
				label, _ := post.Best()

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(newClassifyResponse(label, post, seqs, stable))
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, lp := range post {
					_, _ = fmt.Fprintf(tw, "%s\t%.6f\n", lp.Label, lp.Prob)
				}
				_, _ = fmt.Fprintf(tw, "best\t%s\n", label)
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&stable, "stable", false, "Normalize in log space (for long inputs)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func (c *cli) newLabelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List stored labels in training order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				labels, err := a.store.Labels(ctx)
				if err != nil {
					return err
				}
				for _, l := range labels {
					if _, err = fmt.Fprintln(cmd.OutOrStdout(), l.Name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (c *cli) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-label statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				stats, err := a.store.Stats(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "LABEL\tTRANSITIONS\tFREQUENCY\tCONTEXTS\tSTARTS\tRUNS")
				for _, l := range stats.Labels {
					ls := stats.PerLabel[l.Name]
					_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
						l.Name, ls.Transitions, ls.TotalFrequency, ls.Contexts, ls.StartSymbols, ls.Runs)
				}
				_, _ = fmt.Fprintf(tw, "symbols\t%d\n", stats.Symbols)
				return tw.Flush()
			})
		},
	}
}

func (c *cli) newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <label>",
		Short: "Delete a label and all of its transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return a.store.RemoveLabel(ctx, args[0])
			})
		},
	}
}

func (c *cli) newPruneCmd() *cobra.Command {
	var minFreq int64
	cmd := &cobra.Command{
		Use:   "prune <label>",
		Short: "Remove transitions of a label seen at most --min-freq times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				removed, err := a.store.Prune(ctx, args[0], minFreq)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d transitions\n", removed)
				return err
			})
		},
	}
	cmd.Flags().Int64Var(&minFreq, "min-freq", 1, "Highest frequency that is removed")
	return cmd
}

func (c *cli) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write every label to a JSON file (- for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if args[0] == "-" {
					return a.store.Export(ctx, cmd.OutOrStdout())
				}
				var buf bytes.Buffer
				if err := a.store.Export(ctx, &buf); err != nil {
					return err
				}
				return atomic.WriteFile(args[0], &buf)
			})
		},
	}
}

func (c *cli) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge a JSON export into the database (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if args[0] == "-" {
					return a.store.Import(ctx, cmd.InOrStdin())
				}
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func(f *os.File) {
					_ = f.Close()
				}(f)
				return a.store.Import(ctx, f)
			})
		},
	}
}

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classification HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return serve(ctx, a)
			})
		},
	}
	cmd.Flags().String("addr", DefaultConfig().Server.Addr, "Listen address")
	_ = c.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (c *cli) newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the HTTP server",
	}

	var scopes []string
	var description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a key (the first key always gets the '*' scope)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				resp, err := a.keys.Create(ctx, scopes, description)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "id\t%d\nkey\t%s\nscopes\t%s\n",
					resp.ID, resp.RawKey, strings.Join(resp.Scopes, " "))
				return err
			})
		},
	}
	create.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to grant (model:read, model:write, auth:manage, *)")
	create.Flags().StringVar(&description, "description", "", "Free-form note stored with the key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List keys without their secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				keys, err := a.keys.List(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tSCOPES\tDESCRIPTION")
				for _, k := range keys {
					_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", k.ID, strings.Join(k.Scopes, " "), k.Description)
				}
				return tw.Flush()
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid key ID %q: %w", args[0], err)
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return a.keys.Revoke(ctx, id)
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}
