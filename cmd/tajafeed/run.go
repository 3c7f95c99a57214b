package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adda-Baaj/taja-feed/internal/config"
	"github.com/Adda-Baaj/taja-feed/pkg/feedgen"
)

func runCmd(opts *config.Options) *cobra.Command {
	var (
		formatFlag  string
		outFlag     string
		publishFlag bool
		params      map[string]string
	)

	cmd := &cobra.Command{
		Use:   "run <source>...",
		Short: "Build feeds once and print or write them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := feedgen.ParseFormat(formatFlag)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *opts)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				feed, err := a.pipeline.Run(ctx, id, params)
				if err != nil {
					return err
				}
				body, err := feedgen.Render(feed, format)
				if err != nil {
					return err
				}

				if outFlag == "" {
					fmt.Fprintln(cmd.OutOrStdout(), body)
				} else {
					if err := os.MkdirAll(outFlag, 0o755); err != nil {
						return err
					}
					path := filepath.Join(outFlag, feed.SourceID+format.Ext())
					if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d items)\n", path, len(feed.Items))
				}

				if publishFlag && a.dispatcher != nil {
					if err := a.dispatcher.PublishFeed(ctx, feed); err != nil {
						return fmt.Errorf("publish %s: %w", id, err)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "rss", "output format: rss, atom or json")
	cmd.Flags().StringVar(&outFlag, "out", "", "write feeds to this directory instead of stdout")
	cmd.Flags().BoolVar(&publishFlag, "publish", false, "send items to the configured publishers")
	cmd.Flags().StringToStringVar(&params, "param", nil, "source param override, e.g. --param limit=10")
	return cmd
}

func sourcesCmd(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List runnable sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range a.pipeline.Sources() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
