package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"drive/internal/core"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type clientFlags struct {
	server string
	user   string
	secret string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &clientFlags{}

	rootCmd := &cobra.Command{
		Use:           "drive",
		Short:         "Upload local files to a drive server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.server, "server", envOr("DRIVE_SERVER", "http://localhost:8080"), "Server base URL")
	pf.StringVar(&flags.user, "user", os.Getenv("DRIVE_USER"), "Owner id")
	pf.StringVar(&flags.secret, "secret", os.Getenv("DRIVE_SECRET"), "Owner secret")

	rootCmd.AddCommand(newPushCommand(flags))
	rootCmd.AddCommand(newUsageCommand(flags))

	return rootCmd
}

func (f *clientFlags) client() (*core.Client, error) {
	if f.user == "" || f.secret == "" {
		return nil, fmt.Errorf("--user and --secret (or DRIVE_USER and DRIVE_SECRET) are required")
	}
	return core.NewClient(f.server, f.user, f.secret), nil
}

func newPushCommand(flags *clientFlags) *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "push <paths...>",
		Short: "Upload files and directories, recreating the directory structure",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			parsedPaths, err := core.ParseArgs(args)
			if err != nil {
				return err
			}
			tree, err := core.BuildFiletree(parsedPaths)
			if err != nil {
				return fmt.Errorf("building filetree: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, p := range tree.Skipped {
				fmt.Fprintf(out, "  skipped %s (not a regular file)\n", p)
			}
			dirs, files, size := tree.Counts()
			fmt.Fprintf(out, "Pushing %d folders and %d files (%s)\n", dirs, files, humanize.IBytes(uint64(size)))

			var dest *string
			if folder != "" {
				dest = &folder
			}

			result, err := client.Push(cmd.Context(), tree.Plan(), dest, func(s core.Step) {
				if s.Kind == core.StepFolder {
					fmt.Fprintf(out, "  + %s/\n", s.LocalPath)
				} else {
					fmt.Fprintf(out, "  ↑ %s (%s)\n", s.LocalPath, humanize.IBytes(uint64(s.Size)))
				}
			})
			if result != nil {
				fmt.Fprintf(out, "✓ Created %d folders, uploaded %d files (%s)\n",
					result.Folders, result.Files, humanize.IBytes(uint64(result.Bytes)))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "Destination folder id (default: root)")
	return cmd
}

func newUsageCommand(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show storage usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			report, err := client.Usage(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			s := report.Summary
			fmt.Fprintf(out, "Used %s of %s (%s free), %d files in %d folders\n",
				humanize.IBytes(uint64(s.UsedBytes)),
				humanize.IBytes(uint64(s.LimitBytes)),
				humanize.IBytes(uint64(max(s.RemainingBytes, 0))),
				s.Files, s.Folders)

			if len(report.ByCategory) > 0 {
				fmt.Fprintln(out, "\nBy category:")
				for _, c := range report.ByCategory {
					fmt.Fprintf(out, "  %-10s %s\n", c.Category, humanize.IBytes(uint64(c.Bytes)))
				}
			}
			if len(report.OverTime) > 0 {
				fmt.Fprintln(out, "\nUploaded per month:")
				for _, m := range report.OverTime {
					fmt.Fprintf(out, "  %s  %s\n", m.Month, humanize.IBytes(uint64(m.Bytes)))
				}
			}
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
