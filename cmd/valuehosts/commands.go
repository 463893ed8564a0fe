package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/processor"
	"github.com/timzifer/valuehosts/statefile"
)

type documentFlags struct {
	business string
	ui       string
}

func (f *documentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.business, "business", "b", "", "Path to the business configuration document (required)")
	cmd.Flags().StringVarP(&f.ui, "ui", "u", "", "Path to the UI configuration document")
	_ = cmd.MarkFlagRequired("business")
}

func (f *documentFlags) options(logger zerolog.Logger) []processor.Option {
	return []processor.Option{
		processor.WithBusinessConfigPath(f.business),
		processor.WithUIConfigPath(f.ui),
		processor.WithLogger(logger),
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "valuehosts",
		Short:         "Merge, check and serve value host configurations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMergeCmd(), newCheckCmd(), newRunCmd(), newStateCmd())
	return root
}

func stderrLogger(cmd *cobra.Command) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()
}

func newMergeCmd() *cobra.Command {
	var (
		docs   documentFlags
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge the UI document into the business document and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outFormat, err := outputFormat(format, output)
			if err != nil {
				return err
			}
			proc, err := processor.New(cmd.Context(), docs.options(stderrLogger(cmd))...)
			if err != nil {
				return err
			}
			defer proc.Close()

			data, err := config.Encode(&config.Document{ValueHosts: proc.MergedConfigs()}, outFormat)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), cmd.ErrOrStderr(), output, data)
		},
	}
	docs.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: yaml, json or toml (default: from --output or yaml)")
	return cmd
}

func outputFormat(format, output string) (config.Format, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "":
		if output == "" {
			return config.FormatYAML, nil
		}
		return config.FormatFromPath(output)
	case "yaml", "yml":
		return config.FormatYAML, nil
	case "json":
		return config.FormatJSON, nil
	case "toml":
		return config.FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

func writeOutput(stdout, stderr io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(stderr, "Result written to %s\n", path)
	return nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <config>...",
		Short: "Validate configuration documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := checkDocument(path); err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: invalid\n", path)
					for _, line := range strings.Split(strings.TrimSpace(err.Error()), "\n") {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", strings.TrimSpace(line))
					}
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents invalid", failed, len(args))
			}
			return nil
		},
	}
}

func checkDocument(path string) error {
	doc, err := config.Load(path)
	if err != nil {
		return err
	}
	return config.Check(doc)
}

func newRunCmd() *cobra.Command {
	var (
		docs      documentFlags
		statePath string
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the value hosts and reload them whenever a document changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []processor.Option{
				processor.WithBusinessConfigPath(docs.business),
				processor.WithUIConfigPath(docs.ui),
				processor.WithStatePath(statePath),
			}
			proc, err := processor.New(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			defer proc.Close()

			err = proc.Watch(cmd.Context(), interval)
			if statePath != "" {
				if saveErr := proc.SaveState(); saveErr != nil {
					return errors.Join(err, saveErr)
				}
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		},
	}
	docs.register(cmd)
	cmd.Flags().StringVarP(&statePath, "state", "s", "", "Path of the instance state file restored on start and saved on exit")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval for configuration changes")
	return cmd
}

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Create and validate instance state files",
	}

	var (
		docs   documentFlags
		output string
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the initial instance states of a configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			proc, err := processor.New(cmd.Context(), docs.options(stderrLogger(cmd))...)
			if err != nil {
				return err
			}
			defer proc.Close()

			states := proc.Manager().States()
			if output == "" {
				return statefile.Write(cmd.OutOrStdout(), states)
			}
			if err := statefile.Save(output, states); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Result written to %s\n", output)
			return nil
		},
	}
	docs.register(initCmd)
	initCmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default: stdout)")

	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate an instance state file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read state file: %w", err)
			}
			if err := statefile.Validate(data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
