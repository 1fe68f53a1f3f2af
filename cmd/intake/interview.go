package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ashureev/symptom-intake/internal/client"
	"github.com/ashureev/symptom-intake/internal/domain"
)

func newInterviewCmd(newTransport func() *client.HTTPTransport) *cobra.Command {
	var (
		outPath string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "interview",
		Short: "Answer interview questions line by line until a report is produced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			driver := client.NewDriver(newTransport())
			report, err := runInterview(cmd, driver)
			if err != nil {
				return err
			}
			if format == "" {
				format = client.FormatForPath(outPath)
			}
			return writeReport(cmd, report, outPath, format)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().StringVar(&format, "format", "", "report format: json or toml (default from --out extension)")
	return cmd
}

// isInteractive reports whether r is a terminal.
func isInteractive(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runInterview(cmd *cobra.Command, driver *client.Driver) (domain.StructuredReport, error) {
	out := cmd.OutOrStdout()
	interactive := isInteractive(cmd.InOrStdin())
	scanner := bufio.NewScanner(cmd.InOrStdin())

	if interactive {
		fmt.Fprintln(out, "Describe your main symptom to begin. Press Ctrl-D to quit.")
	}

	printed := 0
	for !driver.Complete() {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return domain.StructuredReport{}, fmt.Errorf("read input: %w", err)
			}
			return domain.StructuredReport{}, errors.New("input ended before the interview was complete")
		}

		line := scanner.Text()
		if driver.Draft() != "" && line == "" {
			line = driver.Draft()
		}
		if _, err := driver.Submit(cmd.Context(), line); err != nil && !interactive {
			printed = printMessages(out, driver.Messages(), printed)
			return domain.StructuredReport{}, err
		}
		printed = printMessages(out, driver.Messages(), printed)
	}

	report, ok := driver.Report()
	if !ok {
		return domain.StructuredReport{}, errors.New("interview completed without a report")
	}
	return report, nil
}

// printMessages writes the Agent, System and Error messages after index from.
func printMessages(w io.Writer, msgs []domain.Message, from int) int {
	for _, m := range msgs[from:] {
		if m.Role == domain.RoleUser {
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", m.Role, m.Text)
	}
	return len(msgs)
}

func writeReport(cmd *cobra.Command, report domain.StructuredReport, path, format string) error {
	if path == "" {
		return client.WriteReport(cmd.OutOrStdout(), report, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := client.WriteReport(f, report, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", path)
	return nil
}
