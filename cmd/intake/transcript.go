package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashureev/symptom-intake/internal/client"
)

func newTranscriptCmd(newTransport func() *client.HTTPTransport) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Print the transcript of an interview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tr, err := newTransport().Transcript(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("fetch transcript: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "phase: %s\n", tr.Phase)
			for _, m := range tr.History {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", m.Role, m.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session token returned by start_interview")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newSchemaCmd(newTransport func() *client.HTTPTransport) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "List the report fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := newTransport().Schema(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch schema: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(schema)
			}

			fmt.Fprintln(cmd.OutOrStdout(), schema.Title)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tHEADING\tDESCRIPTION")
			for _, f := range schema.Fields {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Key, f.Heading, f.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
