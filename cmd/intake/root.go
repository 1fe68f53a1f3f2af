package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ashureev/symptom-intake/internal/client"
)

const (
	keyServer  = "server"
	keyTimeout = "timeout"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "intake",
		Short:         "Run a symptom intake interview from the terminal",
		Long:          "intake talks to a symptom intake server: it runs an interactive interview, prints transcripts and documents the report fields.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String(keyServer, "http://localhost:5000", "intake server base URL (env INTAKE_SERVER)")
	rootCmd.PersistentFlags().Duration(keyTimeout, 90*time.Second, "per-request timeout (env INTAKE_TIMEOUT)")
	_ = v.BindPFlag(keyServer, rootCmd.PersistentFlags().Lookup(keyServer))
	_ = v.BindPFlag(keyTimeout, rootCmd.PersistentFlags().Lookup(keyTimeout))

	newTransport := func() *client.HTTPTransport {
		return client.NewHTTPTransport(v.GetString(keyServer), &http.Client{Timeout: v.GetDuration(keyTimeout)})
	}

	rootCmd.AddCommand(
		newInterviewCmd(newTransport),
		newTranscriptCmd(newTransport),
		newSchemaCmd(newTransport),
	)
	return rootCmd
}
