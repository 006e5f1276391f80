package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("broadcast client")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "broadcast",
		Short:         "Publish or watch a live stream through a rendezvous server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.String("signal-url", "", "rendezvous websocket URL")
	pf.String("api-url", "", "base URL serving /api/ice; empty uses configured servers")
	pf.String("room", "", "room id to join")
	pf.String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newPublishCmd(), newViewCmd())
	return root
}
