package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Broadcast/internal/app/media"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Join a room as a viewer and record the stream to disk",
		RunE:  runView,
	}
	cmd.Flags().String("output-dir", "", "directory for received .ivf and .ogg files")
	return cmd
}

func runView(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// viewers never capture
	sess, err := newSession(cfg, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	dir := cfg.Client.OutputDir
	open := func(t core.RemoteTrack) (media.RTPSink, error) {
		return media.NewFileSink(dir, t)
	}
	onRemote := func(rs *media.RemoteStream) {
		if rs == nil {
			log.Info().Str("module", "client").Msg("no stream, waiting for a publisher")
			return
		}
		if err := rs.Forward(ctx, open); err != nil {
			log.Error().Err(err).Str("module", "client").Str("stream", rs.ID()).Msg("record stream")
			return
		}
		log.Info().Str("module", "client").Str("stream", rs.ID()).Str("dir", dir).Msg("recording")
	}

	if err := sess.Start(ctx, domain.RoomID(cfg.Client.Room), domain.RoleViewer, onRemote); err != nil {
		return err
	}
	reportStatus(ctx, sess)
	return nil
}
