package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Broadcast/internal/app/media"
	"github.com/dkeye/Broadcast/internal/domain"
)

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Join a room as its publisher and stream local media",
		RunE:  runPublish,
	}
	f := cmd.Flags()
	f.String("device", "", "media device: synthetic or file")
	f.String("video", "", "IVF (VP8) file for the file device")
	f.String("audio", "", "Ogg (Opus) file for the file device")
	f.String("allowed-dir", "", "directory media files must live in")
	f.Bool("loop", true, "restart media files at the end")
	return cmd
}

func runPublish(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dev, err := newDevice(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := newSession(cfg, dev)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Start(ctx, domain.RoomID(cfg.Client.Room), domain.RolePublisher, nil); err != nil {
		return err
	}
	if err := sess.StartStreaming(ctx); err != nil {
		var ce *media.CaptureError
		if errors.As(err, &ce) {
			log.Error().Str("module", "client").Str("kind", ce.Kind.String()).Msg(ce.Message())
		}
		return err
	}
	log.Info().Str("module", "client").Str("room", cfg.Client.Room).Str("stream", sess.LocalStream().ID()).Msg("publishing")

	reportStatus(ctx, sess)
	return nil
}
