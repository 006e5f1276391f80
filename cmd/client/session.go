package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Broadcast/internal/adapters/ice"
	"github.com/dkeye/Broadcast/internal/adapters/rtc"
	"github.com/dkeye/Broadcast/internal/adapters/signal"
	"github.com/dkeye/Broadcast/internal/app/media"
	"github.com/dkeye/Broadcast/internal/app/orch"
	"github.com/dkeye/Broadcast/internal/config"
)

const statusEvery = 10 * time.Second

var errNoRoom = errors.New("room is required (--room or client.room)")

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Client.Room == "" {
		return nil, errNoRoom
	}
	return cfg, nil
}

func newResolver(cfg *config.Config) orch.Resolver {
	if cfg.Client.APIBaseURL == "" {
		return ice.Static(cfg.PionICEServers())
	}
	r := ice.NewResolver(cfg.Client.APIBaseURL)
	if cfg.Client.ICETimeout > 0 {
		r.Client.Timeout = cfg.Client.ICETimeout
	}
	return r
}

func newDevice(cfg *config.Config) (media.Device, error) {
	switch cfg.Media.Device {
	case "", "synthetic":
		return media.NewSyntheticDevice(), nil
	case "file":
		return &media.FileDevice{
			VideoPath:  cfg.Media.VideoPath,
			AudioPath:  cfg.Media.AudioPath,
			AllowedDir: cfg.Media.AllowedDir,
			Loop:       cfg.Media.Loop,
		}, nil
	default:
		return nil, fmt.Errorf("unknown media device %q", cfg.Media.Device)
	}
}

func newSession(cfg *config.Config, dev media.Device) (*orch.Session, error) {
	peers, err := rtc.NewFactory()
	if err != nil {
		return nil, err
	}
	ch := signal.NewChannel(signal.Config{
		URL:        cfg.Client.SignalURL,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendQueue:  cfg.Client.SendQueue,
	})
	return orch.New(orch.Options{
		Signal:      ch,
		Peers:       peers,
		Resolver:    newResolver(cfg),
		Device:      dev,
		Constraints: cfg.Media.Constraints,
	}), nil
}

// reportStatus logs the session status until ctx is done.
func reportStatus(ctx context.Context, s *orch.Session) {
	ticker := time.NewTicker(statusEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.Status()
			log.Info().
				Str("module", "client").
				Str("room", string(st.Room)).
				Str("connection", st.Connection.String()).
				Str("state", st.Session.String()).
				Bool("streaming", st.Streaming).
				Int("viewers", st.ViewerCount).
				Int("peers", st.Peers).
				Msg("status")
		}
	}
}
