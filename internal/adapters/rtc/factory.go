package rtc

import (
	"fmt"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
)

type options struct {
	net    transport.Net
	logger logging.LoggerFactory
}

type Option func(*options)

// WithNet routes all ICE traffic through n (e.g. a vnet.Net in tests).
func WithNet(n transport.Net) Option {
	return func(o *options) { o.net = n }
}

func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(o *options) { o.logger = lf }
}

// Factory builds peer connections sharing one pion API.
type Factory struct {
	api *webrtc.API
}

var _ core.PeerFactory = (*Factory)(nil)

func NewFactory(opts ...Option) (*Factory, error) {
	o := options{logger: NewLoggerFactory()}
	for _, opt := range opts {
		opt(&o)
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: o.logger}
	if o.net != nil {
		se.SetNet(o.net)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
	)
	return &Factory{api: api}, nil
}

func (f *Factory) NewPeerConn(servers []webrtc.ICEServer, remote domain.PeerID) (core.PeerConn, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newConnection(pc, remote), nil
}
