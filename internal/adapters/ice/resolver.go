// Package ice discovers traversal servers from the rendezvous HTTP endpoint.
package ice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	path         = "/api/ice"
	maxBodyBytes = 1 << 20
	logBodyBytes = 200
)

var (
	errStatus      = errors.New("unexpected status")
	errContentType = errors.New("unexpected content type")
	errEmptyList   = errors.New("empty ice server list")
)

// Fallback is the public STUN list used whenever discovery fails.
func Fallback() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:global.stun.twilio.com:3478"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
		{URLs: []string{"stun:stun2.l.google.com:19302"}},
		{URLs: []string{"stun:stun3.l.google.com:19302"}},
		{URLs: []string{"stun:stun4.l.google.com:19302"}},
	}
}

type Resolver struct {
	BaseURL string
	Client  *http.Client
}

func NewResolver(baseURL string) *Resolver {
	return &Resolver{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Resolve fetches the server list once. It never fails: any problem yields Fallback().
func (r *Resolver) Resolve(ctx context.Context) []webrtc.ICEServer {
	servers, err := r.fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "ice").Str("base_url", r.BaseURL).Msg("could not fetch ice servers, using fallback")
		return Fallback()
	}
	log.Info().Str("module", "ice").Int("count", len(servers)).Msg("ice servers fetched")
	return servers
}

type iceReply struct {
	ICEServers []iceServerJSON `json:"iceServers"`
}

type iceServerJSON struct {
	URLs       stringOrStringSlice `json:"urls"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

func (r *Resolver) fetch(ctx context.Context) ([]webrtc.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(r.BaseURL, "/")+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	log.Debug().Str("module", "ice").Int("status", resp.StatusCode).Str("content_type", resp.Header.Get("Content-Type")).Msg("ice response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, logBodyBytes))
		log.Warn().Str("module", "ice").Str("body", string(text)).Msg("received non-JSON response")
		return nil, fmt.Errorf("%w: %q", errContentType, contentType)
	}

	var reply iceReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make([]webrtc.ICEServer, 0, len(reply.ICEServers))
	for _, s := range reply.ICEServers {
		urls := make([]string, 0, len(s.URLs))
		for _, u := range s.URLs {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) == 0 {
			continue
		}
		server := webrtc.ICEServer{URLs: urls, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	if len(out) == 0 {
		return nil, errEmptyList
	}
	return out, nil
}

// Static serves a configured list. An empty list resolves to Fallback().
type Static []webrtc.ICEServer

func (s Static) Resolve(context.Context) []webrtc.ICEServer {
	if len(s) == 0 {
		return Fallback()
	}
	return s
}
