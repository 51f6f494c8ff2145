// Package wol wakes the storage host that serves the output directory.
package wol

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(broadcastIP string, mac net.HardwareAddr) error
}

// PathProber reports whether a path on the storage host is reachable.
type PathProber interface {
	Reachable(path string) error
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to the specified MAC address.
func (c *DefaultClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return fmt.Errorf("invalid broadcast IP: %s", broadcastIP)
	}

	if err := client.Wake(ip.String()+":9", mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// StatProber checks that the path is an existing directory.
type StatProber struct{}

// Reachable stats path.
func (StatProber) Reachable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient Client
	prober    PathProber
	logger    zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		prober:    StatProber{},
		logger:    logger,
	}
}

// NewWithClients creates a new WOL service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, wolClient Client, prober PathProber) *Impl {
	return &Impl{
		wolClient: wolClient,
		prober:    prober,
		logger:    logger,
	}
}

// Wake sends a WOL packet and waits for the wait path to appear.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}
	start := time.Now()

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		result.Error = fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err)
		return result, nil
	}

	// already mounted, nothing to wake
	if cfg.WaitPath != "" && s.prober.Reachable(cfg.WaitPath) == nil {
		s.logger.Info().Str("path", cfg.WaitPath).Msg("storage already reachable, skipping WOL")
		result.TargetReady = true
		return result, nil
	}

	s.logger.Info().
		Str("mac", cfg.MACAddress).
		Str("broadcast", cfg.BroadcastIP).
		Msg("sending WOL packet")

	if err := s.wolClient.Wake(cfg.BroadcastIP, mac); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct
	}

	result.PacketSent = true
	s.logger.Info().Msg("WOL packet sent successfully")

	if cfg.WaitPath == "" {
		result.WaitDuration = time.Since(start)
		result.TargetReady = true
		return result, nil
	}

	s.logger.Info().
		Str("path", cfg.WaitPath).
		Dur("timeout", cfg.Timeout).
		Msg("waiting for storage to become reachable")

	if err := s.waitForPath(ctx, cfg); err != nil {
		result.WaitDuration = time.Since(start)
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct
	}

	if cfg.StabilizeWait > 0 {
		s.logger.Debug().Str("wait", cfg.StabilizeWait.Round(time.Millisecond).String()).Msg("waiting for storage to stabilize")
		select {
		case <-ctx.Done():
			result.WaitDuration = time.Since(start)
			result.Error = ctx.Err()
			return result, nil
		case <-time.After(cfg.StabilizeWait):
		}
	}

	result.TargetReady = true
	result.WaitDuration = time.Since(start)

	s.logger.Info().
		Dur("duration", result.WaitDuration).
		Msg("storage is ready")

	return result, nil
}

func (s *Impl) waitForPath(ctx context.Context, cfg models.WOLConfig) error {
	deadline := time.Now().Add(cfg.Timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for %s", cfg.WaitPath)
		}

		err := s.prober.Reachable(cfg.WaitPath)
		if err == nil {
			return nil
		}

		s.logger.Debug().Err(err).Msg("storage not ready yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
}
