/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: session.go
Description: Device session lifecycle. Connect authenticates with the loaded key under a short
handshake timeout, verifies the shell with a no-op command, and returns a Session that the
caller owns and must Close on every exit path.
*/

package mobile

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultAuthTimeout bounds the authentication handshake
const DefaultAuthTimeout = 500 * time.Millisecond

// ErrConnection marks a failed connection or liveness check
var ErrConnection = errors.New("error connecting to device")

// ConnectOptions configures Connect
type ConnectOptions struct {
	ADBPath     string
	Serial      string
	AuthTimeout time.Duration
	Runner      CommandRunner
	Logger      *logrus.Logger
	// KeepServer leaves an already running adb server alone even when it cannot
	// know the signer's key. Otherwise the server is restarted to load it.
	KeepServer bool
}

// Session is an authenticated device connection
type Session struct {
	device *AndroidDeviceController
	signer *Signer
	tcp    bool
	logger *logrus.Logger

	closeOnce sync.Once
	closeErr  error
}

// Connect opens a session to the device using signer. There is no retry: any failure of
// the handshake or the verification command is returned wrapped in ErrConnection.
func Connect(ctx context.Context, signer *Signer, opts ConnectOptions) (*Session, error) {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	device := NewAndroidDeviceController(opts.ADBPath, opts.Serial, []string{signer.VendorKeysEnv()}, opts.Runner)
	s := &Session{
		device: device,
		signer: signer,
		tcp:    isNetworkSerial(opts.Serial),
		logger: opts.Logger,
	}

	s.logger.WithFields(logrus.Fields{
		"key_dir":     signer.Dir,
		"fingerprint": signer.Fingerprint(),
		"serial":      opts.Serial,
	}).Info("Connecting to device")

	if err := s.startServer(ctx, opts.KeepServer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if s.tcp {
		if err := device.ConnectTCP(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
	}

	authCtx, cancel := context.WithTimeout(ctx, opts.AuthTimeout)
	state, err := device.GetState(authCtx)
	cancel()
	if err != nil {
		s.Close()
		if errors.Is(err, ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %v (accept the key with fingerprint %s on the device)", ErrConnection, err, signer.Fingerprint())
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if state != "device" {
		s.Close()
		return nil, fmt.Errorf("%w: device state is %q", ErrConnection, state)
	}

	if _, err := device.Shell(ctx, "pwd"); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if info, err := device.GetDeviceInfo(ctx); err == nil {
		s.logger.WithFields(logrus.Fields{
			"model":   info["ro.product.model"],
			"android": info["ro.build.version.release"],
			"sdk":     info["ro.build.version.sdk"],
		}).Info("Device connected")
	} else {
		s.logger.WithError(err).Debug("Device connected, properties unavailable")
	}
	return s, nil
}

// startServer makes sure the adb server runs with the signer's key. ADB_VENDOR_KEYS is
// only read when the server starts, and the server always loads the default key.
func (s *Session) startServer(ctx context.Context, keep bool) error {
	started, err := s.device.StartServer(ctx)
	if err != nil || started || s.signer.IsDefault() {
		return err
	}

	log := s.logger.WithField("key_dir", s.signer.Dir)
	if keep {
		log.Warn("adb server was already running and will not use this key; the device prompt may show another fingerprint")
		return nil
	}
	log.Info("Restarting adb server so it loads the key")
	if err := s.device.KillServer(ctx); err != nil {
		return err
	}
	_, err = s.device.StartServer(ctx)
	return err
}

// StartView launches a VIEW intent with uri as its data
func (s *Session) StartView(ctx context.Context, uri string) error {
	return s.device.StartView(ctx, uri)
}

// ForceStop stops packageName
func (s *Session) ForceStop(ctx context.Context, packageName string) error {
	return s.device.StopApp(ctx, packageName)
}

// ClearLogs empties logcat
func (s *Session) ClearLogs(ctx context.Context) error {
	return s.device.ClearLogs(ctx)
}

// Logs dumps logcat
func (s *Session) Logs(ctx context.Context) ([]string, error) {
	return s.device.GetLogs(ctx)
}

// Close releases the session. Network devices are disconnected. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if !s.tcp {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeErr = s.device.DisconnectTCP(ctx)
	})
	return s.closeErr
}

func isNetworkSerial(serial string) bool {
	host, port, err := net.SplitHostPort(serial)
	return err == nil && host != "" && port != ""
}
