/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: adb_controller.go
Description: AndroidDeviceController drives a device through the adb binary. Every call is a
single adb invocation routed through a CommandRunner, which keeps the controller testable and
lets the environment carry the vendor key used for authentication.
*/

package mobile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ViewAction is the intent action used to open deep links
const ViewAction = "android.intent.action.VIEW"

// ErrUnauthorized is returned when the device has not accepted the host key
var ErrUnauthorized = errors.New("device unauthorized")

// CommandRunner runs an external command and returns its combined output
type CommandRunner interface {
	Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run executes name with args, appending env to the current environment
func (ExecRunner) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// AndroidDeviceController issues adb commands against one device
type AndroidDeviceController struct {
	ADBPath string   // adb binary
	Serial  string   // device serial or host:port, empty for the only attached device
	Env     []string // extra environment for every adb call

	runner CommandRunner
}

// NewAndroidDeviceController creates a controller. A nil runner uses ExecRunner.
func NewAndroidDeviceController(adbPath, serial string, env []string, runner CommandRunner) *AndroidDeviceController {
	if adbPath == "" {
		adbPath = "adb"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &AndroidDeviceController{ADBPath: adbPath, Serial: serial, Env: env, runner: runner}
}

func (c *AndroidDeviceController) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.Serial != "" {
		args = append([]string{"-s", c.Serial}, args...)
	}
	return c.runner.Run(ctx, c.Env, c.ADBPath, args...)
}

// StartServer starts the local adb server. It reports false when a server was already
// running, in which case the server keeps the keys it was started with.
func (c *AndroidDeviceController) StartServer(ctx context.Context) (bool, error) {
	output, err := c.runner.Run(ctx, c.Env, c.ADBPath, "start-server")
	if err != nil {
		return false, fmt.Errorf("start-server failed: %v, output: %s", err, output)
	}
	return bytes.Contains(output, []byte("daemon started successfully")), nil
}

// KillServer stops the local adb server
func (c *AndroidDeviceController) KillServer(ctx context.Context) error {
	output, err := c.runner.Run(ctx, c.Env, c.ADBPath, "kill-server")
	if err != nil {
		return fmt.Errorf("kill-server failed: %v, output: %s", err, output)
	}
	return nil
}

// ConnectTCP attaches a network device given as host:port
func (c *AndroidDeviceController) ConnectTCP(ctx context.Context) error {
	output, err := c.runner.Run(ctx, c.Env, c.ADBPath, "connect", c.Serial)
	if err != nil {
		return fmt.Errorf("connect failed: %v, output: %s", err, output)
	}
	if !bytes.Contains(output, []byte("connected to")) {
		return fmt.Errorf("connect failed: %s", bytes.TrimSpace(output))
	}
	return nil
}

// DisconnectTCP detaches a network device
func (c *AndroidDeviceController) DisconnectTCP(ctx context.Context) error {
	output, err := c.runner.Run(ctx, c.Env, c.ADBPath, "disconnect", c.Serial)
	if err != nil {
		return fmt.Errorf("disconnect failed: %v, output: %s", err, output)
	}
	return nil
}

// GetState returns the adb state of the device (device, offline, unauthorized)
func (c *AndroidDeviceController) GetState(ctx context.Context) (string, error) {
	output, err := c.run(ctx, "get-state")
	state := strings.TrimSpace(string(output))
	if strings.Contains(state, "unauthorized") {
		return "unauthorized", ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("get-state failed: %v, output: %s", err, output)
	}
	return state, nil
}

// Shell runs command through the device shell
func (c *AndroidDeviceController) Shell(ctx context.Context, command string) (string, error) {
	output, err := c.run(ctx, "shell", command)
	if err != nil {
		return string(output), fmt.Errorf("shell %q failed: %v, output: %s", command, err, output)
	}
	return string(output), nil
}

// StartView launches a VIEW intent for uri. The uri is single-quoted for the device shell,
// and cut at the first NUL byte since the device reads the command as a C string.
func (c *AndroidDeviceController) StartView(ctx context.Context, uri string) error {
	if i := strings.IndexByte(uri, 0); i >= 0 {
		uri = uri[:i]
	}
	_, err := c.Shell(ctx, fmt.Sprintf("am start -a %s -d '%s'", ViewAction, uri))
	return err
}

// StopApp force-stops packageName
func (c *AndroidDeviceController) StopApp(ctx context.Context, packageName string) error {
	_, err := c.Shell(ctx, "am force-stop "+packageName)
	return err
}

// ClearLogs empties the logcat buffers
func (c *AndroidDeviceController) ClearLogs(ctx context.Context) error {
	output, err := c.run(ctx, "logcat", "-c")
	if err != nil {
		return fmt.Errorf("logcat clear failed: %v, output: %s", err, output)
	}
	return nil
}

// GetLogs dumps the current logcat buffer
func (c *AndroidDeviceController) GetLogs(ctx context.Context) ([]string, error) {
	output, err := c.run(ctx, "logcat", "-d")
	if err != nil {
		return nil, fmt.Errorf("logcat failed: %v", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var logs []string
	for scanner.Scan() {
		logs = append(logs, scanner.Text())
	}
	return logs, scanner.Err()
}

// GetDeviceInfo returns the device properties reported by getprop
func (c *AndroidDeviceController) GetDeviceInfo(ctx context.Context) (map[string]string, error) {
	output, err := c.Shell(ctx, "getprop")
	if err != nil {
		return nil, err
	}
	info := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "[") {
			parts := strings.SplitN(line, ": ", 2)
			if len(parts) == 2 {
				key := strings.Trim(parts[0], "[]")
				val := strings.Trim(strings.TrimSpace(parts[1]), "[]")
				info[key] = val
			}
		}
	}
	return info, nil
}
