/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: mobile_helpers_test.go
Description: Shared fakes for the mobile package tests: a scripted command runner and a
cached test key pair.
*/

package mobile

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type runnerCall struct {
	Env  []string
	Name string
	Args []string
}

type runnerReply struct {
	output string
	err    error
}

// fakeRunner answers adb invocations by matching the joined argument list
type fakeRunner struct {
	mu      sync.Mutex
	calls   []runnerCall
	replies map[string]runnerReply
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{replies: map[string]runnerReply{
		"start-server": {output: "* daemon not running; starting now at tcp:5037\n* daemon started successfully\n"},
		"get-state":    {output: "device\n"},
		"shell pwd":    {output: "/\n"},
	}}
}

func (f *fakeRunner) on(args string, output string, err error) {
	f.replies[args] = runnerReply{output: output, err: err}
}

func (f *fakeRunner) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runnerCall{Env: env, Name: name, Args: args})

	key := strings.Join(stripSerial(args), " ")
	if reply, ok := f.replies[key]; ok {
		return []byte(reply.output), reply.err
	}
	return nil, nil
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c.Args, " ")
	}
	return out
}

func stripSerial(args []string) []string {
	if len(args) >= 2 && args[0] == "-s" {
		return args[2:]
	}
	return args
}

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func sharedTestKey(t *testing.T) *rsa.PrivateKey {
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, adbKeyBits)
		require.NoError(t, err)
	})
	return testKey
}

// writeTestKeys writes a valid key pair into a fresh directory and returns it
func writeTestKeys(t *testing.T) string {
	t.Helper()
	key := sharedTestKey(t)
	dir := t.TempDir()

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, PrivateKeyFile),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0600))

	pub, err := EncodeAndroidPublicKey(&key.PublicKey, "tester@host")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, PublicKeyFile), []byte(pub+"\n"), 0644))
	return dir
}
