package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func stashGlobals(t *testing.T) {
	t.Helper()
	origArgs := args
	origListenTCP := listenTCP
	origListenAndServe := listenAndServe
	origExitFunc := exitFunc
	origExit := exit
	t.Cleanup(func() {
		args = origArgs
		listenTCP = origListenTCP
		listenAndServe = origListenAndServe
		exitFunc = origExitFunc
		exit = origExit
	})
}

func TestRunReturnsListenError(t *testing.T) {
	stashGlobals(t)

	listenAndServe = func(addr string, handler http.Handler) error {
		if handler == nil {
			t.Error("expected handler")
		}
		return nil
	}
	listenTCP = func(network, addr string) (net.Listener, error) {
		if network != "tcp" || addr != "127.0.0.1:14000" {
			t.Errorf("unexpected listen target %s %s", network, addr)
		}
		return nil, errors.New("boom")
	}
	args = []string{"-addr", "127.0.0.1:14000", "-data-dir", t.TempDir()}

	if err := run(context.Background()); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
}

func TestRunRejectsBadPresenceScope(t *testing.T) {
	stashGlobals(t)
	args = []string{"-presence-scope", "bogus", "-data-dir", t.TempDir()}

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "presence scope") {
		t.Fatalf("expected presence scope error, got %v", err)
	}
}

func TestRunRejectsBadEngine(t *testing.T) {
	stashGlobals(t)
	args = []string{"-engine", "parchment", "-data-dir", t.TempDir()}

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unknown engine") {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	stashGlobals(t)
	args = []string{"-definitely-not-a-flag"}

	if err := run(context.Background()); err == nil {
		t.Fatalf("expected flag parse error")
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	stashGlobals(t)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	listening := make(chan string, 1)
	listenTCP = func(network, addr string) (net.Listener, error) {
		listening <- addr
		return net.Listen("tcp", "127.0.0.1:0")
	}
	listenAndServe = func(string, http.Handler) error { return nil }
	args = []string{
		"-addr", "127.0.0.1:0",
		"-data-dir", t.TempDir(),
		"-redis-addr", mr.Addr(),
		"-engine", "buffer",
	}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- run(ctx) }()

	select {
	case addr := <-listening:
		if addr != "127.0.0.1:0" {
			t.Errorf("expected flag-provided addr, got %s", addr)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run never listened")
	}

	cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

func TestMainHandlesError(t *testing.T) {
	stashGlobals(t)

	var got error
	exitFunc = func(err error) { got = err }
	args = []string{"-engine", "bogus"}

	main()

	if got == nil || !strings.Contains(got.Error(), "unknown engine") {
		t.Fatalf("expected exitFunc to capture error, got %v", got)
	}
}

func TestDefaultExit(t *testing.T) {
	stashGlobals(t)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })

	var gotCode int
	exit = func(code int) { gotCode = code }
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	defaultExit(errors.New("boom"))
	if gotCode != 1 {
		t.Fatalf("expected exit code 1, got %d", gotCode)
	}
	if !bytes.Contains(buf.Bytes(), []byte("boom")) {
		t.Fatalf("expected log to contain boom, got %q", buf.String())
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("CARNELIA_TEST_KEY", "")
	if got := envOr("CARNELIA_TEST_KEY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("CARNELIA_TEST_KEY", "set")
	if got := envOr("CARNELIA_TEST_KEY", "fallback"); got != "set" {
		t.Fatalf("expected env value, got %q", got)
	}
}

func TestPickEngine(t *testing.T) {
	if _, err := pickEngine("crdt"); err != nil {
		t.Fatalf("crdt: %v", err)
	}
	if _, err := pickEngine("buffer"); err != nil {
		t.Fatalf("buffer: %v", err)
	}
	if _, err := pickEngine("papyrus"); err == nil {
		t.Fatalf("expected error for unknown engine")
	}
}
