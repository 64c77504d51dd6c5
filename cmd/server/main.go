package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/Agate-DB/Carnelia-Collab/internal/routers"
	"github.com/Agate-DB/Carnelia-Collab/internal/server"
	"github.com/Agate-DB/Carnelia-Collab/internal/session"
	"github.com/Agate-DB/Carnelia-Collab/internal/storage"
	"github.com/Agate-DB/Carnelia-Collab/internal/store"
	"github.com/Agate-DB/Carnelia-Collab/internal/utils"
)

var (
	defaultTCPAddr  = "0.0.0.0:4000"
	defaultHTTPAddr = "0.0.0.0:8080"
	defaultDataDir  = "data"

	args           = os.Args[1:]
	logger         = utils.NewLogger()
	listenTCP      = net.Listen
	listenAndServe = http.ListenAndServe
	exitFunc       = defaultExit
	exit           = os.Exit
)

func main() {
	if err := run(context.Background()); err != nil {
		exitFunc(err)
	}
}

func run(ctx context.Context) error {
	fs := flag.NewFlagSet("carnelia-server", flag.ContinueOnError)
	tcpAddr := fs.String("addr", envOr("ADDR", defaultTCPAddr), "TCP address for the collab protocol")
	httpAddr := fs.String("http-addr", envOr("HTTP_ADDR", defaultHTTPAddr), "HTTP address for health, metrics and websocket")
	dataDir := fs.String("data-dir", envOr("DATA_DIR", defaultDataDir), "directory for document snapshots")
	redisAddr := fs.String("redis-addr", os.Getenv("REDIS_ADDR"), "optional redis address for snapshot mirroring")
	authSecret := fs.String("auth-secret", os.Getenv("AUTH_SECRET"), "optional HS256 secret; joins must carry a token when set")
	presenceScope := fs.String("presence-scope", envOr("PRESENCE_SCOPE", "room"), "presence broadcast scope: room or doc")
	engineName := fs.String("engine", envOr("ENGINE", "crdt"), "text store engine: crdt or buffer")
	if err := fs.Parse(args); err != nil {
		return err
	}

	scope, err := session.ParsePresenceScope(*presenceScope)
	if err != nil {
		return err
	}
	engine, err := pickEngine(*engineName)
	if err != nil {
		return err
	}
	utils.SetJoinSecret(*authSecret)

	writer := storage.NewWriter(logger, *dataDir)
	if *redisAddr != "" {
		writer.SetMirror(redis.NewClient(&redis.Options{Addr: *redisAddr}))
		logger.Info("snapshot mirroring enabled", "redis", *redisAddr)
	}

	hub := session.NewHub(server.DocumentOpener(writer, engine))
	dispatch := session.NewDispatcher(logger, scope)
	relay := server.NewRelay(logger, hub, dispatch, writer)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go writer.Run(ctx)

	go func() {
		if err := listenAndServe(*httpAddr, routers.New(logger, relay, hub)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err.Error())
		}
	}()

	ln, err := listenTCP("tcp", *tcpAddr)
	if err != nil {
		return err
	}
	logger.Info("carnelia-collab listening", "tcp", *tcpAddr, "http", *httpAddr)

	err = relay.Serve(ctx, ln)
	writer.Flush()
	return err
}

func pickEngine(name string) (store.Factory, error) {
	switch name {
	case "crdt":
		return store.NewCRDT, nil
	case "buffer":
		return store.NewBuffer, nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want crdt or buffer)", name)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultExit(err error) {
	logger.Error("carnelia-server exiting", "error", err.Error())
	exit(1)
}
