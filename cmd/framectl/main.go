package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog"

	"github.com/danmuck/framectl/internal/config"
	"github.com/danmuck/framectl/internal/logging"
	"github.com/danmuck/framectl/internal/pipeline"
	"github.com/danmuck/framectl/internal/secframe/gcm"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "send":
		err = runSend(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "framectl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: framectl <serve|send> [-config path] [-msg text]")
}

func setup(configPath string) (config.PeerConfig, zerolog.Logger, []byte, error) {
	cfg, err := loadPeerConfig(configPath)
	if err != nil {
		return config.PeerConfig{}, zerolog.Logger{}, nil, err
	}
	if os.Getenv(logging.EnvLogLevel) == "" {
		os.Setenv(logging.EnvLogLevel, cfg.LogLevel)
	}
	log := logging.New(cfg.Name, logging.ProfileRuntime)
	key, err := cfg.Key()
	if err != nil {
		return config.PeerConfig{}, zerolog.Logger{}, nil, err
	}
	return cfg, log, key, nil
}

func stageLimits(cfg config.PeerConfig) gcm.Limits {
	return gcm.Limits{
		MaxPlaintextPerRecord: cfg.Stage.MaxPlaintextPerRecord,
		MaxRecordBytes:        cfg.Stage.MaxRecordBytes,
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "framectl.toml", "path to peer config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, key, err := setup(*configPath)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	log.Info().Str("addr", cfg.Addr).Msg("echo server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveConn(conn, key, cfg, log)
	}
}

func serveConn(conn net.Conn, key []byte, cfg config.PeerConfig, log zerolog.Logger) {
	peer := conn.RemoteAddr().String()
	connLog := log.With().Str("peer", peer).Logger()

	prot, err := gcm.New(key, false, stageLimits(cfg))
	if err != nil {
		connLog.Error().Err(err).Msg("protector setup failed")
		conn.Close()
		return
	}

	pl := pipeline.New(conn, prot, pipeline.Config{ReadBufferBytes: cfg.Stage.ReadBufferBytes}, connLog)
	err = pl.Serve(func(frame []byte) error {
		connLog.Debug().Int("bytes", len(frame)).Msg("echoing frame")
		return pl.Send(frame)
	})
	if err != nil {
		connLog.Warn().Err(err).Msg("session ended with error")
		return
	}
	connLog.Info().Msg("session closed")
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	configPath := fs.String("config", "framectl.toml", "path to peer config")
	msg := fs.String("msg", "ping", "message to send")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, key, err := setup(*configPath)
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}

	prot, err := gcm.New(key, true, stageLimits(cfg))
	if err != nil {
		conn.Close()
		return err
	}

	pl := pipeline.New(conn, prot, pipeline.Config{ReadBufferBytes: cfg.Stage.ReadBufferBytes}, log)
	if err := pl.Send([]byte(*msg)); err != nil {
		pl.Close()
		return fmt.Errorf("send: %w", err)
	}

	errDone := errors.New("done")
	err = pl.Serve(func(frame []byte) error {
		fmt.Printf("%s\n", frame)
		return errDone
	})
	if err != nil && !errors.Is(err, errDone) {
		return err
	}
	return nil
}
