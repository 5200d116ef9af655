// Command braidd serves a braid datastore over TCP. The backend is selected
// by a URI-like string: memory:// for the ephemeral store, badger:///path for
// the persistent engine. An optional HTTP address exposes health and stats.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/braidstore/braid/internal/server"
	"github.com/braidstore/braid/internal/store"
	"github.com/braidstore/braid/internal/version"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:27615", "TCP service address")
	storeURL := flag.String("store", "memory://", "datastore url (memory://, badger:///path)")
	workers := flag.Int("workers", 8, "connection worker pool size")
	httpAddr := flag.String("http", "", "optional HTTP status address")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.BuildInfo())
		os.Exit(0)
	}

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "braidd",
	})

	// The daemon's wire schema is fixed to uuid identifiers.
	ds, err := store.Open[uuid.UUID](*storeURL)
	if err != nil {
		logger.Fatal("opening datastore", "url", *storeURL, "err", err)
	}
	defer ds.Close()

	srv, err := server.New(server.Config{Addr: *addr, Workers: *workers}, ds, logger)
	if err != nil {
		logger.Fatal("configuring server", "err", err)
	}
	if err := srv.Start(); err != nil {
		logger.Fatal("starting server", "err", err)
	}

	var status *statusServer
	if *httpAddr != "" {
		status = newStatusServer(*httpAddr, srv, logger)
		status.start()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())

	if status != nil {
		status.stop()
	}
	if err := srv.Close(); err != nil {
		logger.Error("closing server", "err", err)
	}
}
