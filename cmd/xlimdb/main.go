package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/kartikbazzad/xlimdb/internal/config"
	"github.com/kartikbazzad/xlimdb/internal/logger"
	"github.com/kartikbazzad/xlimdb/internal/metrics"
	"github.com/kartikbazzad/xlimdb/internal/protocol"
	"github.com/kartikbazzad/xlimdb/internal/storage"
	"github.com/kartikbazzad/xlimdb/internal/txn"
	"github.com/kartikbazzad/xlimdb/pkg/client"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "server":
		runServer(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "shell":
		runShell(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: xlimdb <server|query|shell> [flags]")
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	port := fs.Int("port", 7878, "TCP port to listen on")
	dataDir := fs.String("data-dir", "./data", "directory for database files")
	metricsAddr := fs.String("metrics-addr", "", "address to serve /metrics on (empty = disabled)")
	maxConns := fs.Int("max-connections", 256, "bounded connection-handler pool size")
	fs.Parse(args)

	cfg := config.DefaultConfig()
	cfg.DataDir = *dataDir
	cfg.IPC.Address = fmt.Sprintf(":%d", *port)
	cfg.IPC.MaxConnections = *maxConns

	logr := logger.Default()
	logr.Info("starting xlimdb server")
	logr.Info("data directory: %s", cfg.DataDir)

	eng, err := storage.Open(cfg, logr)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer eng.Close()

	txns := txn.NewManager(eng)
	handler := protocol.NewHandler(eng, txns, logr)
	server := protocol.NewServer(cfg, logr, handler)

	if err := server.Start(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}

	if *metricsAddr != "" {
		go func() {
			logr.Info("metrics listening on %s", *metricsAddr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logr.Error("metrics server error: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logr.Info("shutting down")
	if err := server.Stop(); err != nil {
		logr.Error("error during shutdown: %v", err)
	}
	logr.Info("xlimdb stopped")
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	serverAddr := fs.String("server", "localhost:7878", "server address host:port")
	collection := fs.String("collection", "", "collection to query")
	fs.Parse(args)

	if *collection == "" {
		fmt.Fprintln(os.Stderr, "query: -collection is required")
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: xlimdb query -collection <name> '<raw protocol command>'")
		os.Exit(1)
	}
	// The raw command's verb takes the collection as its first argument,
	// same as every other command over the wire (e.g. "GET users <id>").
	verb := fs.Arg(0)
	rest := fs.Args()[1:]
	parts := append([]string{verb, *collection}, rest...)
	cmd := strings.Join(parts, " ")

	c, err := client.Connect(*serverAddr)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer c.Close()

	reply, err := c.Send(cmd)
	if err != nil {
		log.Fatalf("query: %v", err)
	}
	fmt.Println(strings.TrimSpace(reply))
}

func runShell(args []string) {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	serverAddr := fs.String("server", "localhost:7878", "server address host:port")
	fs.Parse(args)

	fmt.Printf("xlimdb shell\nConnecting to %s...\n", *serverAddr)
	c, err := client.Connect(*serverAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	fmt.Println("Connected. Type a protocol command, or 'quit' to exit.")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		cmd, err := line.Prompt("xlimdb> ")
		if err != nil {
			fmt.Println()
			return
		}
		if cmd == "" {
			continue
		}
		line.AppendHistory(cmd)

		if cmd == "quit" || cmd == "exit" {
			return
		}

		reply, err := c.Send(cmd)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			continue
		}
		fmt.Println(reply)
	}
}
