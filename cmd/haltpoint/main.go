package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mstrand/haltpoint/internal/client"
	"github.com/mstrand/haltpoint/internal/config"
	"github.com/mstrand/haltpoint/internal/dapserver"
	"github.com/mstrand/haltpoint/internal/debugger"
	"github.com/mstrand/haltpoint/internal/mcp"
	"github.com/mstrand/haltpoint/internal/replay"
	"github.com/mstrand/haltpoint/internal/version"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	serve := flag.String("serve", "mcp", "Protocol to serve: 'mcp' or 'dap'")
	listen := flag.String("listen", "stdio", "DAP listen address: 'stdio' or host:port")
	trace := flag.String("trace", "", "Path to the trace file to replay")
	mode := flag.String("mode", "full", "Capability mode: 'readonly' or 'full'")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the file
	switch *mode {
	case "readonly":
		cfg.Mode = config.ModeReadOnly
	case "full":
		cfg.Mode = config.ModeFull
	}
	if *trace != "" {
		cfg.Trace = *trace
	}

	switch *serve {
	case "mcp":
		serveMCP(cfg)
	case "dap":
		serveDAP(cfg, *listen)
	default:
		log.Fatalf("Unknown -serve value %q (want 'mcp' or 'dap')", *serve)
	}
}

func serveMCP(cfg *config.Config) {
	server := mcp.NewServer(cfg)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		server.Close()
		os.Exit(0)
	}()

	log.Println("haltpoint MCP server starting...")
	if err := server.ServeStdio(); err != nil {
		server.Close()
		log.Fatalf("Server error: %v", err)
	}
	server.Close()
}

func serveDAP(cfg *config.Config, listen string) {
	if cfg.Trace == "" {
		log.Fatalf("DAP mode needs a trace: pass -trace or set it in the configuration file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	if listen == "stdio" {
		log.Printf("%s: serving DAP on stdio (trace: %s)", version.Info(), cfg.Trace)
		if err := serveSession(ctx, cfg, dapserver.NewStdioTransport()); err != nil {
			log.Fatalf("Session error: %v", err)
		}
		return
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", listen, err)
	}
	log.Printf("%s: DAP server listening on %s (trace: %s)", version.Info(), ln.Addr(), cfg.Trace)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Accept failed: %v", err)
			continue
		}

		log.Printf("Editor connected from %s", conn.RemoteAddr())
		go func(conn net.Conn) {
			if err := serveSession(ctx, cfg, dapserver.NewTransport(conn)); err != nil {
				log.Printf("Session error: %v", err)
			}
			log.Printf("Editor at %s disconnected", conn.RemoteAddr())
		}(conn)
	}
}

// serveSession runs one editor connection against one fresh replay of the
// configured trace.
func serveSession(ctx context.Context, cfg *config.Config, transport *dapserver.Transport) error {
	trace, err := replay.LoadTrace(cfg.Trace)
	if err != nil {
		return err
	}
	eng := replay.NewEngine(trace)

	opts, err := cfg.Session()
	if err != nil {
		return err
	}
	dbg, err := debugger.New(opts, eng)
	if err != nil {
		return err
	}

	session := client.New(dbg)
	srv := dapserver.NewServer(transport, session, dbg.Translator())

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the transport is what unblocks a pending read on shutdown.
	go func() {
		<-serveCtx.Done()
		transport.Close()
	}()

	// The replay runs on its own goroutine; this one serves the editor.
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		dbg.WaitForCommands()
		if err := eng.Run(serveCtx, dbg); err != nil {
			log.Printf("Replay ended early: %v", err)
		}
		srv.Terminated()
	}()

	err = srv.Serve(serveCtx)

	// Unblock the engine if the editor left mid-session, then stop it.
	if cerr := session.Close(); cerr != nil {
		log.Printf("Warning: failed to close session: %v", cerr)
	}
	cancel()
	<-engineDone

	return err
}

func printHelp() {
	fmt.Println(`haltpoint: replay debugger for recorded script executions

Replays execution traces through a breakpoint-and-step debug core and exposes
the session over the Debug Adapter Protocol (for editors) or the Model
Context Protocol (for AI agents).

USAGE:
    haltpoint [OPTIONS]

OPTIONS:
    -config <path>     Path to configuration file (JSON)
    -serve <protocol>  Protocol to serve: 'mcp' or 'dap' (default: mcp)
    -listen <addr>     DAP listen address: 'stdio' or host:port (default: stdio)
    -trace <path>      Path to the trace file to replay
    -mode <mode>       Capability mode: 'readonly' or 'full' (default: full)
    -version           Show version and exit
    -help              Show this help message

CONFIGURATION:
    Create a JSON configuration file to customize behavior:

    {
        "mode": "full",
        "allowEvaluate": true,
        "stopSeverity": "fatal",
        "trace": "./trace.json",
        "sourceMaps": [
            {"path": "./dist/app.js.map"}
        ],
        "maxSessions": 10,
        "sessionTimeout": "30m"
    }

    stopSeverity sets the diagnostic level that pauses the replay:
    'information', 'warning', 'error', or 'fatal' (default: fatal).

DAP MODE:
    Serve one editor over stdio:

        haltpoint -serve dap -trace ./trace.json

    Or accept editor connections over TCP, one fresh replay per connection:

        haltpoint -serve dap -listen 127.0.0.1:4711 -trace ./trace.json

MCP INTEGRATION:
    Add to your MCP client configuration:

    {
        "mcpServers": {
            "haltpoint": {
                "command": "haltpoint",
                "args": ["-trace", "./trace.json"]
            }
        }
    }

TOOLS:
    Session Management:
        debug_launch          Start replaying a recorded trace
        debug_disconnect      End a replay session
        debug_list_sessions   List active sessions

    Inspection (both modes):
        debug_snapshot        Stack frames, scopes, and variables in one call
        debug_evaluate        Look up values in a paused frame

    Control (full mode only):
        debug_breakpoints     Add/remove/enable/disable breakpoints
        debug_continue        Resume until the next stop
        debug_step            Step in/over/out`)
}
