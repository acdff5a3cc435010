package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/libp2p/go-reuseport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/statsdproxy/statsdproxy"
	"github.com/statsdproxy/statsdproxy/pkg/config"
	"github.com/statsdproxy/statsdproxy/pkg/driver"
	"github.com/statsdproxy/statsdproxy/pkg/pipeline"
	"github.com/statsdproxy/statsdproxy/pkg/stats"
)

const (
	paramListen   = "listen"
	paramUpstream = "upstream"
	paramConfig   = "config-path"
	paramVerbose  = "verbose"
	paramIdleTick = "idle-tick"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	listen := cmd.String(paramListen, ":8125", "UDP address to listen on")
	upstream := cmd.String(paramUpstream, "", "UDP address of the upstream statsd server")
	configPath := cmd.StringP(paramConfig, "c", "", "Path to the middleware chain configuration file")
	verbose := cmd.Bool(paramVerbose, false, "Verbose logging")
	idleTick := cmd.Duration(paramIdleTick, driver.DefaultIdleTick, "Idle tick interval driving middleware flushes")

	if err := cmd.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		logrus.Errorf("error parsing flags: %v", err)
		return 1
	}

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *upstream == "" {
		logrus.Error("--upstream is required")
		return 1
	}

	cfg := pipeline.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logrus.Errorf("error loading config: %v", err)
			return 1
		}
		cfg = loaded
	}

	sink, err := net.DialUDP("udp", nil, mustResolve(*upstream))
	if err != nil {
		logrus.Errorf("error dialing upstream %s: %v", *upstream, err)
		return 1
	}
	defer sink.Close()

	chain, err := pipeline.Build(cfg, sink)
	if err != nil {
		logrus.Errorf("error building middleware chain: %v", err)
		return 1
	}

	conn, err := reuseport.ListenPacket("udp", *listen)
	if err != nil {
		logrus.Errorf("error binding listen socket %s: %v", *listen, err)
		return 2
	}
	defer conn.Close()

	statser := stats.NewLoggingStatser(nil, logrus.StandardLogger())
	d := driver.New(conn, chain, *idleTick, statser)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logrus.WithFields(logrus.Fields{"listen": *listen, "upstream": *upstream}).Info("statsdproxy starting")
	if err := d.Run(ctx); err != nil {
		logrus.Errorf("server error: %v", err)
		return exitCodeFor(err)
	}
	logrus.Info("statsdproxy stopped")
	return 0
}

// exitCodeFor maps an error's Kind (when present) to a process exit code:
// 1 for a problem in how the proxy was configured or invoked, 2 for an
// unrecoverable fault in a socket already running.
func exitCodeFor(err error) int {
	var sErr *statsdproxy.Error
	if e, ok := err.(*statsdproxy.Error); ok {
		sErr = e
	}
	if sErr == nil {
		return 2
	}
	if sErr.Kind == statsdproxy.ErrConfig {
		return 1
	}
	return 2
}

func mustResolve(addr string) *net.UDPAddr {
	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		logrus.Fatalf("invalid upstream address %q: %v", addr, err)
	}
	return resolved
}
