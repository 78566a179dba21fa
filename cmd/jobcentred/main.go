// Command jobcentred runs the job broker: the protocol listener on its
// compile-time port, plus an optional read-only dashboard.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/brokerhq/jobcentre/pkg/broker"
	"github.com/brokerhq/jobcentre/pkg/dashboard"
	"github.com/brokerhq/jobcentre/pkg/logging"
	"github.com/brokerhq/jobcentre/pkg/server"
)

func main() {
	dashboardAddr := flag.String("dashboard-addr", ":8081", "address for the read-only dashboard; empty disables it")
	logLevel := flag.String("log-level", "info", "log verbosity (debug, info, warn)")
	flag.Parse()

	// rawLog is called directly, outside the level gate, only for a
	// startup config error or a fatal bind failure; ordinary operational
	// logging goes through the leveled logger that writes to it.
	rawLog := log.New(os.Stdout, "", log.LstdFlags)
	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		rawLog.Fatalf("%v", err)
	}
	logger := logging.New(rawLog, level)
	logger.Infof("starting jobcentred (log-level=%s)", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := broker.New(logger)
	go b.Run(ctx)

	if *dashboardAddr != "" {
		go serveDashboard(ctx, *dashboardAddr, b, logger)
	}

	srv := server.New(server.DefaultAddr, b, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		rawLog.Fatalf("protocol listener: %v", err)
	}
	logger.Infof("shut down")
}

// serveDashboard runs the dashboard's HTTP server. Unlike the protocol
// listener, a dashboard bind failure is only logged: the dashboard is
// ambient operator tooling, not the broker's critical path.
func serveDashboard(ctx context.Context, addr string, b *broker.Broker, logger *logging.Logger) {
	httpSrv := &http.Server{Addr: addr, Handler: dashboard.New(b).Router()}

	go func() {
		<-ctx.Done()
		httpSrv.Close()
	}()

	logger.Infof("dashboard listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warnf("dashboard bind failed, continuing without it: %v", err)
	}
}
