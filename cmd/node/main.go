package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"chordring/internal/bootstrap"
	"chordring/internal/config"
	"chordring/internal/discovery"
	"chordring/internal/logger"
	zapfactory "chordring/internal/logger/zap"
	"chordring/internal/maintenance"
	"chordring/internal/ringid"
	"chordring/internal/ringstate"
	"chordring/internal/rpcclient"
	"chordring/internal/server"
	"chordring/internal/telemetry"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zapLog, err := zapfactory.New(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLog.Sync() }()
	var lgr logger.Logger = zapfactory.NewAdapter(zapLog)
	cfg.LogConfig(lgr)

	lis, advertised, err := server.Listen(cfg.Node.Mode, cfg.Node.Bind, cfg.Node.Host, cfg.Node.Port)
	if err != nil {
		lgr.Error("fatal: failed to initialize listener", logger.F("err", err))
		os.Exit(1)
	}
	defer func() { _ = lis.Close() }()
	lgr.Debug("created listener", logger.F("advertised", advertised))

	sp, err := ringid.NewSpace(cfg.Ring.IDBits)
	if err != nil {
		lgr.Error("failed to initialize identifier space", logger.F("err", err))
		os.Exit(1)
	}

	var id ringid.ID
	if cfg.Node.ID == "" {
		id = sp.FromAddress(advertised)
	} else {
		id, err = sp.FromHex(cfg.Node.ID)
		if err != nil {
			lgr.Error("invalid node.id in configuration", logger.F("err", err))
			os.Exit(1)
		}
	}

	host, portStr, err := net.SplitHostPort(advertised)
	if err != nil {
		lgr.Error("advertised address is not host:port", logger.F("addr", advertised), logger.F("err", err))
		os.Exit(1)
	}
	ip, err := ringid.IPFromString(host)
	if err != nil {
		lgr.Error("advertised host is not a dotted-quad IPv4 address", logger.F("host", host), logger.F("err", err))
		os.Exit(1)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		lgr.Error("advertised port is invalid", logger.F("port", portStr), logger.F("err", err))
		os.Exit(1)
	}

	self := ringid.NodeDescriptor{ID: id, IP: ip, Port: uint16(port)}
	lgr = lgr.Named("node").With(logger.FDescriptor("self", self))
	lgr.Info("node initializing")

	shutdownTracing := telemetry.Init(cfg.Telemetry, "chordring-node", id, lgr.Named("telemetry"))
	defer shutdownTracing(context.Background())

	ctx, cancel := context.WithCancel(context.Background())

	boot, err := bootstrap.New(ctx, cfg.Bootstrap, self, int(self.Port), lgr.Named("bootstrap"))
	if err != nil {
		lgr.Error("fatal: failed to initialize bootstrap strategy", logger.F("err", err))
		cancel()
		os.Exit(1)
	}

	if cfg.Bootstrap.Mode == "discovery" {
		responder, err := discovery.NewResponder(cfg.Bootstrap.Discovery.Port, discovery.IDSeed(id), lgr.Named("discovery"))
		if err != nil {
			lgr.Warn("discovery responder unavailable, peers cannot find this node via broadcast", logger.F("err", err))
		} else {
			go responder.Run(ctx)
		}
	}

	// A positional bootstrap_ip argument always wins over the configured
	// bootstrap strategy, skipping discovery entirely.
	var bootstrapAddr string
	if explicit := flag.Arg(0); explicit != "" {
		bootstrapAddr = net.JoinHostPort(explicit, strconv.Itoa(cfg.Ring.ListenPort))
		lgr.Info("bootstrap peer given on command line", logger.F("addr", bootstrapAddr))
	} else {
		peers, err := boot.Discover(ctx)
		if err != nil {
			lgr.Warn("bootstrap discovery failed, starting alone", logger.F("err", err))
		}
		if len(peers) > 0 {
			bootstrapAddr = peers[0]
			lgr.Info("bootstrap peer found", logger.F("addr", bootstrapAddr))
		} else {
			lgr.Info("no bootstrap peer found, starting a new ring")
		}
	}
	if err := boot.Register(ctx, self); err != nil {
		lgr.Warn("bootstrap registration failed", logger.F("err", err))
	}

	state := ringstate.New(self, cfg.Ring.SuccessorListSize, lgr.Named("ringstate"))
	rpc := rpcclient.New(sp)
	maint := maintenance.New(state, rpc, lgr.Named("maintenance"), maintenance.Config{
		StabilizeInterval:     cfg.Ring.StabilizeInterval,
		JoinRetryInterval:     cfg.Ring.JoinRetryInterval,
		RPCTimeoutMaintenance: cfg.Ring.RPCTimeoutMaintenance,
		RPCTimeoutJoin:        cfg.Ring.RPCTimeoutJoin,
		RPCTimeoutCert:        cfg.Ring.RPCTimeoutCert,
		BootstrapAddr:         bootstrapAddr,
	})
	maint.Start(ctx)

	srv := server.New(lis, state, sp, server.WithLogger(lgr.Named("server")))
	go func() {
		if err := srv.Start(); err != nil {
			lgr.Error("server stopped with error", logger.F("err", err))
		}
	}()
	lgr.Info("node is up")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	lgr.Info("shutdown signal received, leaving ring gracefully")

	cancel()
	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), cfg.Ring.RPCTimeoutMaintenance*4)
	maint.GracefulLeave(leaveCtx)
	leaveCancel()

	if err := boot.Deregister(context.Background(), self); err != nil {
		lgr.Warn("bootstrap deregistration failed", logger.F("err", err))
	}

	srv.GracefulStop()
	lgr.Info("node shut down")
}
