package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gookit/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/linechat/internal/server"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := server.LoadConfig()
	if err != nil {
		log.WithError(err).Warn("Configuration problem; falling back to defaults for invalid values")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	realm, err := server.NewRealm(cfg.AdvertisedAddress)
	if err != nil {
		log.WithError(err).Fatal("Could not initialise server")
	}

	srv := server.New(cfg, realm, log)
	ln, err := srv.Listen()
	if err != nil {
		log.WithError(err).WithField("addr", cfg.ListenAddr()).Error("Could not bind listening port")
		os.Exit(1)
	}

	color.Cyan.Println(" The server is running on " + realm.Address + ":" + strconv.Itoa(ln.Addr().(*net.TCPAddr).Port))
	color.Yellow.Println(" The administrator password is " + realm.AdminPasscode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreClosed(srv.Serve(ln)) })

	if cfg.WebSocketAddr != "" {
		wsLn, err := net.Listen("tcp", cfg.WebSocketAddr)
		if err != nil {
			log.WithError(err).WithField("addr", cfg.WebSocketAddr).Error("Could not bind WebSocket port")
			os.Exit(1)
		}
		g.Go(func() error { return ignoreClosed(srv.ServeWebSocket(wsLn)) })
	}

	if cfg.SSHAddr != "" {
		sshLn, err := net.Listen("tcp", cfg.SSHAddr)
		if err != nil {
			log.WithError(err).WithField("addr", cfg.SSHAddr).Error("Could not bind SSH port")
			os.Exit(1)
		}
		g.Go(func() error { return ignoreClosed(srv.ServeSSH(sshLn)) })
	}

	if cfg.PresenceSchedule != "" {
		presence, err := server.NewPresenceReporter(cfg.PresenceSchedule, srv.Registry(), log.WithField("component", "presence"))
		if err != nil {
			log.WithError(err).Warn("Presence reports disabled")
		} else {
			g.Go(func() error {
				presence.Run(gctx)
				return nil
			})
		}
	}

	g.Go(func() error {
		select {
		case <-srv.ShutdownRequested():
			log.Info("Shutdown requested by an administrator")
		case <-gctx.Done():
			log.Info("Received shutdown signal")
		}
		stop()
		if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
			log.WithError(err).Warn("Shutdown did not complete cleanly")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Server stopped with error")
		os.Exit(1)
	}
	log.Info("Server exited")
}

func ignoreClosed(err error) error {
	if errors.Is(err, server.ErrServerClosed) {
		return nil
	}
	return err
}
