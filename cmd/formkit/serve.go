package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanizio/formkit/internal/controller"
	"github.com/yanizio/formkit/internal/journal"
	"github.com/yanizio/formkit/internal/relay"
	"github.com/yanizio/formkit/internal/server"
	"github.com/yanizio/formkit/internal/submit"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the submission relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}

		var jr controller.Journal
		if dsn := e.cfg.Journal.DSN; dsn != "" {
			db, err := journal.Open(dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			jr = journal.NewStore(db)
			e.log.Infow("journal online")
		}

		h := relay.Handler(relay.Options{
			Registry:   e.reg,
			Client:     submit.New(submit.WithTimeout(e.cfg.Submit.Timeout), submit.WithLogger(e.log)),
			Phone:      e.phoneFactory(),
			Journal:    jr,
			DisplayFor: e.cfg.Controller.DisplayFor,
			ForceHTTPS: e.cfg.HTTP.ForceHTTPS,
			Log:        e.log,
		})

		addr := e.cfg.HTTP.ListenAddr
		if listenAddr != "" {
			addr = listenAddr
		}
		srv := server.New(addr, h, e.cfg.Submit.Timeout)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() {
			e.log.Infow("relay listening", "addr", addr)
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		e.log.Infow("relay shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides http.listen_addr)")
}
