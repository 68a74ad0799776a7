package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rushteam/leadscore/server"
	"github.com/rushteam/leadscore/session"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web front-end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, err := a.engine(ctx)
			if err != nil {
				return err
			}

			st, err := openStore(ctx, a.cfg.Session)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			log.WithField("backend", st.Name()).Info("session store ready")

			hist, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			if hist != nil {
				defer func() { _ = hist.Close() }()
			}

			srv, err := server.New(a.cfg.Server, engine, session.NewManager(st, a.cfg.Session.TTL), hist)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("addr", "", "address to listen on (default 127.0.0.1:8501)")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
