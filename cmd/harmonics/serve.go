package main

import (
	"time"

	"github.com/cwbudde/algo-harmonics/server"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	addr        string
	smooth      bool
	reloadDelay time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve archived notes over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", ":8080", "Listen address")
	f.BoolVar(&serveFlags.smooth, "smooth", false, "Cubic envelope interpolation")
	f.DurationVar(&serveFlags.reloadDelay, "reload-delay", server.DefaultReloadDelay, "Quiet period before a requested reload runs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := server.New(cfg.ArchivePath, server.Options{
		SampleRate:  cfg.SampleRate,
		Render:      cfg.RenderOptions(),
		Smooth:      serveFlags.smooth,
		ReloadDelay: serveFlags.reloadDelay,
	})
	if err != nil {
		return err
	}
	return s.ListenAndServe(serveFlags.addr)
}
