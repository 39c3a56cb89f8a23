package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stresscam/internal/classifier"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var device string
	var noAPI bool
	var noExport bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor the camera and track stress until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if device != "" {
				cfg.Capture.Device = device
			}
			if noExport {
				cfg.Session.ExportOnExit = false
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, exportPath, err := runLive(runCtx, cfg, logger, defaultLiveOptions(!noAPI))
			if summary != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderSummary(*summary))
				if exportPath != "" {
					fmt.Fprintf(out, "Session exported to %s\n", exportPath)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Capture device or URL (overrides capture.device)")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "Do not start the HTTP API")
	cmd.Flags().BoolVar(&noExport, "no-export", false, "Do not export the session on exit")
	return cmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the single-shot analysis API without a camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.API.Bind = bind
			}

			client, err := classifier.New(cfg.ClassifierConfig(), logger)
			if err != nil {
				return fmt.Errorf("create classifier: %w", err)
			}
			if closer, ok := client.(io.Closer); ok {
				defer closer.Close()
			}

			server, err := newAPIServer(cfg, logger, client, nil, nil)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(runCtx, cfg.API.Bind)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides api.bind)")
	return cmd
}
