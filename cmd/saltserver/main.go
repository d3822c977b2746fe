package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/wp-provisioner/cmd/flags"
	"github.com/ruteri/wp-provisioner/httpserver"
)

var listenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for the salt API",
	EnvVars: []string{"SALTSERVER_LISTEN_ADDR"},
}

func main() {
	appFlags := append([]cli.Flag{listenAddrFlag, flags.LogServiceFlagFn("saltserver")}, flags.LogFlags...)
	appFlags = append(appFlags, flags.ServerFlags...)

	app := &cli.App{
		Name:  "saltserver",
		Usage: "Serve WordPress keys and salts in the format of the WordPress secret-key API",
		Flags: appFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(listenAddrFlag.Name))

			server, err := httpserver.New(cfg, httpserver.NewSaltHandler(nil, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
