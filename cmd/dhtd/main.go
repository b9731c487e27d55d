package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ringkv/dhtp/dht"
	"github.com/ringkv/dhtp/logging"
)

func main() {
	app := &cli.App{
		Name:  "dhtd",
		Usage: "node of a chord-style distributed hash table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ip", Usage: "IP address to bind the UDP socket on", Required: true},
			&cli.IntFlag{Name: "routes", Usage: "max number of routing table entries, typically lg(numNodes)", Value: 5},
			&cli.StringFlag{Name: "cfg", Usage: "file to write this node's ip and port to", Required: true},
			&cli.BoolFlag{Name: "cache", Usage: "enable the read-through reply cache"},
			&cli.BoolFlag{Name: "debug", Usage: "echo every received and sent packet"},
			&cli.StringFlag{Name: "pred", Usage: "cfg file of the predecessor to join through"},
			&cli.StringFlag{Name: "log-file", Usage: "also write logs to this rotating file"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logging.RootLogger.Error().Err(err).Msg("startup failure")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	node, err := dht.New(dht.Config{
		IP:        c.String("ip"),
		NumRoutes: c.Int("routes"),
		CfgFile:   c.String("cfg"),
		Cache:     c.Bool("cache"),
		Debug:     c.Bool("debug"),
		PredFile:  c.String("pred"),
		LogFile:   c.String("log-file"),
	})
	if err != nil {
		return err
	}
	if err := node.Start(); err != nil {
		return err
	}

	// a TERM or INT triggers the graceful leave on the dispatcher task
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	node.Leave()
	return nil
}
