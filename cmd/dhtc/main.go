package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ringkv/dhtp/client"
	"github.com/ringkv/dhtp/dht"
	"github.com/ringkv/dhtp/logging"
)

func main() {
	app := &cli.App{
		Name:  "dhtc",
		Usage: "interactive client for the DHT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Usage: "entry node address (ip:port)"},
			&cli.StringFlag{Name: "cfg", Usage: "read the entry node address from its cfg file"},
			&cli.DurationFlag{Name: "timeout", Usage: "per-request timeout", Value: 2 * time.Second},
			&cli.IntFlag{Name: "retries", Usage: "retries per request", Value: 2},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logging.RootLogger.Error().Err(err).Msg("startup failure")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	server := c.String("server")
	if server == "" && c.String("cfg") != "" {
		adr, err := dht.ReadCfgFile(c.String("cfg"))
		if err != nil {
			return err
		}
		server = adr
	}
	if server == "" {
		return cli.Exit("either --server or --cfg is required", 1)
	}
	cl, err := client.New(server, c.Duration("timeout"), c.Int("retries"))
	if err != nil {
		return err
	}
	defer cl.Close()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: get <key> | put <key> <value> | del <key>")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		cmd, err := client.ParseCommand(line)
		if err != nil {
			fmt.Println("bad command:", err)
			continue
		}
		switch {
		case cmd.Get != nil:
			val, found, err := cl.Get(cmd.Get.Key.Value())
			if err != nil {
				fmt.Println("error:", err)
			} else if !found {
				fmt.Println("no match")
			} else {
				fmt.Println(val)
			}
		case cmd.Put != nil:
			if err := cl.Put(cmd.Put.Key.Value(), cmd.Put.Val.Value()); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("ok")
			}
		case cmd.Del != nil:
			if err := cl.Del(cmd.Del.Key.Value()); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("ok")
			}
		}
	}
	return scanner.Err()
}
