// Copyright 2024 The go-kadvault Authors
// This file is part of the go-kadvault library.
//
// The go-kadvault library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-kadvault library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-kadvault library. If not, see <http://www.gnu.org/licenses/>.

// gkvault is the command line interface of the kadvault storage node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/kadvault/go-kadvault/node"
	"github.com/kadvault/go-kadvault/p2p"
	"github.com/kadvault/go-kadvault/params"
	"github.com/kadvault/go-kadvault/rewards"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	listenFlag = cli.StringSliceFlag{
		Name:  "listen",
		Usage: "Multiaddresses to listen on (can be given multiple times)",
	}
	peerFlag = cli.StringSliceFlag{
		Name:  "peer",
		Usage: "Initial peer multiaddresses to dial at startup",
	}
	localFlag = cli.BoolFlag{
		Name:  "local",
		Usage: "Run for a local network only; initial peers are not dialed",
	}
	rootDirFlag = cli.StringFlag{
		Name:  "rootdir",
		Usage: "Root directory for the wallet and the record store",
	}
	metricsPortFlag = cli.IntFlag{
		Name:  "metrics.port",
		Usage: "Port of the local metrics endpoint (0 = disabled)",
	}
	maxRecordsFlag = cli.IntFlag{
		Name:  "maxrecords",
		Usage: "Record store capacity (0 = default)",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "gkvault"
	app.Usage = "the kadvault storage network node"
	app.Version = params.VersionWithMeta
	app.Flags = []cli.Flag{
		configFileFlag,
		listenFlag,
		peerFlag,
		localFlag,
		rootDirFlag,
		metricsPortFlag,
		maxRecordsFlag,
		verbosityFlag,
	}
	app.Action = runNode
	app.Commands = []cli.Command{
		{
			Name:   "version",
			Usage:  "Print version numbers",
			Action: printVersion,
		},
		{
			Name:   "address",
			Usage:  "Print the node's reward payment address",
			Flags:  []cli.Flag{rootDirFlag},
			Action: printRewardAddress,
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printVersion(*cli.Context) error {
	fmt.Println("gkvault version", params.VersionWithMeta)
	return nil
}

func printRewardAddress(ctx *cli.Context) error {
	rootDir := ctx.String(rootDirFlag.Name)
	if rootDir == "" {
		rootDir = defaultRootDir()
	}
	wallet, err := rewards.LoadWallet(rootDir)
	if err != nil {
		return err
	}
	defer wallet.Close()
	fmt.Println(wallet.MainPubkey().Hex())
	return nil
}

func runNode(cliCtx *cli.Context) error {
	setupLogging(cliCtx)

	cfg, err := makeConfig(cliCtx)
	if err != nil {
		return err
	}
	nodeCfg, err := cfg.nodeConfig()
	if err != nil {
		return err
	}

	drv, err := p2p.New(cfg.driverConfig())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	running, err := node.NewBuilder(nodeCfg, drv).BuildAndRun(ctx, drv.Events())
	if err != nil {
		drv.Close()
		return err
	}
	drv.OnQueryResult = running.Network().QueryCompleted

	sub := running.Events().Subscribe()
	defer sub.Unsubscribe()

	log.Info("Node is up", "peer", drv.SelfID(), "version", params.VersionWithMeta)
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down")
			err := running.Close()
			if derr := drv.Close(); err == nil {
				err = derr
			}
			return err

		case ev := <-sub.Chan():
			switch ev := ev.(type) {
			case node.ConnectedToNetworkEvent:
				log.Info("Connected to the network")
			case node.BehindNatEvent:
				log.Warn("Node appears to be behind a NAT; it may be unreachable")
			case node.ChannelClosedEvent:
				log.Error("Overlay event channel closed, exiting")
				err := running.Close()
				if derr := drv.Close(); err == nil {
					err = derr
				}
				return err
			case node.TransferNotifEvent:
				log.Info("Royalty transfer notification", "key", ev.Key, "transfers", len(ev.Transfers))
			case node.GossipsubMsgEvent:
				log.Debug("Gossip message", "topic", ev.Topic, "size", len(ev.Msg))
			}
		}
	}
}
