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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/multiformats/go-multiaddr"
	"github.com/naoina/toml"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/kadvault/go-kadvault/node"
	"github.com/kadvault/go-kadvault/p2p"
)

// gkvaultConfig is the TOML-mappable configuration file surface. Flags given
// on the command line override the file.
type gkvaultConfig struct {
	ListenAddrs  []string
	InitialPeers []string
	Local        bool
	RootDir      string
	MetricsPort  int
	MaxRecords   int
}

// tomlSettings mirrors the decoding discipline used for the config file:
// unknown fields are an error pointing at the offending key rather than a
// silent skip.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

func defaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kadvault"
	}
	return filepath.Join(home, ".kadvault")
}

func loadConfigFile(path string, cfg *gkvaultConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return err
}

// makeConfig merges the config file (if any) under the command line flags.
func makeConfig(ctx *cli.Context) (gkvaultConfig, error) {
	cfg := gkvaultConfig{
		ListenAddrs: []string{"/ip4/0.0.0.0/tcp/0"},
		RootDir:     defaultRootDir(),
	}
	if path := ctx.GlobalString(configFileFlag.Name); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if ctx.GlobalIsSet(listenFlag.Name) {
		cfg.ListenAddrs = ctx.GlobalStringSlice(listenFlag.Name)
	}
	if ctx.GlobalIsSet(peerFlag.Name) {
		cfg.InitialPeers = ctx.GlobalStringSlice(peerFlag.Name)
	}
	if ctx.GlobalIsSet(localFlag.Name) {
		cfg.Local = ctx.GlobalBool(localFlag.Name)
	}
	if ctx.GlobalIsSet(rootDirFlag.Name) {
		cfg.RootDir = ctx.GlobalString(rootDirFlag.Name)
	}
	if ctx.GlobalIsSet(metricsPortFlag.Name) {
		cfg.MetricsPort = ctx.GlobalInt(metricsPortFlag.Name)
	}
	if ctx.GlobalIsSet(maxRecordsFlag.Name) {
		cfg.MaxRecords = ctx.GlobalInt(maxRecordsFlag.Name)
	}
	return cfg, nil
}

// nodeConfig resolves the parsed surface into the builder's config.
func (c *gkvaultConfig) nodeConfig() (node.Config, error) {
	peers := make([]multiaddr.Multiaddr, 0, len(c.InitialPeers))
	for _, s := range c.InitialPeers {
		addr, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			return node.Config{}, fmt.Errorf("invalid peer address %q: %w", s, err)
		}
		peers = append(peers, addr)
	}
	return node.Config{
		InitialPeers: peers,
		Local:        c.Local,
		RootDir:      c.RootDir,
		MetricsPort:  c.MetricsPort,
		MaxRecords:   c.MaxRecords,
	}, nil
}

func (c *gkvaultConfig) driverConfig() p2p.Config {
	return p2p.Config{ListenAddrs: c.ListenAddrs}
}

// setupLogging installs the root log handler with terminal colouring when
// stderr is a terminal.
func setupLogging(ctx *cli.Context) {
	usecolor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	output := io.Writer(os.Stderr)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	glogger := log.NewGlogHandler(log.NewTerminalHandler(output, usecolor))
	glogger.Verbosity(log.FromLegacyLevel(ctx.GlobalInt(verbosityFlag.Name)))
	log.SetDefault(log.NewLogger(glogger))
}
