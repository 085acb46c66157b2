// Package config defines the node's CLI surface (§6) using
// github.com/spf13/pflag, the GNU-style superset of the stdlib flag
// package the teacher's cli/cli.go used.
package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/pflag"
)

// Config holds the parsed node configuration.
type Config struct {
	Host           string
	Port           int
	Seeds          []string
	FullNode       bool
	CacheKB        int
	SocketPath     string
	Debug          bool
	LoggingFile    string
	NoLogging      bool
	DataDir        string
	Difficulty     *big.Int
	DialTimeoutSec int
	MaxMiningTrx   int
}

// Parse builds a Config from args (typically os.Args[1:]), applying the
// §6 defaults. help requested via -h/--help causes Parse to print usage
// and return (nil, flag.ErrHelp)-equivalent via the returned bool.
func Parse(args []string) (*Config, bool, error) {
	fs := pflag.NewFlagSet("pbcoind", pflag.ContinueOnError)

	host := fs.String("host", "127.0.0.1", "bind IP")
	port := fs.Int("port", 9000, "bind port")
	seeds := fs.StringSlice("seeds", nil, "bootstrap peers, ip:port,...")
	fullNode := fs.Bool("full-node", false, "keep all blocks")
	cacheKB := fs.Int("cache", 1024, "in-memory budget (KB) for non-full nodes")
	socketPath := fs.String("socket-path", "/tmp/pbcoin.sock", "control socket path")
	debug := fs.Bool("debug", false, "verbose logging")
	loggingFile := fs.String("logging-filename", "", "log output file")
	noLogging := fs.Bool("no-logging", false, "disable logging entirely")
	dataDir := fs.String("data-dir", "./data", "on-disk data directory")
	difficultyShift := fs.Int("difficulty-shift", 2, "difficulty = (2^256-1) >> shift")
	dialTimeout := fs.Int("dial-timeout", 5, "outbound dial timeout, seconds")
	maxMining := fs.Int("max-mining-trx", 10, "mempool in_mining capacity")
	help := fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *help {
		fmt.Fprintln(os.Stderr, fs.FlagUsages())
		return nil, true, nil
	}

	maxHash := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	difficulty := new(big.Int).Rsh(maxHash, uint(*difficultyShift))

	return &Config{
		Host:           *host,
		Port:           *port,
		Seeds:          *seeds,
		FullNode:       *fullNode,
		CacheKB:        *cacheKB,
		SocketPath:     *socketPath,
		Debug:          *debug,
		LoggingFile:    *loggingFile,
		NoLogging:      *noLogging,
		DataDir:        *dataDir,
		Difficulty:     difficulty,
		DialTimeoutSec: *dialTimeout,
		MaxMiningTrx:   *maxMining,
	}, false, nil
}
