// Package controlsocket implements the local control socket a separate
// CLI binary connects to: a line-oriented request/response protocol over
// a Unix domain socket. Grounded on original_source/pbcoin/netbase.py's
// line-oriented style, applied here per §6.
package controlsocket

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CommandCode enumerates the recognized control commands.
type CommandCode int

const (
	CmdTRX CommandCode = iota + 1
	CmdBalance
	CmdBlock
	CmdMempool
	CmdNeighbors
	CmdMining
)

// Errno is the response error bitset; several bits may be set at once.
type Errno int

const (
	Nothing     Errno = 0
	BadUsage    Errno = 1 << 0
	NotFound    Errno = 1 << 1
	TrxProblem  Errno = 1 << 2
	MiningOn    Errno = 1 << 3
	MiningOff   Errno = 1 << 4
)

// Backend is the composition root's surface consumed by the control
// socket, kept narrow so this package never imports internal/app.
type Backend interface {
	SendCoin(ctx context.Context, recipient string, amount uint64) error
	Balance() uint64
	BlockByHash(hash string) (string, bool)
	LastBlock() (string, bool)
	MempoolSummary() string
	NeighborsSummary() string
	SetMining(on bool)
	MiningOn() bool
}

// Server accepts control-socket connections and dispatches them against
// a Backend.
type Server struct {
	SocketPath string
	Backend    Backend
	Logger     *zap.SugaredLogger

	listener net.Listener
}

// Listen removes any stale socket file at SocketPath, binds, and serves
// until ctx is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	_ = os.Remove(s.SocketPath)
	ln, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("controlsocket: listen %s: %w", s.SocketPath, err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		_ = os.Remove(s.SocketPath)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	payload, errno := s.dispatch(ctx, scanner.Text())
	fmt.Fprintf(conn, "%s\n%d\n", payload, int(errno))
}

func (s *Server) dispatch(ctx context.Context, line string) (string, Errno) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", BadUsage
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return "", BadUsage
	}
	args := fields[1:]

	switch CommandCode(code) {
	case CmdTRX:
		if len(args) != 2 {
			return "", BadUsage
		}
		amount, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return "", BadUsage
		}
		if err := s.Backend.SendCoin(ctx, args[0], amount); err != nil {
			return err.Error(), TrxProblem
		}
		return "ok", Nothing

	case CmdBalance:
		return strconv.FormatUint(s.Backend.Balance(), 10), Nothing

	case CmdBlock:
		if len(args) != 1 {
			return "", BadUsage
		}
		var (
			payload string
			ok      bool
		)
		if args[0] == "--last" {
			payload, ok = s.Backend.LastBlock()
		} else {
			payload, ok = s.Backend.BlockByHash(args[0])
		}
		if !ok {
			return "", NotFound
		}
		return payload, Nothing

	case CmdMempool:
		return s.Backend.MempoolSummary(), Nothing

	case CmdNeighbors:
		return s.Backend.NeighborsSummary(), Nothing

	case CmdMining:
		if len(args) != 1 {
			return "", BadUsage
		}
		switch args[0] {
		case "on":
			s.Backend.SetMining(true)
			return "mining on", Nothing
		case "off":
			s.Backend.SetMining(false)
			return "mining off", Nothing
		case "state":
			if s.Backend.MiningOn() {
				return "on", MiningOn
			}
			return "off", MiningOff
		default:
			return "", BadUsage
		}

	default:
		return "", BadUsage
	}
}
