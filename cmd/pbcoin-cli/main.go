// Command pbcoin-cli is the control socket client named in §6: it
// connects to a running node's Unix domain socket, sends one command
// line, and prints the two-line response (payload, error bitset).
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

var commandCodes = map[string]int{
	"trx":       1,
	"balance":   2,
	"block":     3,
	"mempool":   4,
	"neighbors": 5,
	"mining":    6,
}

func main() {
	os.Exit(run())
}

func run() int {
	socketPath := pflag.String("socket-path", "/tmp/pbcoin.sock", "control socket path")
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: pbcoin-cli [--socket-path PATH] <trx|balance|block|mempool|neighbors|mining> [args...]")
		return 2
	}

	code, ok := commandCodes[strings.ToLower(args[0])]
	if !ok {
		fmt.Fprintf(os.Stderr, "pbcoin-cli: unknown command %q\n", args[0])
		return 2
	}

	conn, err := net.Dial("unix", *socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pbcoin-cli: connect:", err)
		return 1
	}
	defer conn.Close()

	line := strconv.Itoa(code)
	for _, a := range args[1:] {
		line += " " + a
	}
	if _, err := fmt.Fprintln(conn, line); err != nil {
		fmt.Fprintln(os.Stderr, "pbcoin-cli: write:", err)
		return 1
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "pbcoin-cli: no response")
		return 1
	}
	payload := scanner.Text()
	errno := 0
	if scanner.Scan() {
		errno, _ = strconv.Atoi(scanner.Text())
	}

	fmt.Println(payload)
	if errno != 0 {
		fmt.Fprintf(os.Stderr, "pbcoin-cli: error bitset %d\n", errno)
		return 1
	}
	return 0
}
