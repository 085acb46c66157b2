package main

import (
	"os"
	"syscall"
)

func syscallSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}
