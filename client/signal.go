// +build linux darwin freebsd

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
)

func init() {
	go sigHandler()
}

func sigHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	signal.Ignore(syscall.SIGPIPE)

	for range ch {
		if activeSocket == nil {
			continue
		}
		log.Printf("RUDP metrics: %+v", activeSocket.Metrics())
	}
}
