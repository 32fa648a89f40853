//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/MikeSquared-Agency/caption/internal/reconcile"
)

// pauseResume maps SIGUSR1/SIGUSR2 to inactive/active until ctx ends.
func pauseResume(ctx context.Context, client *reconcile.Client) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			client.SetActive(sig == syscall.SIGUSR2)
		}
	}
}
