//go:build !unix

package main

import (
	"context"

	"github.com/MikeSquared-Agency/caption/internal/reconcile"
)

func pauseResume(ctx context.Context, _ *reconcile.Client) {
	<-ctx.Done()
}
