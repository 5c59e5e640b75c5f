// Command arcadia is the operator and player CLI of the Arcadia arcade.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(Deps{}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
