package middleware

import (
	"context"
	"fmt"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/outbox"
)

// OutboxFlush pushes events staged during the command into the durable
// outbox once the handler returns cleanly. Ordered after Transaction in the
// chain, so for the Mongo flavor the flush is a no-op and the records ride
// the command's own transaction.
func OutboxFlush(box outbox.Outbox) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := nextFn(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if err := box.Flush(ctx); err != nil {
				return nil, fmt.Errorf("flush outbox after %s: %w", cmd.Key(), err)
			}
			return res, nil
		})
	}
}
