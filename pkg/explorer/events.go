package explorer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/pkg/namespace"
	"github.com/fruitsalade/explorer/pkg/pathkey"
	"github.com/fruitsalade/explorer/pkg/protocol"
)

// HandleEvent applies a change notification from the server. Deleted
// folders are dropped from the store at once (closing sessions below
// them); otherwise the parent entry is reloaded if it was loaded. Open
// sessions keep their local content.
func (c *Controller) HandleEvent(ctx context.Context, ev protocol.SSEEvent) error {
	isFolder := ev.IsFolder || strings.HasSuffix(ev.Path, "/")
	var dir, name string
	if isFolder {
		dir, name = pathkey.Parent(ev.Path), pathkey.Base(ev.Path)
	} else {
		dir, name = pathkey.Split(ev.Path)
	}
	if name == "" {
		return nil
	}

	c.logger.Debug("Change event",
		zap.String("type", ev.Type),
		zap.String("path", ev.Path))

	if ev.Type == protocol.EventDelete {
		if isFolder {
			folder := pathkey.Join(dir, name)
			c.store.RemoveFolder(dir, name)
			c.windows.CloseUnder(folder)
			if pathkey.IsUnder(c.Path(), folder) {
				c.setPath(dir)
			}
		} else {
			c.store.RemoveFile(dir, name)
			c.windows.CloseFile(dir, name)
		}
	}

	if c.store.State(dir) != namespace.Loaded {
		return nil
	}
	return c.load(ctx, dir)
}
