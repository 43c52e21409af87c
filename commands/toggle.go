package commands

import (
	"context"

	"github.com/vx-labs/kvrepl/repl"
	"go.uber.org/zap"
)

func (h *Handler) toggleIncrSync(ctx context.Context, c ToggleIncrSync) (Reply, error) {
	repl.L(ctx).Info("toggle incrsync state", zap.Bool("incrsync_enabled", c.Enabled))
	h.repl.TogglePauseState(!c.Enabled)
	return okReply(), nil
}
