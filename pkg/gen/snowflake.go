package gen

import (
	"fmt"

	"contaminer/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake", fx.Provide(NewNode))

// NewNode returns the snowflake node used for job ids. NODE_ID must differ
// between processes creating jobs concurrently.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake node: %w", err)
	}
	return node, nil
}
