// Package idgen produces unique numeric identifiers for shares.
package idgen

import "github.com/bwmarrin/snowflake"

// Generator hands out time-ordered 63-bit ids. Safe for concurrent use.
type Generator struct {
	node *snowflake.Node
}

// New creates a generator for the given node id. A single-process
// deployment can always pass 1.
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &Generator{node: node}, nil
}

func (g *Generator) Next() int64 {
	return g.node.Generate().Int64()
}
