// Package embedded carries the assets ergo seeds on first run: the default
// behavioral anchor and the Claude Code hooks configuration. Embedding them
// keeps `ergo init` self-contained when the binary is installed without a
// repo checkout.
package embedded

import _ "embed"

// DefaultAnchor is the behavioral anchor seeded to the data directory when no
// anchor exists.
//
//go:embed anchor.txt
var DefaultAnchor []byte

// HooksJSON is the hook configuration snippet for Claude Code settings.
//
//go:embed hooks.json
var HooksJSON []byte
