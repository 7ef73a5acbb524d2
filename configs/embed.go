// Package configs embeds the configuration template written by
// `taxctx config init`.
//
// Precedence when loading (see internal/config Load):
//  1. Defaults
//  2. User config (~/.config/taxctx/config.yaml)
//  3. Project config (.taxctx.yaml)
//  4. Environment variables (TAXCTX_*, also read from .env)
package configs

import _ "embed"

// ConfigTemplate is the commented example configuration.
//
//go:embed config.example.yaml
var ConfigTemplate string
