package server

import _ "embed"

// indexHTML is the single-page web UI served at the root path.
//
//go:embed static/index.html
var indexHTML []byte
