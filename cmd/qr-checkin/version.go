package main

// Build-time version identity, injected via -ldflags:
//
//	go build -ldflags="-X main.version=v1.2.0 -X main.commitHash=$(git rev-parse --short HEAD) -X main.buildTime=$(date -u +%Y%m%dT%H%M%SZ)"
//
// In development (go run), the defaults are used.
var (
	version    = "dev"
	commitHash = "dev"
	buildTime  = "unknown"
)
