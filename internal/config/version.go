package config

// Version is the daemon version, overridden at build time with
// -ldflags "-X github.com/fasttube/fasttube/internal/config.Version=...".
var Version = "dev"
