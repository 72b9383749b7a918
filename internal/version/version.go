package version

// Version is overridden at build time with -ldflags "-X github.com/alvmarrod/link-weaver/internal/version.Version=..."
var Version = "0.3.0-dev"
