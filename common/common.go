package common

const PackageName = "github.com/ruteri/wp-provisioner"

// Version is overridden at build time with -ldflags "-X .../common.Version=...".
var Version = "dev"
