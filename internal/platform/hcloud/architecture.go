package hcloud

import (
	"fmt"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// ArchitectureFor maps an Alpine architecture name to Hetzner's.
func ArchitectureFor(alpineArch string) (hcloud.Architecture, error) {
	switch alpineArch {
	case "x86_64":
		return hcloud.ArchitectureX86, nil
	case "aarch64":
		return hcloud.ArchitectureARM, nil
	default:
		return "", fmt.Errorf("architecture %q is not available on Hetzner Cloud", alpineArch)
	}
}

// DefaultServerType returns the smallest server type for an architecture.
// Snapshots can only be used on servers with at least the build server's
// disk size, so the build server should stay small.
func DefaultServerType(arch hcloud.Architecture) string {
	if arch == hcloud.ArchitectureARM {
		return "cax11"
	}
	return "cx22"
}

// ServerTypeArchitecture guesses the architecture of a server type by name.
// CAX types are ARM, everything else is x86.
func ServerTypeArchitecture(serverType string) hcloud.Architecture {
	if strings.HasPrefix(strings.ToLower(serverType), "cax") {
		return hcloud.ArchitectureARM
	}
	return hcloud.ArchitectureX86
}
