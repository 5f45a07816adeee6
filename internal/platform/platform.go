// Package platform detects the host environment. Arcade behavior is the
// same everywhere; detection exists for the few places where WSL or an
// unusual filesystem needs a different tool or a warning.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform is the detected host environment.
type Platform string

const (
	MacOS   Platform = "macos"
	Linux   Platform = "linux"
	WSL1    Platform = "wsl1"
	WSL2    Platform = "wsl2"
	Windows Platform = "windows"
	Unknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the host platform. The result is computed once per
// process.
func Detect() Platform {
	detectOnce.Do(func() { detected = detect() })
	return detected
}

func detect() Platform {
	switch runtime.GOOS {
	case "darwin":
		return MacOS
	case "windows":
		return Windows
	case "linux":
		return detectLinux()
	default:
		return Unknown
	}
}

// detectLinux tells native Linux apart from WSL 1 and 2.
func detectLinux() Platform {
	inWSL := os.Getenv("WSL_DISTRO_NAME") != ""

	if version, err := os.ReadFile("/proc/version"); err == nil {
		v := string(version)
		// WSL2 kernels report "microsoft-standard"; WSL1 reports
		// "Microsoft" without it.
		if strings.Contains(v, "microsoft-standard") {
			return WSL2
		}
		if strings.Contains(strings.ToLower(v), "microsoft") {
			inWSL = true
		}
	}
	if !inWSL {
		return Linux
	}

	// /run/WSL and /dev/vsock exist only under the WSL2 VM.
	if _, err := os.Stat("/run/WSL"); err == nil {
		return WSL2
	}
	if _, err := os.Stat("/dev/vsock"); err == nil {
		return WSL2
	}
	return WSL1
}

// String returns a human-readable platform name.
func (p Platform) String() string {
	switch p {
	case MacOS:
		return "macOS"
	case Linux:
		return "Linux"
	case WSL1:
		return "WSL1"
	case WSL2:
		return "WSL2"
	case Windows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// CheckFsnotifySupport reports whether the filesystem under path is known
// to drop or delay inotify events. Returns a short diagnosis for
// problematic mounts (9p, NFS, CIFS, SSHFS) and "" when file events
// should work. Callers decide what the fallback is; this only names the
// problem.
func CheckFsnotifySupport(path string) string {
	// Only Linux mounts network and passthrough filesystems this way;
	// WSL2 in particular exposes the Windows drive over 9p.
	if runtime.GOOS != "linux" {
		return ""
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}

	return diagnoseMount(absPath, string(mounts))
}

// diagnoseMount finds the longest mount point containing absPath in the
// given /proc/mounts content and names the mount when its filesystem
// type is one that breaks inotify.
func diagnoseMount(absPath, mounts string) string {
	var mountPoint, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		// Format: device mountpoint fstype options ...
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if strings.HasPrefix(absPath, fields[1]) && len(fields[1]) > len(mountPoint) {
			mountPoint, fsType = fields[1], fields[2]
		}
	}

	switch {
	case fsType == "9p":
		return "9p mount (WSL2 Windows filesystem): file events are not delivered"
	case fsType == "nfs", fsType == "nfs4":
		return "NFS mount: file events may be dropped"
	case fsType == "cifs", fsType == "smbfs":
		return "CIFS/SMB mount: file events may be dropped"
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "SSHFS mount: file events are not delivered"
	}
	return ""
}
