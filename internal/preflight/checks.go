package preflight

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"snapsync/internal/config"
)

// minFreeBytes is the floor below which enqueueing new artifacts is
// considered unsafe. 64 MiB comfortably holds a burst of photos.
const minFreeBytes = 64 << 20

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has headroom for
// new artifact blobs.
func CheckFreeSpace(name, path string) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s (%d MiB free)", path, free>>20)
	if free < minFreeBytes {
		return Result{Name: name, Detail: detail + " below minimum"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckEndpointURL verifies the upload endpoint is a well-formed http(s) URL.
func CheckEndpointURL(name, endpoint string) Result {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{Name: name, Detail: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return Result{Name: name, Detail: "url has no host"}
	}
	return Result{Name: name, Passed: true, Detail: endpoint}
}

// CheckConnectivity probes the configured reachability address once. The
// result is advisory: an unreachable endpoint means items queue locally
// until the network comes back, which is not an error condition.
func CheckConnectivity(ctx context.Context, cfg *config.Config) Result {
	const name = "Connectivity"

	address := strings.TrimSpace(cfg.Connectivity.ProbeAddress)
	if address == "" {
		return Result{Name: name, Advisory: true, Detail: "no probe address configured"}
	}

	timeout := time.Duration(cfg.Connectivity.ProbeTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(probeCtx, "tcp", address)
	if err != nil {
		return Result{Name: name, Advisory: true, Detail: fmt.Sprintf("%s unreachable, queueing until online", address)}
	}
	conn.Close()
	return Result{Name: name, Passed: true, Advisory: true, Detail: fmt.Sprintf("%s reachable", address)}
}
