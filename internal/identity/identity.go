// Package identity derives the stable client identifier and User-Agent
// string sent with every download request.
package identity

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
)

const app = "hanzo"

// UserAgent returns the product identifier sent on every request, in the
// form hanzo(<os>)/<version>/<client-id>.
func UserAgent(version string) string {
	return fmt.Sprintf("%s(%s)/%s/%s", app, runtime.GOOS, version, ClientID())
}

// ClientID returns a stable per-machine identifier. It prefers the first
// hardware address of a non-loopback interface, falls back to the
// modification time of the filesystem root, and finally to a fixed
// placeholder when neither is available.
func ClientID() string {
	if id := macDecimal(); id != "" {
		return id
	}
	if info, err := os.Stat(string(os.PathSeparator)); err == nil {
		return strconv.FormatInt(info.ModTime().Unix(), 10)
	}
	return strings.Repeat("-", 12)
}

func macDecimal() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		var v uint64
		for _, b := range iface.HardwareAddr {
			v = v<<8 | uint64(b)
		}
		if v != 0 {
			return strconv.FormatUint(v, 10)
		}
	}
	return ""
}
