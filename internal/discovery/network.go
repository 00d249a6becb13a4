package discovery

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// LocalIPv4 returns the first IPv4 address of an up, non-loopback interface.
func LocalIPv4() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipNet.IP.To4(); ip != nil {
				return ip, nil
			}
		}
	}
	return nil, errors.New("no IPv4 interface found")
}

// PrefixFromIP returns the /24 prefix of ip as "a.b.c", or "" for non-IPv4.
func PrefixFromIP(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", v4[0], v4[1], v4[2])
}

// Hosts enumerates the 254 host addresses of a /24 prefix, .1 through .254.
func Hosts(prefix string) []string {
	prefix = strings.TrimSuffix(prefix, ".")
	hosts := make([]string, 0, 254)
	for i := 1; i <= 254; i++ {
		hosts = append(hosts, fmt.Sprintf("%s.%d", prefix, i))
	}
	return hosts
}
