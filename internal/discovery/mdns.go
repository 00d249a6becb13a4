package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

// BrowseMDNS queries the local link for service instances and returns the
// IPv4 base addresses that answered, in arrival order. The query always runs
// for the full timeout; ctx only stops early consumers.
func BrowseMDNS(ctx context.Context, service string, timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	queryErr := make(chan error, 1)

	go func() {
		params := &mdns.QueryParam{
			Service:             service,
			Domain:              "local",
			Timeout:             timeout,
			Entries:             entries,
			DisableIPv6:         true,
			WantUnicastResponse: true,
		}
		queryErr <- mdns.Query(params)
		close(entries)
	}()

	var bases []string
	seen := make(map[string]bool)
	for entry := range entries {
		if ctx.Err() != nil {
			continue // keep draining so the query goroutine can finish
		}
		if entry.AddrV4 == nil {
			continue
		}
		base := fmt.Sprintf("http://%s", entry.AddrV4.String())
		if entry.Port != 0 && entry.Port != 80 {
			base = fmt.Sprintf("http://%s:%d", entry.AddrV4.String(), entry.Port)
		}
		if seen[base] {
			continue
		}
		seen[base] = true
		log.Debug().Str("name", entry.Name).Str("address", base).Msg("mDNS answer")
		bases = append(bases, base)
	}

	if err := <-queryErr; err != nil {
		return bases, err
	}
	return bases, ctx.Err()
}
