// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

// discoveryService is the mDNS service type hubs announce on the
// local network so clients can find a hub without configuration.
const discoveryService = "_atelier._tcp"

// Announce registers the hub on the local network via mDNS and keeps
// the registration alive until ctx is cancelled. The instance name
// distinguishes multiple hubs on the same LAN.
func Announce(ctx context.Context, instance string, port int, logger *slog.Logger) error {
	server, err := zeroconf.Register(instance, discoveryService, "local.", port, nil, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	logger.Info("announcing hub on local network",
		"instance", instance,
		"service", discoveryService,
		"port", port)
	<-ctx.Done()
	server.Shutdown()
	return nil
}
