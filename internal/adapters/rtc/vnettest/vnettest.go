// Package vnettest wires in-process pion networks for connectivity tests.
package vnettest

import (
	"fmt"
	"testing"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
)

// Nets starts a router on 10.0.0.0/24 and attaches n networks with
// consecutive static addresses. The router is stopped on test cleanup.
func Nets(t testing.TB, n int) []*vnet.Net {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	nets := make([]*vnet.Net, 0, n)
	for i := 0; i < n; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i+1)
		nw, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ip}})
		if err != nil {
			t.Fatalf("new net %s: %v", ip, err)
		}
		if err := router.AddNet(nw); err != nil {
			t.Fatalf("add net %s: %v", ip, err)
		}
		nets = append(nets, nw)
	}

	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}
	t.Cleanup(func() { _ = router.Stop() })
	return nets
}
