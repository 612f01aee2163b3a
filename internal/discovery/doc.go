// Package discovery advertises and finds volt servers with mDNS.
//
// A running server registers itself as a "_volt._tcp" service. The TXT
// record carries the ports of both front-ends and the server version:
//
//	http_port=8080
//	ws_port=8081
//	version=1.0.0
//
// # Usage Example
//
//	ad, err := discovery.Advertise("", 8080, 8081, version.Version)
//	if err != nil {
//	    return err
//	}
//	defer ad.Shutdown()
//
//	instances, err := discovery.NewScanner().Scan(ctx)
//	for _, inst := range instances {
//	    fmt.Println(inst.Name, inst.WebSocketURL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Firewall must allow mDNS (UDP port 5353)
package discovery
