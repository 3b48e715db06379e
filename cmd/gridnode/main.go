// Command gridnode bootstraps a single member of a distgrid cluster: binds
// the transport listener, wires up the default OperationService, and
// waits for shutdown, mirroring how clusterrpc's echo_example wires a
// Server up from flags before calling Start.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/nawzhin/distgrid/config"
	"github.com/nawzhin/distgrid/grid"
	"github.com/nawzhin/distgrid/rlog"
	"github.com/nawzhin/distgrid/security"
	"github.com/nawzhin/distgrid/transport"
)

func main() {
	var listenAddr string
	var listenPort uint
	var pubkeyFile, privkeyFile, peerKeyFile string
	var peers stringList
	var loglevel int
	var workers int

	flag.StringVar(&listenAddr, "addr", "*", "address to bind the transport listener on")
	flag.UintVar(&listenPort, "port", 5710, "port to bind the transport listener on")
	flag.StringVar(&pubkeyFile, "pubkey", "", "this node's CURVE public key file (enables security if set with -privkey)")
	flag.StringVar(&privkeyFile, "privkey", "", "this node's CURVE private key file")
	flag.StringVar(&peerKeyFile, "peerkey", "", "a peer's CURVE public key file to whitelist")
	flag.Var(&peers, "peer", "host:port of a peer to register as a cluster member (repeatable)")
	flag.IntVar(&loglevel, "loglevel", int(rlog.LOGLEVEL_WARNINGS), "0=none 1=errors 2=warnings 3=info 4=debug")
	flag.IntVar(&workers, "workers", 4, "local operation dispatch worker count")
	flag.Parse()

	rlog.SetLevel(rlog.Level(loglevel))

	cfg := config.DefaultConfig(listenAddr, uint16(listenPort))
	cfg.SetLocalDispatch(workers, 64)

	var sec *security.Manager
	if pubkeyFile != "" && privkeyFile != "" {
		var err error
		sec, err = loadOrGenerateKeys(pubkeyFile, privkeyFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "gridnode: security setup failed:", err)
			os.Exit(1)
		}
		if peerKeyFile != "" {
			if err := sec.LoadPeerPublicKey(peerKeyFile); err != nil {
				fmt.Fprintln(os.Stderr, "gridnode: could not load peer key:", err)
				os.Exit(1)
			}
		}
		defer security.StopAuth()
	}

	self := grid.Address{Host: resolveBindHost(listenAddr), Port: uint16(listenPort)}

	svc := transport.NewService(self, cfg.DefaultCallTimeoutMillis, sec, cfg.LocalWorkers, cfg.LocalBacklog)
	srv := transport.NewServer(cfg.ListenAddr, cfg.ListenPort, cfg.LocalWorkers, cfg.LocalBacklog, sec)
	svc.AttachServer(srv)

	for _, p := range peers {
		addr, err := parsePeerAddr(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "gridnode: bad -peer value:", p, err)
			os.Exit(1)
		}
		svc.AddMember(grid.Member{Address: addr})
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "gridnode: could not start transport:", err)
		os.Exit(1)
	}
	rlog.Infof("gridnode: listening on %s:%d", cfg.ListenAddr, cfg.ListenPort)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	rlog.Infof("gridnode: shutting down")
	svc.SetActive(false)
	srv.Stop()
	srv.Close()
	svc.Stop()
}

func loadOrGenerateKeys(pubfile, privfile string) (*security.Manager, error) {
	if _, err := os.Stat(privfile); err == nil {
		pub, err := os.ReadFile(pubfile)
		if err != nil {
			return nil, err
		}
		priv, err := os.ReadFile(privfile)
		if err != nil {
			return nil, err
		}
		mgr := &security.Manager{}
		mgr.SetKeys(string(pub), string(priv))
		return mgr, nil
	}
	mgr, err := security.NewManager()
	if err != nil {
		return nil, err
	}
	if err := mgr.WriteKeys(pubfile, privfile); err != nil {
		return nil, err
	}
	return mgr, nil
}

func resolveBindHost(listenAddr string) string {
	if listenAddr == "*" || listenAddr == "" {
		return "127.0.0.1"
	}
	return listenAddr
}

func parsePeerAddr(s string) (grid.Address, error) {
	host, portStr, err := splitHostPort(s)
	if err != nil {
		return grid.Address{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return grid.Address{}, err
	}
	return grid.Address{Host: host, Port: uint16(port)}, nil
}

func splitHostPort(s string) (string, string, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("missing ':port' in %q", s)
}

// stringList collects repeated -peer flags.
type stringList []string

func (l *stringList) String() string { return fmt.Sprint([]string(*l)) }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}
