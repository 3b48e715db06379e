// Command gridkeygen generates a CURVE keypair for a grid node, the same
// job clusterrpc's crpc-keygen does for that project's client/server
// security managers.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/nawzhin/distgrid/security"
)

func main() {
	var pubfile, privfile string

	flag.StringVar(&pubfile, "pub", "publickey.txt", "file to write the public key to")
	flag.StringVar(&privfile, "priv", "privatekey.txt", "file to write the private key to")
	flag.Parse()

	fmt.Println("generating CURVE keypair...")

	mgr, err := security.NewManager()
	if err != nil {
		log.Fatalf("gridkeygen: could not generate keypair: %v", err)
	}

	if err := mgr.WriteKeys(pubfile, privfile); err != nil {
		log.Fatalf("gridkeygen: could not write keys: %v", err)
	}

	fmt.Printf("public key written to %s, private key written to %s\n", pubfile, privfile)
}
