// Generates a relay sender key. The output can be sourced as environment
// variables for `bonsai-relay run`:
//
//	PRIVATE_KEY  hex private key without 0x prefix
//	RELAY_SENDER address that must be funded on the target chain
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	prefix := flag.String("prefix", "", "prefix for the printed variable names")
	flag.Parse()

	key, err := crypto.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%sPRIVATE_KEY=%x\n", *prefix, crypto.FromECDSA(key))
	fmt.Printf("%sRELAY_SENDER=%s\n", *prefix, crypto.PubkeyToAddress(key.PublicKey).Hex())
}
