// Command solforge compiles declarative Solana program descriptions into
// an on-chain program crate, Go client bindings and an IDL.
package main

import (
	"os"

	"github.com/roach88/solforge/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
