// Command verify recomputes a terminated round's outcome from the revealed
// server seed and checks it against the published commitment. Anyone can run
// it offline against the values from GET /round/{n}/results.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spinhall/roulette/internal/domain"
	"github.com/spinhall/roulette/internal/rng"
)

func main() {
	var (
		commitment = flag.String("commitment", "", "commitment published at round start (64 hex chars)")
		seed       = flag.String("seed", "", "server seed revealed at round end (64 hex chars)")
		clientSeed = flag.String("client-seed", rng.DefaultClientSeed, "client seed in effect for the round")
		nonce      = flag.Uint64("nonce", 0, "round number")
		outcome    = flag.Int("outcome", -1, "announced wheel index (0-36)")
	)
	flag.Parse()

	if *commitment == "" || *seed == "" || *outcome < 0 {
		fmt.Fprintln(os.Stderr, "usage: verify -commitment <hex> -seed <hex> -nonce <round> -outcome <index> [-client-seed <seed>]")
		os.Exit(2)
	}

	if err := rng.Verify(*commitment, *seed, *clientSeed, *nonce, *outcome); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK: round %d outcome %d (%s) verifies against commitment %s\n",
		*nonce, *outcome, domain.ColorOf(*outcome), *commitment)
}
