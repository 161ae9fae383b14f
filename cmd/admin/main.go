// Command admin inspects a gridbank ledger and journal offline, and
// drives the loopback admin endpoints of a running server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type command func(args []string, out io.Writer) error

var commands = map[string]command{
	"accounts": accountsCmd,
	"balance":  balanceCmd,
	"history":  historyCmd,
	"escrow":   escrowCmd,
	"journal":  journalCmd,
	"fees":     feesCmd,
	"stipends": stipendsCmd,
	"detach":   regionCmd("detach"),
	"attach":   regionCmd("attach"),
}

func main() {
	name, args := "accounts", os.Args[1:]
	if len(args) > 0 {
		if _, ok := commands[args[0]]; ok {
			name, args = args[0], args[1:]
		}
	}
	if err := commands[name](args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
