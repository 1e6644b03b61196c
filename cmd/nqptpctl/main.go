// nqptpctl inspects the PTP network bootstrap: clock identity derivation,
// frame hex dumps and live frame capture.
package main

import "github.com/klemensn/nqptp/cmd/nqptpctl/commands"

func main() {
	commands.Execute()
}
