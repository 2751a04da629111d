// Command hydraproxy runs the caching DNS forwarding proxy and its tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hydraproxy",
		Short: "Caching DNS forwarding proxy.",
	}
	root.AddCommand(newStartCmd(), newQueryCmd(), newConfigCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
