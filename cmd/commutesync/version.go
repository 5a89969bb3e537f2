package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/uprent-dev/commutesync/pkg/commute"
	"github.com/uprent-dev/commutesync/pkg/syncstore"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the build of this binary together with the wire settings a
page must agree on to talk to an extension host built from it: the
topic namespace and the default reconciliation deadline.`,
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}

			printBanner()
			fmt.Println()
			fmt.Printf("  Version:    %s (%s, built %s)\n", version, commit, date)
			fmt.Printf("  Namespace:  %s\n", commute.Namespace)
			fmt.Printf("  Reconcile:  %s\n", syncstore.DefaultReconcileTimeout)
			fmt.Printf("  Runtime:    %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Println()
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
