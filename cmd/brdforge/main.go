// Brdforge classifies project communications into requirement signals and
// synthesizes versioned business requirements documents from them.
//
// Usage:
//
//	# Start the operator API
//	brdforge serve
//
//	# Classify a file of fragments and generate a document in one pass
//	brdforge classify --session s1 --generate fragments.json
//
//	# Configure via environment
//	BRDFORGE_STORE_DRIVER=postgres BRDFORGE_STORE_DSN=postgres://... brdforge serve
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath  string
	storeDriver string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "brdforge",
		Short: "Turn project communications into a business requirements document",
		Long: `brdforge classifies fragments of project communication (mail, chat,
meeting notes) into requirement signals, then synthesizes a versioned,
validated business requirements document from a frozen snapshot of them.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/brdforge/config.yaml)")
	root.PersistentFlags().StringVar(&opts.storeDriver, "store", "", "store driver override (memory or postgres)")

	root.AddCommand(
		newServeCmd(opts),
		newClassifyCmd(opts),
		newGenerateCmd(opts),
		newValidateCmd(opts),
		newRestoreCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "brdforge by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}
