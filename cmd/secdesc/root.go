// Command secdesc inspects and edits Windows security descriptors, either
// fetched live from Active Directory over LDAP or read from a local file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/go-ntsd/ntsd/internal/obslog"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "secdesc",
	Short: "Inspect and edit Windows security descriptors",
	Long:  "secdesc reads and edits self-relative security descriptors from Active Directory objects or local files.",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SuggestionsMinimumDistance: 1,
}

func newLogger() *zap.Logger {
	log, err := obslog.New(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "secdesc: failed to initialize logger: %v\n", err)
		return zap.NewNop()
	}
	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	bindFlags(rootCmd)

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(pwdPolicyCmd)
}
