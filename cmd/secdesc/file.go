package main

import (
	"github.com/spf13/cobra"

	"github.com/go-ntsd/ntsd/filesd"
	"github.com/go-ntsd/ntsd/ntsd"
)

var fileCmd = &cobra.Command{
	Use:   "file PATH",
	Short: "Print the security descriptor attached to a local file or directory (Windows only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runFile,
}

func runFile(cmd *cobra.Command, args []string) error {
	raw, err := filesd.GetBytes(args[0])
	if err != nil {
		return err
	}
	printSD(cmd.OutOrStdout(), ntsd.SD(raw))
	return nil
}
