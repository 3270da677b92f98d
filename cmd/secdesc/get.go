package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ntsd/ntsd/directory"
	"github.com/go-ntsd/ntsd/ntsd"
)

var getCmd = &cobra.Command{
	Use:   "get DN",
	Short: "Fetch and print an object's security descriptor over LDAP",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadLDAPConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	dir, err := directory.Dial(cfg.dialConfig(), log)
	if err != nil {
		return err
	}
	defer dir.Close()

	sdBytes, err := dir.GetSecurityDescriptor(context.Background(), args[0])
	if err != nil {
		return err
	}

	sd := ntsd.SD(sdBytes)
	if sd.ControlFlags()&ntsd.ControlSelfRelative == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "warning: descriptor is not self-relative")
	}
	printSD(cmd.OutOrStdout(), sd)
	return nil
}
