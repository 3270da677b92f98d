package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ntsd/ntsd/directory"
	"github.com/go-ntsd/ntsd/pwdpolicy"
)

var pwdPolicyCmd = &cobra.Command{
	Use:   "pwdpolicy",
	Short: "Toggle the \"user cannot change password\" flag on a user account",
}

var pwdPolicyEnableCmd = &cobra.Command{
	Use:   "enable DN",
	Short: "Set \"user cannot change password\"",
	Args:  cobra.ExactArgs(1),
	RunE:  pwdPolicyRunE(true),
}

var pwdPolicyDisableCmd = &cobra.Command{
	Use:   "disable DN",
	Short: "Clear \"user cannot change password\"",
	Args:  cobra.ExactArgs(1),
	RunE:  pwdPolicyRunE(false),
}

func pwdPolicyRunE(enable bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
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

		ctx := context.Background()
		classes := func(ctx context.Context, dn string) ([]string, error) {
			return dir.GetAttribute(ctx, dn, "objectClass")
		}

		changed, err := pwdpolicy.Set(ctx, dir, classes, log, args[0], enable)
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintln(cmd.OutOrStdout(), "updated")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "already in desired state")
		}
		return nil
	}
}

func init() {
	pwdPolicyCmd.AddCommand(pwdPolicyEnableCmd)
	pwdPolicyCmd.AddCommand(pwdPolicyDisableCmd)
}
