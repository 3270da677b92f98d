package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-ntsd/ntsd/directory"
)

// ldapConfig mirrors the subset of connection settings secdesc needs: just
// enough to dial, bind, and touch one attribute on one object.
type ldapConfig struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Security int    `mapstructure:"security"`
	Timeout  int    `mapstructure:"timeout"`
}

const (
	configLDAPServer   = "ldap.server"
	configLDAPPort     = "ldap.port"
	configLDAPUsername = "ldap.username"
	configLDAPPassword = "ldap.password"
	configLDAPSecurity = "ldap.security"
	configLDAPTimeout  = "ldap.timeout"

	defaultLDAPPort    = 389
	defaultLDAPTimeout = 10
)

func bindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("server", "", "Domain controller host/IP")
	cmd.PersistentFlags().Int("port", defaultLDAPPort, "LDAP port")
	cmd.PersistentFlags().String("username", "", "Bind username")
	cmd.PersistentFlags().String("password", "", "Bind password")
	cmd.PersistentFlags().Int("security", int(directory.SecurityInsecure), "Security mode (0=none, 1=TLS, 2=StartTLS)")
	cmd.PersistentFlags().Int("timeout", defaultLDAPTimeout, "Connection timeout in seconds")

	viper.BindPFlag(configLDAPServer, cmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag(configLDAPPort, cmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag(configLDAPUsername, cmd.PersistentFlags().Lookup("username"))
	viper.BindPFlag(configLDAPPassword, cmd.PersistentFlags().Lookup("password"))
	viper.BindPFlag(configLDAPSecurity, cmd.PersistentFlags().Lookup("security"))
	viper.BindPFlag(configLDAPTimeout, cmd.PersistentFlags().Lookup("timeout"))
}

func loadLDAPConfig() (ldapConfig, error) {
	viper.SetConfigName("secdesc")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.secdesc")
	_ = viper.ReadInConfig() // a missing config file just falls back to flags/env

	var settings struct {
		LDAP ldapConfig `mapstructure:"ldap"`
	}
	if err := viper.Unmarshal(&settings); err != nil {
		return ldapConfig{}, fmt.Errorf("parse configuration: %w", err)
	}
	cfg := settings.LDAP
	if cfg.Server == "" {
		return ldapConfig{}, fmt.Errorf("no LDAP server configured (set --server or ldap.server)")
	}
	return cfg, nil
}

func (c ldapConfig) dialConfig() *directory.Config {
	return &directory.Config{
		Server:   c.Server,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Security: directory.SecurityType(c.Security),
		Timeout:  time.Duration(c.Timeout) * time.Second,
	}
}
