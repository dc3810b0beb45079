package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "hanasnap",
	Short: "SAP HANA storage snapshot coordination for FlashArray",
	Long:  `Coordinates application-consistent and crash-consistent storage snapshots of SAP HANA persistence volumes across the database, the host OS, and a Pure Storage FlashArray.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("host", "", "Host address of the SAP HANA worker")
	rootCmd.PersistentFlags().String("domain-name", "", "DNS domain of the SAP HANA hosts")
	rootCmd.PersistentFlags().String("instance-number", "00", "SAP HANA instance number")
	rootCmd.PersistentFlags().String("port-suffix", "15", "Final two digits of the SQL port")
	rootCmd.PersistentFlags().String("database", "", "SAP HANA database or tenant name")
	rootCmd.PersistentFlags().String("database-user", "", "Database user with snapshot permissions")
	rootCmd.PersistentFlags().String("database-password", "", "Database password (prompted if omitted)")
	rootCmd.PersistentFlags().String("os-user", "", "OS user with permissions to freeze the persistence volumes")
	rootCmd.PersistentFlags().String("os-password", "", "OS password (prompted if omitted)")
	rootCmd.PersistentFlags().String("array-endpoint", "", "FlashArray hostname or IP")
	rootCmd.PersistentFlags().String("array-user", "", "FlashArray user with snapshot permissions")
	rootCmd.PersistentFlags().String("array-password", "", "FlashArray password (prompted if omitted)")
	rootCmd.PersistentFlags().Bool("array-insecure", false, "Skip FlashArray TLS certificate verification")
	rootCmd.PersistentFlags().String("group-prefix", "SAPHANA", "Protection group name prefix")
	rootCmd.PersistentFlags().String("suffix-prefix", "SAPHANA", "Snapshot suffix prefix")
	rootCmd.PersistentFlags().String("catalog-path", ".artifacts/runs.db", "Run catalog SQLite path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().Int("ssh-timeout", 120, "SSH connection timeout in seconds")

	viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("domain-name", rootCmd.PersistentFlags().Lookup("domain-name"))
	viper.BindPFlag("instance-number", rootCmd.PersistentFlags().Lookup("instance-number"))
	viper.BindPFlag("port-suffix", rootCmd.PersistentFlags().Lookup("port-suffix"))
	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("database-user", rootCmd.PersistentFlags().Lookup("database-user"))
	viper.BindPFlag("database-password", rootCmd.PersistentFlags().Lookup("database-password"))
	viper.BindPFlag("os-user", rootCmd.PersistentFlags().Lookup("os-user"))
	viper.BindPFlag("os-password", rootCmd.PersistentFlags().Lookup("os-password"))
	viper.BindPFlag("array-endpoint", rootCmd.PersistentFlags().Lookup("array-endpoint"))
	viper.BindPFlag("array-user", rootCmd.PersistentFlags().Lookup("array-user"))
	viper.BindPFlag("array-password", rootCmd.PersistentFlags().Lookup("array-password"))
	viper.BindPFlag("array-insecure", rootCmd.PersistentFlags().Lookup("array-insecure"))
	viper.BindPFlag("group-prefix", rootCmd.PersistentFlags().Lookup("group-prefix"))
	viper.BindPFlag("suffix-prefix", rootCmd.PersistentFlags().Lookup("suffix-prefix"))
	viper.BindPFlag("catalog-path", rootCmd.PersistentFlags().Lookup("catalog-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("ssh-timeout", rootCmd.PersistentFlags().Lookup("ssh-timeout"))
}
