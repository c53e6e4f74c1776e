// Package main は管理者向けの認証設定ツール authctl です。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "authctl",
		Short: "管理画面の認証設定を扱うツール",
		Long: `authctl は APP_PASSWORD_HASH と AUTH_SECRET の生成、
およびセッショントークンの検証を行います。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		hashPasswordCmd(),
		genSecretCmd(),
		verifyTokenCmd(),
	)
	return rootCmd
}
