package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/inkpost/internal/password"
	"github.com/yourusername/inkpost/internal/session"
)

func hashPasswordCmd() *cobra.Command {
	var (
		plain string
		cost  int
	)

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "APP_PASSWORD_HASH 用の bcrypt ハッシュを出力します",
		Long:  `--password を省略した場合は標準入力の1行目を読み込みます。`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if plain == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				plain = strings.TrimRight(line, "\r\n")
			}
			hashed, err := password.HashWithCost(plain, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&plain, "password", "p", "", "ハッシュ化するパスワード")
	cmd.Flags().IntVar(&cost, "cost", password.DefaultCost, "bcrypt のコスト")
	return cmd
}

func genSecretCmd() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "gen-secret",
		Short: "AUTH_SECRET 用のランダムな秘密鍵を出力します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 32 {
				return errors.New("--bytes must be at least 32")
			}
			buf := make([]byte, size)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.RawURLEncoding.EncodeToString(buf))
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "bytes", 48, "乱数のバイト数")
	return cmd
}

func verifyTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-token <token>",
		Short: "AUTH_SECRET でセッショントークンを検証します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("AUTH_SECRET")
			if secret == "" {
				return session.ErrMissingSecret
			}
			payload, ok := session.NewAuthority(secret).Inspect(args[0])
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "invalid")
				return errors.New("token is not valid")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid (expiresAt=%d)\n", payload.ExpiresAt)
			return nil
		},
	}
	return cmd
}
