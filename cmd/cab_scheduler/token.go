package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/cab-scheduler/internal/config"
	"github.com/jonathan/cab-scheduler/internal/server"
)

var tokenUserID string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development session token signed with JWT_SECRET",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUserID, "user", "u", "", "User ID to put in the token subject (required)")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}
	jwtService, err := server.NewJWTService(jwtConfig)
	if err != nil {
		return err
	}
	token, err := jwtService.GenerateToken(tokenUserID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
