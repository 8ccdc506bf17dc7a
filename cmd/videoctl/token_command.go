package main

import (
	"fmt"

	t_token "tiered_video_service/pkg/token"

	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	var (
		memberID string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the transcoder webhook or an operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch t_token.RoleType(role) {
			case t_token.RoleAdmin, t_token.RoleMember, t_token.RoleService:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			tk, err := t_token.GenerateJWTFunc(memberID, role, "videoctl")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tk)
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "transcoder", "Subject member id")
	cmd.Flags().StringVar(&role, "role", string(t_token.RoleService), "admin, member or service")
	return cmd
}
