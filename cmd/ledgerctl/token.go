package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	pkgAuth "github.com/angelmondragon/invoice-ledger/pkg/auth"
)

func newTokenCmd(c *cli) *cobra.Command {
	var userID, ownerID, tenantID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with the configured JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := pkgAuth.AccessTokenPayload{}
			var err error
			if payload.UserID, err = uuid.Parse(userID); err != nil {
				return fmt.Errorf("invalid --user %q", userID)
			}
			if payload.OwnerID, err = uuid.Parse(ownerID); err != nil {
				return fmt.Errorf("invalid --owner %q", ownerID)
			}
			if tenantID != "" {
				tenant, err := uuid.Parse(tenantID)
				if err != nil {
					return fmt.Errorf("invalid --tenant %q", tenantID)
				}
				payload.TenantID = &tenant
			}
			token, err := pkgAuth.MintAccessToken(c.cfg.JWT, time.Now(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id recorded as the actor")
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id scoping every query")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "optional tenant id")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
