package commands

import (
	"encoding/json"
	"fmt"

	"lfsgate/pkg/service"
	"lfsgate/pkg/token"
	"lfsgate/pkg/types"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <upload|download|verify> <user> <repo> [oid]",
	Short: "Mint a scoped transfer token (for debugging transfer endpoints)",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		op := types.Operation(args[0])
		if !op.IsValid() {
			return fmt.Errorf("unknown operation %q", args[0])
		}
		user, repo := args[1], args[2]
		var oid string
		if len(args) == 4 {
			oid = args[3]
		}
		if op != types.OperationVerify && oid == "" {
			return fmt.Errorf("%s token requires an oid", op)
		}

		tokens, err := token.NewService(token.Config{
			Secret:    settings.JWT.Secret,
			Algorithm: settings.JWT.Algorithm,
			Issuer:    settings.JWT.Issuer,
			TTL:       settings.JWT.ExpiresIn,
		})
		if err != nil {
			return err
		}
		grant, err := tokens.Mint(op, user, repo, oid)
		if err != nil {
			return err
		}

		href := service.VerifyHref(settings.BaseURL, user, repo)
		if op != types.OperationVerify {
			href = service.ObjectHref(settings.BaseURL, user, repo, oid)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(types.Action{
			Href:      href,
			ExpiresAt: grant.ExpiresAt,
			Header:    map[string]string{"Authorization": service.TokenScheme + grant.Token},
		})
	},
}
