package card

import (
	"context"
	"fmt"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newInfo() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Reads the account on the configured key slot, creating the key if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTappedCard(cmd, func(ctx context.Context, s *api.Server, c card.Card) error {
				identity, err := s.Keys.Refresh(ctx, c)
				if err != nil {
					return err
				}

				fmt.Printf("address:            %s\n", identity.Address.Hex())
				fmt.Printf("public key:         %s\n", identity.PublicKeyHex())
				fmt.Printf("key handle:         %d\n", identity.KeyHandle)
				fmt.Printf("signature counter:  %d\n", identity.SigCounter)
				fmt.Printf("global counter:     %d\n", identity.GlobalSigCounter)
				for _, id := range s.Chains.IDs() {
					fmt.Printf("account:            %s\n", identity.CAIP10(id))

					c, _ := s.Chains.Get(id)
					if c.RPCEndpoint == "" {
						continue
					}
					balance, err := c.Adapter.GetBalance(ctx, identity.Address.Hex())
					if err != nil {
						log.Warn().Err(err).Str("chain", id).Msg("Failed to query balance")
						continue
					}
					fmt.Printf("  balance (wei):    %s\n", balance.String())
				}
				return nil
			})
		},
	}
}
