package card

import (
	"context"
	"fmt"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newSeed() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <0x-seed>",
		Short: "Generates the card key from a 16 to 64 byte seed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := hexutil.Decode(args[0])
			if err != nil {
				return errors.Wrap(err, "seed must be 0x-prefixed hex")
			}
			pin, _ := cmd.Flags().GetString(pinFlag)
			if err := card.ValidatePIN(pin); err != nil {
				return err
			}

			return withTappedCard(cmd, func(ctx context.Context, s *api.Server, c card.Card) error {
				if pin == "" {
					pin = s.Config.Card.PIN
				}
				if err := s.Keys.GenerateFromSeed(ctx, c, seed, pin); err != nil {
					return err
				}
				fmt.Println("key generated from seed")
				return nil
			})
		},
	}
	cmd.Flags().String(pinFlag, "", "Card PIN as hex (e.g. 1234 or 0x1234), defaults to the configured PIN")
	return cmd
}
