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

func newSetPIN() *cobra.Command {
	return &cobra.Command{
		Use:   "set-pin <hex-pin>",
		Short: "Sets the card PIN and prints the PUK",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := card.EncodePIN(args[0]); err != nil {
				return err
			}
			return withTappedCard(cmd, func(ctx context.Context, s *api.Server, c card.Card) error {
				change, err := s.Keys.SetPIN(ctx, c, args[0])
				if err != nil {
					return err
				}
				printPUK(change.PUK)
				return nil
			})
		},
	}
}

func newChangePIN() *cobra.Command {
	return &cobra.Command{
		Use:   "change-pin <current-hex-pin> <new-hex-pin>",
		Short: "Changes the card PIN and prints the new PUK",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, pin := range args {
				if _, err := card.EncodePIN(pin); err != nil {
					return err
				}
			}
			return withTappedCard(cmd, func(ctx context.Context, s *api.Server, c card.Card) error {
				change, err := s.Keys.ChangePIN(ctx, c, args[0], args[1])
				if err != nil {
					return err
				}
				printPUK(change.PUK)
				return nil
			})
		},
	}
}

func newUnlock() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <0x-puk>",
		Short: "Unlocks a blocked PIN with the PUK",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			puk, err := hexutil.Decode(args[0])
			if err != nil {
				return errors.Wrap(err, "puk must be 0x-prefixed hex")
			}
			return withTappedCard(cmd, func(ctx context.Context, s *api.Server, c card.Card) error {
				if err := s.Keys.UnlockPIN(ctx, c, puk); err != nil {
					return err
				}
				fmt.Println("pin unlocked")
				return nil
			})
		},
	}
}

// printPUK PUK 只显示这一次
func printPUK(puk []byte) {
	fmt.Printf("puk: %s\n", hexutil.Encode(puk))
	fmt.Println("store the PUK offline, it is required to unlock a blocked PIN")
}
