package card

import (
	"context"
	"fmt"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/SafeMPC/card-bridge/internal/infra/request"
	"github.com/SafeMPC/card-bridge/internal/infra/signature"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	rawFlag      string = "raw"
	digestLength        = 32
)

// newSign 不经过 dApp 会话直接让卡片签名，用于确认卡片与 PIN 可用
func newSign() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign <message | 0x-digest>",
		Short: "Signs a personal message, or with --raw a 32 byte digest, outside of any dApp session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetBool(rawFlag)
			digest, err := signDigest(args[0], raw)
			if err != nil {
				return err
			}

			return withTappedCard(cmd, func(ctx context.Context, s *api.Server, c card.Card) error {
				identity, err := s.Keys.Refresh(ctx, c)
				if err != nil {
					return err
				}

				rawSig, err := c.Sign(ctx, identity.KeyHandle, digest, s.Config.Card.PIN)
				if err != nil {
					return err
				}

				// Normalize 只接受能恢复出当前账户地址的签名
				sig, err := signature.Normalize(rawSig.DER, digest, identity.Address, rawSig.SigCounter, rawSig.GlobalSigCounter)
				if err != nil {
					return err
				}
				if !raw {
					if err := request.VerifyPersonalSignature(identity.Address, []byte(args[0]), sig); err != nil {
						return err
					}
				}

				fmt.Printf("address:    %s\n", identity.Address.Hex())
				fmt.Printf("digest:     %s\n", hexutil.Encode(digest))
				fmt.Printf("signature:  %s\n", sig.Hex())
				fmt.Printf("counter:    %d\n", sig.SigCounter)
				return nil
			})
		},
	}
	cmd.Flags().Bool(rawFlag, false, "Sign the given 0x-prefixed 32 byte digest as is, without the EIP-191 prefix")
	return cmd
}

// signDigest raw 为 true 时参数本身就是摘要，否则按文本加 EIP-191 前缀
func signDigest(arg string, raw bool) ([]byte, error) {
	if !raw {
		return accounts.TextHash([]byte(arg)), nil
	}
	digest, err := hexutil.Decode(arg)
	if err != nil {
		return nil, errors.Wrap(err, "digest must be 0x-prefixed hex")
	}
	if len(digest) != digestLength {
		return nil, errors.Errorf("digest must be %d bytes, got %d", digestLength, len(digest))
	}
	return digest, nil
}
