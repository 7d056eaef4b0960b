package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/SafeMPC/card-bridge/internal/infra/request"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	baseURL    = flag.String("url", "http://localhost:8080", "Base URL of the card bridge management API")
	wsURL      = flag.String("ws-url", "ws://localhost:8080", "WebSocket URL of the card bridge")
	testType   = flag.String("test", "full", "Test type: pair, personal, typed, auth, sign-tx, full")
	chainID    = flag.String("chain", "eip155:5", "CAIP-2 chain used for requests")
	tapTimeout = flag.Duration("tap-timeout", 2*time.Minute, "How long to wait for the card tap per request")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	// 设置日志级别
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 处理中断信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	client := NewTestClient(*baseURL)
	account, err := client.Account(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("No card account yet, tap the card once and retry")
	}
	address := common.HexToAddress(*account.Address)
	log.Info().Str("address", address.Hex()).Msg("Card account")

	dapp := NewDAppClient(*wsURL)
	if err := dapp.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer dapp.Close()

	result, err := dapp.Pair(ctx, []string{*chainID})
	if err != nil {
		log.Fatal().Err(err).Msg("Session proposal failed")
	}
	log.Info().Str("topic", result.Topic).Strs("accounts", result.Namespaces["eip155"].Accounts).Msg("Paired")

	tests := map[string]func(context.Context, *DAppClient, common.Address) error{
		"pair":     func(context.Context, *DAppClient, common.Address) error { return nil },
		"personal": testPersonalSign,
		"typed":    testTypedData,
		"auth":     testAuth,
		"sign-tx":  testSignTransaction,
	}

	var run []string
	if *testType == "full" {
		run = []string{"personal", "typed", "auth", "sign-tx"}
	} else if _, ok := tests[*testType]; ok {
		run = []string{*testType}
	} else {
		log.Fatal().Str("test-type", *testType).Msg("Unknown test type")
	}

	for _, name := range run {
		log.Info().Msgf("=== Testing %s, tap the card ===", name)
		if err := tests[name](ctx, dapp, address); err != nil {
			log.Fatal().Err(err).Str("test", name).Msg("Test failed")
		}
	}

	log.Info().Msg("All tests completed successfully")
}

func decodeSignature(raw json.RawMessage) ([]byte, error) {
	var sigHex string
	if err := json.Unmarshal(raw, &sigHex); err != nil {
		return nil, fmt.Errorf("unexpected result %s: %w", string(raw), err)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return nil, err
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature has %d bytes", len(sig))
	}
	return sig, nil
}

// checkRecovers 用 v-27 恢复公钥并比对地址
func checkRecovers(digest []byte, sig []byte, expected common.Address) error {
	raw := append([]byte{}, sig...)
	raw[64] -= 27
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return err
	}
	if got := crypto.PubkeyToAddress(*pub); got != expected {
		return fmt.Errorf("signature recovers to %s, expected %s", got.Hex(), expected.Hex())
	}
	return nil
}

// testPersonalSign personal_sign
func testPersonalSign(ctx context.Context, dapp *DAppClient, address common.Address) error {
	message := []byte("card-bridge test client says hello")

	raw, err := dapp.Request(ctx, *chainID, chain.MethodPersonalSign, []string{hexutil.Encode(message), address.Hex()}, *tapTimeout)
	if err != nil {
		return err
	}
	sig, err := decodeSignature(raw)
	if err != nil {
		return err
	}
	if err := checkRecovers(request.MessageDigest(message), sig, address); err != nil {
		return err
	}

	log.Info().Str("signature", hexutil.Encode(sig)).Msg("personal_sign verified")
	return nil
}

// testTypedData eth_signTypedData_v4
func testTypedData(ctx context.Context, dapp *DAppClient, address common.Address) error {
	typedData := map[string]interface{}{
		"types": map[string]interface{}{
			"EIP712Domain": []map[string]string{
				{"name": "name", "type": "string"},
				{"name": "version", "type": "string"},
				{"name": "chainId", "type": "uint256"},
			},
			"Greeting": []map[string]string{
				{"name": "from", "type": "address"},
				{"name": "contents", "type": "string"},
			},
		},
		"primaryType": "Greeting",
		"domain": map[string]interface{}{
			"name":    "card-bridge",
			"version": "1",
			"chainId": "5",
		},
		"message": map[string]interface{}{
			"from":     address.Hex(),
			"contents": "Hello, typed data!",
		},
	}

	raw, err := dapp.Request(ctx, *chainID, chain.MethodSignTypedDataV4, []interface{}{address.Hex(), typedData}, *tapTimeout)
	if err != nil {
		return err
	}
	sig, err := decodeSignature(raw)
	if err != nil {
		return err
	}

	log.Info().Str("signature", hexutil.Encode(sig)).Msg("eth_signTypedData_v4 returned")
	return nil
}

// testAuth wc_authRequest
func testAuth(ctx context.Context, dapp *DAppClient, address common.Address) error {
	payload := request.AuthPayload{
		Type:      "eip4361",
		ChainID:   "eip155:1",
		Domain:    "localhost",
		Aud:       "http://localhost/login",
		Version:   "1",
		Nonce:     fmt.Sprintf("%d", time.Now().UnixNano()),
		Iat:       time.Now().UTC().Format(time.RFC3339),
		Statement: "Sign in with the card",
	}

	raw, err := dapp.Call(ctx, request.MethodAuthRequest, map[string]interface{}{"payloadParams": payload}, *tapTimeout)
	if err != nil {
		return err
	}

	var result request.AuthResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	message, err := request.FormatMessage(&payload, result.Issuer)
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(result.Signature.S)
	if err != nil {
		return err
	}
	if err := checkRecovers(request.MessageDigest([]byte(message)), sig, address); err != nil {
		return err
	}

	log.Info().Str("issuer", result.Issuer).Msg("wc_authRequest verified")
	return nil
}

// testSignTransaction eth_signTransaction，所有字段都给出，不需要节点
func testSignTransaction(ctx context.Context, dapp *DAppClient, address common.Address) error {
	tx := map[string]string{
		"from":     address.Hex(),
		"to":       address.Hex(),
		"value":    "0x0",
		"nonce":    "0x0",
		"gasPrice": "0x3b9aca00",
		"gas":      "0x5208",
		"data":     "0x",
	}

	raw, err := dapp.Request(ctx, *chainID, chain.MethodSignTransaction, []interface{}{tx}, *tapTimeout)
	if err != nil {
		return err
	}
	sig, err := decodeSignature(raw)
	if err != nil {
		return err
	}

	log.Info().Str("signature", hexutil.Encode(sig)).Msg("eth_signTransaction returned")
	return nil
}
