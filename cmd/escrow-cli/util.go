package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/status-escrow/account"
	"github.com/status-im/status-escrow/agreement"
	"github.com/status-im/status-escrow/logutils"
	"github.com/status-im/status-escrow/params"
	"github.com/status-im/status-escrow/rpc/chain"
	"github.com/status-im/status-escrow/services/escrow"
)

func loadConfig(cCtx *cli.Context) (*params.Config, error) {
	config, err := params.LoadConfigFromFiles(cCtx.StringSlice(ConfigFlag))
	if cCtx.IsSet(ConfigFlag) && err != nil {
		return nil, err
	}
	if config == nil {
		config = params.NewConfig("", 0)
	}
	if cCtx.IsSet(RPCURLFlag) {
		config.UpstreamConfig.URL = cCtx.String(RPCURLFlag)
	}
	if cCtx.IsSet(NetworkIDFlag) {
		config.NetworkID = cCtx.Uint64(NetworkIDFlag)
	}
	if cCtx.IsSet(KeystoreFlag) {
		config.KeyStoreDir = cCtx.String(KeystoreFlag)
	}
	if cCtx.IsSet(ArtifactFlag) {
		config.AgreementArtifact = cCtx.String(ArtifactFlag)
	}
	if cCtx.IsSet(LogLevelFlag) {
		config.LogConfig.Level = cCtx.String(LogLevelFlag)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func newProvider(cCtx *cli.Context, config *params.Config) (account.IdentityProvider, error) {
	if key := cCtx.String(PrivateKeyFlag); key != "" {
		return account.NewKeyProviderFromHex(key)
	}
	if config.KeyStoreDir == "" {
		return nil, account.ErrProviderUnavailable
	}
	passphrase := func(gethcommon.Address) (string, error) {
		if cCtx.IsSet(PasswordFlag) {
			return cCtx.String(PasswordFlag), nil
		}
		return prompt("Keystore passphrase: ")
	}
	authorize := func(_ context.Context, from gethcommon.Address, tx *types.Transaction) bool {
		if cCtx.Bool(YesFlag) {
			return true
		}
		var target string
		if tx.To() != nil {
			target = agreement.ShortAddress(*tx.To())
		} else {
			target = "new agreement"
		}
		answer, err := prompt(fmt.Sprintf("Sign request from %s to %s sending %s ether? [y/N] ",
			agreement.ShortAddress(from), target, agreement.FormatEther(tx.Value())))
		if err != nil {
			return false
		}
		return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
	}
	return account.NewKeystoreProvider(config.KeyStoreDir, passphrase, authorize)
}

func prompt(question string) (string, error) {
	fmt.Fprint(os.Stderr, question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// start dials the ledger, connects the identity and returns the escrow API.
func start(cCtx *cli.Context) (*escrow.API, *params.Config, func(), error) {
	config, err := loadConfig(cCtx)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := logutils.InitLogger(config.LogConfig.Settings()); err != nil {
		return nil, nil, nil, err
	}

	client, err := chain.Dial(cCtx.Context, config.UpstreamConfig, config.CircuitBreaker, config.NetworkID)
	if err != nil {
		return nil, nil, nil, err
	}

	provider, err := newProvider(cCtx, config)
	if err != nil {
		client.Close()
		return nil, nil, nil, err
	}
	manager := account.NewManager(provider, new(big.Int).SetUint64(config.NetworkID))

	service, err := escrow.NewService(config, manager, client)
	if err != nil {
		client.Close()
		return nil, nil, nil, err
	}
	if err := service.Start(); err != nil {
		return nil, nil, nil, err
	}
	stop := func() {
		if err := service.Stop(); err != nil {
			logger.Error(err)
		}
	}

	api := escrow.NewAPI(service)
	address, err := api.Connect(cCtx.Context)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	logger.Infof("connected as %s", address.Hex())
	return api, config, stop, nil
}

// agreementAddress prefers the flag over the configured agreement.
func agreementAddress(cCtx *cli.Context, config *params.Config) string {
	if cCtx.IsSet(AddressFlag) {
		return cCtx.String(AddressFlag)
	}
	return config.AgreementAddress
}

func printView(view *escrow.AgreementView) {
	fmt.Printf("Agreement:  %s\n", view.Address.Hex())
	fmt.Printf("Client:     %s\n", view.Client.Hex())
	fmt.Printf("Freelancer: %s\n", view.Freelancer.Hex())
	fmt.Printf("Text:       %s\n", view.Text)
	fmt.Printf("Amount:     %s ETH\n", view.AmountEther)
	fmt.Printf("Status:     %s\n", view.Status)
	fmt.Printf("Your role:  %s\n", view.Role)
}

func printResult(result *escrow.Result, err error) error {
	if result == nil {
		return err
	}
	switch result.Outcome {
	case escrow.OutcomeConfirmed:
		fmt.Printf("%s confirmed in %s\n", result.Action, result.TxHash.Hex())
		if result.RefreshErr != nil {
			fmt.Printf("could not refresh details: %v\n", result.RefreshErr)
		} else if result.Snapshot != nil {
			fmt.Printf("Status:     %s\n", result.Snapshot.Status)
		}
		return nil
	case escrow.OutcomePending:
		fmt.Printf("%s still pending: %s\n", result.Action, result.TxHash.Hex())
	case escrow.OutcomeFailed:
		if err == nil {
			err = errors.New(result.Reason)
		}
		return fmt.Errorf("%s failed: %w", result.Action, err)
	}
	return err
}

func showAction(cCtx *cli.Context) error {
	api, config, stop, err := start(cCtx)
	if err != nil {
		return err
	}
	defer stop()

	view, err := api.Bind(cCtx.Context, agreementAddress(cCtx, config))
	if err != nil {
		return err
	}
	printView(view)
	return nil
}

func roleAction(cCtx *cli.Context) error {
	api, config, stop, err := start(cCtx)
	if err != nil {
		return err
	}
	defer stop()

	view, err := api.Bind(cCtx.Context, agreementAddress(cCtx, config))
	if err != nil {
		return err
	}
	fmt.Println(view.Role)
	return nil
}

func performAction(cCtx *cli.Context, action agreement.Action) error {
	api, config, stop, err := start(cCtx)
	if err != nil {
		return err
	}
	defer stop()

	if _, err := api.Bind(cCtx.Context, agreementAddress(cCtx, config)); err != nil {
		return err
	}
	var result *escrow.Result
	switch action {
	case agreement.ActionConfirmWork:
		result, err = api.ConfirmWork(cCtx.Context)
	case agreement.ActionReleasePayment:
		result, err = api.ReleasePayment(cCtx.Context)
	default:
		return agreement.ErrUnknownAction
	}
	return printResult(result, err)
}

func confirmAction(cCtx *cli.Context) error {
	return performAction(cCtx, agreement.ActionConfirmWork)
}

func releaseAction(cCtx *cli.Context) error {
	return performAction(cCtx, agreement.ActionReleasePayment)
}

func createAction(cCtx *cli.Context) error {
	api, _, stop, err := start(cCtx)
	if err != nil {
		return err
	}
	defer stop()

	view, err := api.CreateAgreement(cCtx.Context, cCtx.String("freelancer"), cCtx.String("text"), cCtx.String("amount"))
	if err != nil {
		return err
	}
	printView(view)
	return nil
}
