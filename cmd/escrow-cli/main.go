package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	ConfigFlag     = "config"
	RPCURLFlag     = "rpc-url"
	NetworkIDFlag  = "network-id"
	KeystoreFlag   = "keystore"
	PasswordFlag   = "password"
	PrivateKeyFlag = "private-key"
	AddressFlag    = "address"
	ArtifactFlag   = "artifact"
	YesFlag        = "yes"
	LogLevelFlag   = "log-level"

	PrivateKeyEnv = "ESCROW_PRIVATE_KEY"
	PasswordEnv   = "ESCROW_PASSWORD"
)

var logger *zap.SugaredLogger

func main() {
	agreementFlag := &cli.StringFlag{
		Name:    AddressFlag,
		Aliases: []string{"a"},
		Usage:   "Agreement address, defaults to the configured one",
	}

	app := &cli.App{
		Name:  "escrow-cli",
		Usage: "Inspect and drive two-party escrow agreements",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    ConfigFlag,
				Aliases: []string{"c"},
				Usage:   "JSON config file, can be repeated",
			},
			&cli.StringFlag{
				Name:  RPCURLFlag,
				Usage: "Ledger RPC endpoint, overrides the config",
			},
			&cli.Uint64Flag{
				Name:  NetworkIDFlag,
				Usage: "Chain id, overrides the config",
			},
			&cli.StringFlag{
				Name:  KeystoreFlag,
				Usage: "Keystore directory holding the signing identity",
			},
			&cli.StringFlag{
				Name:    PasswordFlag,
				Usage:   "Keystore passphrase",
				EnvVars: []string{PasswordEnv},
			},
			&cli.StringFlag{
				Name:    PrivateKeyFlag,
				Usage:   "Hex private key used instead of a keystore",
				EnvVars: []string{PrivateKeyEnv},
			},
			&cli.BoolFlag{
				Name:    YesFlag,
				Aliases: []string{"y"},
				Usage:   "Approve every signing request without prompting",
			},
			&cli.StringFlag{
				Name:  LogLevelFlag,
				Usage: "Log level, overrides the config",
			},
		},
		Before: func(cCtx *cli.Context) error {
			rawLogger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			logger = rawLogger.Sugar()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show agreement details and the viewer's role",
				Flags:  []cli.Flag{agreementFlag},
				Action: showAction,
			},
			{
				Name:   "role",
				Usage:  "Print the viewer's role in the agreement",
				Flags:  []cli.Flag{agreementFlag},
				Action: roleAction,
			},
			{
				Name:   "confirm",
				Usage:  "Confirm the work as client",
				Flags:  []cli.Flag{agreementFlag},
				Action: confirmAction,
			},
			{
				Name:   "release",
				Usage:  "Release the escrowed payment as client",
				Flags:  []cli.Flag{agreementFlag},
				Action: releaseAction,
			},
			{
				Name:  "create",
				Usage: "Create a new agreement with the viewer as client",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "freelancer",
						Usage:    "Freelancer address",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "text",
						Usage:    "Agreement text",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Escrowed payment in ether",
						Required: true,
					},
					&cli.StringFlag{
						Name:  ArtifactFlag,
						Usage: "Compiled agreement artifact, overrides the config",
					},
				},
				Action: createAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if logger != nil {
			logger.Fatal(err)
		}
		os.Exit(1)
	}
}
