package main

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"sigrelay/cmd/internal/app"
	"sigrelay/cmd/security/wrap"

	"github.com/spf13/cobra"
)

// Set via -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "sigrelay",
		Short: "End-to-end encrypted chat signaling relay",
		Long: `sigrelay keeps presence for connected chat clients, hands each pair a
session key wrapped under their own public keys, and relays ciphertext
between them without ever seeing plaintext messages.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return app.LoadDotEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading RELAY_* variables")

	root.AddCommand(newServeCmd(), newKeygenCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var addr, logLevel, logFormat string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.LoadConfig()
			if cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = addr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			return app.Run(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides RELAY_HTTP_ADDR)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides RELAY_LOG_LEVEL)")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "json|pretty (overrides RELAY_LOG_FORMAT)")
	return cmd
}

// newKeygenCmd prints a client key pair in the encodings the relay accepts.
func newKeygenCmd() *cobra.Command {
	var (
		alg  string
		bits int
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a client key pair (PEM) for testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			switch alg {
			case "rsa":
				priv, err := rsa.GenerateKey(rand.Reader, bits)
				if err != nil {
					return fmt.Errorf("generate rsa: %w", err)
				}
				pub, err := wrap.EncodePublicKeyPEM(&priv.PublicKey)
				if err != nil {
					return err
				}
				der, err := x509.MarshalPKCS8PrivateKey(priv)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(out, pub)
				return pem.Encode(out, &pem.Block{Type: "PRIVATE KEY", Bytes: der})

			case "x25519":
				priv, err := ecdh.X25519().GenerateKey(rand.Reader)
				if err != nil {
					return fmt.Errorf("generate x25519: %w", err)
				}
				pub, err := wrap.EncodePublicKeyPEM(priv.PublicKey())
				if err != nil {
					return err
				}
				der, err := x509.MarshalPKCS8PrivateKey(priv)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(out, pub)
				return pem.Encode(out, &pem.Block{Type: "PRIVATE KEY", Bytes: der})

			default:
				return fmt.Errorf("unknown --alg %q (want rsa or x25519)", alg)
			}
		},
	}
	cmd.Flags().StringVar(&alg, "alg", "rsa", "rsa|x25519")
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA modulus size")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "sigrelay", version)
		},
	}
}
