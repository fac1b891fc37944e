package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/certen/ksi-go/pkg/hashref"
	"github.com/certen/ksi-go/pkg/hasher"
)

func newSignCmd() *cobra.Command {
	var (
		inputFile string
		algorithm uint8
		outFile   string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Request a signature over a document's hash from the configured aggregator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, _, err := loadContext()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(inputFile)
			if err != nil {
				return err
			}
			digest, err := hasher.Imprint(hashref.NewOpener(), byte(algorithm), data)
			if err != nil {
				return err
			}

			netCtx, cancel := signalContext()
			defer cancel()
			sig, err := ctx.Sign(netCtx, digest)
			if err != nil {
				dumpErrorsOnFailure(ctx)
				return err
			}

			n, err := writeSignatureFile(sig, outFile)
			if err != nil {
				return err
			}
			cmd.Printf("signature written to %s (%d bytes, signing time %d)\n", outFile, n, sig.SigningTime())
			return nil
		},
	}
	cmd.Flags().StringVar(&inputFile, "in", "", "path to the document to hash and sign")
	cmd.Flags().Uint8Var(&algorithm, "algorithm", 0x01, "hash algorithm id used for the document hash (default SHA-256)")
	cmd.Flags().StringVar(&outFile, "out", "signature.tlv", "path to write the resulting signature")
	cmd.MarkFlagRequired("in")
	return cmd
}
