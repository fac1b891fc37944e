package main

import (
	"github.com/spf13/cobra"

	"github.com/certen/ksi-go/pkg/pubfile"
	"github.com/certen/ksi-go/pkg/signature"
)

func newExtendCmd() *cobra.Command {
	var (
		inFile    string
		outFile   string
		pubTime   int64
		pubString string
	)
	cmd := &cobra.Command{
		Use:   "extend",
		Short: "Extend a signature's calendar chain through a publication",
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := readSignatureFile(inFile)
			if err != nil {
				return err
			}

			var pub signature.PublicationRecord
			if pubString != "" {
				pub, err = pubfile.DecodePublicationString(pubString)
				if err != nil {
					return err
				}
				if pubTime == 0 {
					pubTime = pub.PublishedData.PublicationTime
				}
			}

			ctx, _, err := loadContext()
			if err != nil {
				return err
			}

			netCtx, cancel := signalContext()
			defer cancel()
			extended, err := ctx.Extend(netCtx, sig, pubTime, pub)
			if err != nil {
				dumpErrorsOnFailure(ctx)
				return err
			}

			n, err := writeSignatureFile(extended, outFile)
			if err != nil {
				return err
			}
			cmd.Printf("extended signature written to %s (%d bytes, publication time %d)\n", outFile, n, pubTime)
			return nil
		},
	}
	cmd.Flags().StringVar(&inFile, "in", "", "path to the signature to extend")
	cmd.Flags().StringVar(&outFile, "out", "signature-extended.tlv", "path to write the extended signature")
	cmd.Flags().Int64Var(&pubTime, "publication-time", 0, "publication time to extend through (derived from --publication-string when omitted)")
	cmd.Flags().StringVar(&pubString, "publication-string", "", "publication string naming the publication record to attach")
	cmd.MarkFlagRequired("in")
	return cmd
}
