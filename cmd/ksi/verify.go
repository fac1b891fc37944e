package main

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/certen/ksi-go/pkg/hasher"
	"github.com/certen/ksi-go/pkg/hashref"
	"github.com/certen/ksi-go/pkg/pki"
	"github.com/certen/ksi-go/pkg/pubfile"
	"github.com/certen/ksi-go/pkg/signature"
	"github.com/certen/ksi-go/pkg/verifier"
)

// httpFetcher retrieves the publications file over a plain GET, the
// transport contract pkg/pubfile.Fetcher expects (distinct from
// pkg/transport.Transport's POST/exchange shape, since a publications file
// fetch carries no request body).
type httpFetcher struct {
	uri    string
	client *http.Client
}

func (f httpFetcher) Fetch() ([]byte, error) {
	resp, err := f.client.Get(f.uri)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch publications file: unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func newVerifyCmd() *cobra.Command {
	var (
		inFile      string
		hashFile    string
		algorithm   uint8
		pubString   string
		pubfilePath string
		caFile      string
		trustedTime int64
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run the ordered verification pipeline against a signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := readSignatureFile(inFile)
			if err != nil {
				return err
			}

			ctx, cfg, err := loadContext()
			if err != nil {
				return err
			}

			opts := verifier.Options{
				PublicationString: pubString,
				DecodePublication: pubfile.DecodePublicationString,
				TrustedTime:       trustedTime,
			}

			if hashFile != "" {
				data, err := os.ReadFile(hashFile)
				if err != nil {
					return err
				}
				digest, err := hasher.Imprint(hashref.NewOpener(), byte(algorithm), data)
				if err != nil {
					return err
				}
				opts.DocumentHash = &digest
			}

			var pf *pubfile.File
			switch {
			case pubfilePath != "":
				raw, err := os.ReadFile(pubfilePath)
				if err != nil {
					return err
				}
				pf, err = pubfile.Parse(raw)
				if err != nil {
					return err
				}
			case cfg.PublicationsFileURI != "":
				raw, err := httpFetcher{uri: cfg.PublicationsFileURI, client: &http.Client{Timeout: cfg.TransferTimeout}}.Fetch()
				if err != nil {
					return err
				}
				pf, err = pubfile.Parse(raw)
				if err != nil {
					return err
				}
			}
			if pf != nil {
				opts.PublicationsFile = pf
			}

			if caFile != "" {
				roots, err := loadCertPool(caFile)
				if err != nil {
					return err
				}
				opts.PkiVerifier = &pki.X509Verifier{
					Roots: roots,
					CertByID: func(id []byte) (*x509.Certificate, error) {
						if pf == nil {
							return nil, fmt.Errorf("no publications file loaded to resolve certificate id %x", id)
						}
						for _, rec := range pf.Certificates {
							if bytes.Equal(rec.CertID, id) {
								return x509.ParseCertificate(rec.DER)
							}
						}
						return nil, fmt.Errorf("certificate id %x not found in publications file", id)
					},
					Now: time.Now,
				}
			}

			netCtx, cancel := signalContext()
			defer cancel()
			result, err := ctx.Verify(netCtx, sig, opts)
			if err != nil {
				dumpErrorsOnFailure(ctx)
				return err
			}

			for _, rec := range result.Records {
				status := "PASS"
				if !rec.Success {
					status = "FAIL"
				}
				cmd.Printf("%-28s %s  %s\n", rec.Step, status, rec.Description)
			}
			if verbose {
				if root, encErr := signature.Encode(sig); encErr == nil {
					cmd.Println(root.Dump(0))
				}
			}
			if !result.Success {
				return fmt.Errorf("verification failed")
			}
			cmd.Println("OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&inFile, "in", "", "path to the signature to verify")
	cmd.Flags().StringVar(&hashFile, "hash-file", "", "path to the original document, to check DOCUMENT consistency")
	cmd.Flags().Uint8Var(&algorithm, "algorithm", 0x01, "hash algorithm id used for --hash-file (default SHA-256)")
	cmd.Flags().StringVar(&pubString, "publication-string", "", "publication string to verify the signature against")
	cmd.Flags().StringVar(&pubfilePath, "pubfile", "", "path to a local publications file (overrides the configured URI)")
	cmd.Flags().StringVar(&caFile, "ca-file", "", "PEM file of trusted roots for the calendar-auth record's PKI signature (the publications file's own signature is not checked)")
	cmd.Flags().Int64Var(&trustedTime, "trusted-time", 0, "trusted current time (unix seconds), used to bound extension requests")
	cmd.MarkFlagRequired("in")
	return cmd
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates parsed from %s", path)
	}
	return pool, nil
}

