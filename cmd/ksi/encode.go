package main

import (
	"os"

	"github.com/certen/ksi-go/pkg/signature"
	"github.com/certen/ksi-go/pkg/tlv"
)

// writeSignatureFile serializes sig to its TLV wire form and writes it to
// path, returning the byte count written.
func writeSignatureFile(sig *signature.Signature, path string) (int, error) {
	root, err := signature.Encode(sig)
	if err != nil {
		return 0, err
	}
	raw, err := tlv.Serialize(root)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return 0, err
	}
	return len(raw), nil
}

// readSignatureFile parses a signature previously written by
// writeSignatureFile (or returned by an aggregator/extender).
func readSignatureFile(path string) (*signature.Signature, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := tlv.Parse(raw)
	if err != nil {
		return nil, err
	}
	return signature.Decode(root)
}
