// Package verifier implements the ordered, multi-step verification state
// machine of spec §4.4: each step is invoked in a fixed order, skipped when
// its preconditions are not met, and a failed step never short-circuits
// the run. The overall verdict requires at least one trust-anchoring step
// to have passed and every performed step to have passed.
//
// Grounded directly on pkg/verification/unified_verifier.go's
// VerifyFullProofCycle (sequential per-level checks guarded by precondition
// flags, AddError/AddWarning accumulation, a final AllValid aggregate) and
// on accumulate-lite-client-2/liteclient/verifier/verifier.go's ordered Hop
// list ({Name, Ok, Err}) for the per-step record shape.
package verifier

import (
	"context"
	"sync"
	"time"

	"github.com/certen/ksi-go/pkg/hashchain"
	"github.com/certen/ksi-go/pkg/hasher"
	"github.com/certen/ksi-go/pkg/imprint"
	"github.com/certen/ksi-go/pkg/ksierrors"
	"github.com/certen/ksi-go/pkg/logging"
	"github.com/certen/ksi-go/pkg/signature"
)

// Step identifies one entry of spec §4.4's step table.
type Step string

const (
	DOCUMENT                   Step = "DOCUMENT"
	AGGR_INTERNAL              Step = "AGGR_INTERNAL"
	AGGR_WITH_CAL              Step = "AGGR_WITH_CAL"
	CAL_INTERNAL               Step = "CAL_INTERNAL"
	CAL_WITH_CALAUTH           Step = "CAL_WITH_CALAUTH"
	CALAUTH_WITH_PKI           Step = "CALAUTH_WITH_PKI"
	CAL_WITH_PUBLICATION       Step = "CAL_WITH_PUBLICATION"
	PUBLICATION_WITH_PUBFILE   Step = "PUBLICATION_WITH_PUBFILE"
	PUBLICATION_WITH_PUBSTRING Step = "PUBLICATION_WITH_PUBSTRING"
	CAL_ONLINE                 Step = "CAL_ONLINE"
)

var trustAnchoring = map[Step]bool{
	CALAUTH_WITH_PKI:           true,
	PUBLICATION_WITH_PUBFILE:   true,
	PUBLICATION_WITH_PUBSTRING: true,
	CAL_ONLINE:                 true,
}

// Record is one (step, success, description) entry. Only performed steps
// produce a Record (spec §4.4 "ordered list of (step, success, description)
// records").
type Record struct {
	Step        Step
	Success     bool
	Description string
}

// Result is the outcome of one Verify call.
type Result struct {
	Records   []Record
	Performed map[Step]bool
	Failed    map[Step]bool
	Success   bool
}

func newResult() *Result {
	return &Result{Performed: map[Step]bool{}, Failed: map[Step]bool{}}
}

func (r *Result) record(step Step, success bool, description string) {
	r.Records = append(r.Records, Record{Step: step, Success: success, Description: description})
	r.Performed[step] = true
	if !success {
		r.Failed[step] = true
	}
}

// PkiVerifier validates a calendar-auth record's embedded signature. It is
// the external collaborator named in spec §1 ("PKI trust store / X.509"); a
// default crypto/x509-based implementation lives in pkg/pki.
type PkiVerifier interface {
	Verify(published signature.PublishedData, sig, certID []byte, algorithm string) error
}

// Extender requests a calendar chain covering [from, to] from the KSI
// extender (spec §1 external Transport collaborator, specialized here to
// the one request shape CAL_ONLINE needs).
type Extender interface {
	ExtendCalendarChain(ctx context.Context, from, to int64) (signature.CalendarChain, error)
}

// PublicationsFileSource resolves the publication record effective at a
// given publication time. Fetching/parsing/caching the file itself lives in
// pkg/pubfile; this interface is the thin slice the verifier depends on.
type PublicationsFileSource interface {
	Lookup(publicationTime int64) (signature.PublicationRecord, bool, error)
}

// StepObserver receives a callback per completed step, used to drive
// per-step metrics (pkg/metrics.Verifier implements this).
type StepObserver interface {
	Observe(step string, success bool)
}

// ChainObserver receives a callback per hash-chain fold performed while
// verifying, used to drive fold-duration metrics (pkg/metrics.HashChain
// implements this). kind is "aggregation" or "calendar".
type ChainObserver interface {
	ObserveFold(kind string, seconds float64, success bool)
}

// Options carries everything a single Verify call may use. All fields are
// optional; a nil/zero field means the corresponding step(s) are skipped.
type Options struct {
	DocumentHash       *imprint.Imprint
	PkiVerifier        PkiVerifier
	PublicationsFile   PublicationsFileSource
	PublicationString  string
	DecodePublication  func(string) (signature.PublicationRecord, error)
	Extender           Extender
	TrustedTime        int64
}

// Verifier runs the step engine against a Signature. Not safe for
// concurrent Verify calls on the same instance (spec §5: single-threaded
// per logical Context).
type Verifier struct {
	opener        hasher.Opener
	logger        *logging.Logger
	observer      StepObserver
	chainObserver ChainObserver

	mu         sync.Mutex
	lastResult *Result
}

// New builds a Verifier. logger, observer, and chainObserver may all be nil.
func New(opener hasher.Opener, logger *logging.Logger, observer StepObserver, chainObserver ChainObserver) *Verifier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Verifier{opener: opener, logger: logger, observer: observer, chainObserver: chainObserver}
}

// Reset clears the step state kept from the last run. No aggregation hash
// is cached between runs: every Verify folds the chains afresh.
func (v *Verifier) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastResult = nil
}

// Verify runs every step of spec §4.4's table in order against sig,
// returning the full ordered record list plus an error when the overall
// verdict is not success (ksierrors.VerificationFailure, carrying the
// record list via Result for the caller to inspect).
func (v *Verifier) Verify(ctx context.Context, sig *signature.Signature, opts Options) (*Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	res := newResult()

	// DOCUMENT
	if opts.DocumentHash != nil {
		ok := opts.DocumentHash.Equal(sig.InputHash())
		desc := "document hash matches signature input hash"
		if !ok {
			desc = "document hash mismatch"
		}
		v.note(res, DOCUMENT, ok, desc)
	}

	// AGGR_INTERNAL
	topOutput, aggrOK, _ := v.verifyAggregationInternal(sig, res)

	// AGGR_WITH_CAL
	var calRoot imprint.Imprint
	var haveCalRoot bool
	if sig.CalendarChain != nil {
		ok := aggrOK && topOutput.Equal(sig.CalendarChain.InputHash) &&
			sig.CalendarChain.AggregationTime == sig.AggregationChains[len(sig.AggregationChains)-1].AggregationTime
		desc := "calendar chain input matches top aggregation chain output"
		if !ok {
			desc = "calendar chain input/time does not match top aggregation chain"
		}
		v.note(res, AGGR_WITH_CAL, ok, desc)

		root, err := v.foldCalendar(sig.CalendarChain.Links, sig.CalendarChain.InputHash)
		if err == nil {
			calRoot = root
			haveCalRoot = true
		}
	}

	// CAL_INTERNAL
	if sig.CalendarChain != nil {
		t, err := hashchain.AggregationTime(sig.CalendarChain.PublicationTime, sig.CalendarChain.Directions())
		ok := err == nil && t == sig.CalendarChain.AggregationTime
		desc := "calendar chain shape reconstructs its declared aggregation time"
		if !ok {
			desc = "calendar chain shape does not reconstruct declared aggregation time"
		}
		v.note(res, CAL_INTERNAL, ok, desc)
	}

	// CAL_WITH_CALAUTH
	if sig.CalendarAuthRecord != nil {
		ok := haveCalRoot &&
			calRoot.Equal(sig.CalendarAuthRecord.PublishedData.PublishedHash) &&
			sig.CalendarChain != nil &&
			sig.CalendarChain.PublicationTime == sig.CalendarAuthRecord.PublishedData.PublicationTime
		desc := "calendar root matches calendar-auth record"
		if !ok {
			desc = "calendar root/time mismatch against calendar-auth record"
		}
		v.note(res, CAL_WITH_CALAUTH, ok, desc)
	}

	// CALAUTH_WITH_PKI — requires a collaborator; absent one, the step
	// cannot be invoked at all and is skipped rather than failed.
	calAuthVerified := false
	if sig.CalendarAuthRecord != nil && opts.PkiVerifier != nil {
		car := sig.CalendarAuthRecord
		err := opts.PkiVerifier.Verify(car.PublishedData, car.PkiSignature, car.PkiCertID, car.PkiSignatureAlgorithm)
		ok := err == nil
		desc := "PKI signature over published data verified"
		if !ok {
			desc = "PKI signature verification failed: " + err.Error()
		}
		v.note(res, CALAUTH_WITH_PKI, ok, desc)
		calAuthVerified = ok
	}

	// CAL_WITH_PUBLICATION
	if sig.PublicationRecord != nil {
		ok := haveCalRoot &&
			calRoot.Equal(sig.PublicationRecord.PublishedData.PublishedHash) &&
			sig.CalendarChain != nil &&
			sig.CalendarChain.PublicationTime == sig.PublicationRecord.PublishedData.PublicationTime
		desc := "calendar root matches attached publication record"
		if !ok {
			desc = "calendar root mismatch against attached publication record"
		}
		v.note(res, CAL_WITH_PUBLICATION, ok, desc)
	}

	// PUBLICATION_WITH_PUBFILE
	usedPublicationAnchor := false
	if sig.PublicationRecord != nil && opts.PublicationsFile != nil {
		entry, found, err := opts.PublicationsFile.Lookup(sig.PublicationRecord.PublishedData.PublicationTime)
		ok := err == nil && found &&
			entry.PublishedData.PublicationTime == sig.PublicationRecord.PublishedData.PublicationTime &&
			entry.PublishedData.PublishedHash.Equal(sig.PublicationRecord.PublishedData.PublishedHash)
		desc := "publication record matches publications-file entry"
		if !ok {
			desc = "publication record not found or mismatched in publications file"
		}
		v.note(res, PUBLICATION_WITH_PUBFILE, ok, desc)
		if ok {
			usedPublicationAnchor = true
		}
	}

	// PUBLICATION_WITH_PUBSTRING
	if sig.PublicationRecord != nil && opts.PublicationString != "" && opts.DecodePublication != nil {
		decoded, err := opts.DecodePublication(opts.PublicationString)
		ok := err == nil &&
			decoded.PublishedData.PublicationTime == sig.PublicationRecord.PublishedData.PublicationTime &&
			decoded.PublishedData.PublishedHash.Equal(sig.PublicationRecord.PublishedData.PublishedHash)
		desc := "decoded publication string matches signature's publication record"
		if !ok {
			desc = "decoded publication string does not match signature's publication record"
		}
		v.note(res, PUBLICATION_WITH_PUBSTRING, ok, desc)
		if ok {
			usedPublicationAnchor = true
		}
	}

	// CAL_ONLINE — SPEC_FULL.md §C.7: a fallback trust anchor only, run
	// when no anchoring step has already succeeded this verification.
	hasAnchor := usedPublicationAnchor || calAuthVerified
	if opts.Extender != nil && !hasAnchor {
		remote, err := opts.Extender.ExtendCalendarChain(ctx, sig.SigningTime(), opts.TrustedTime)
		ok := false
		desc := "online extender unavailable or returned an inconsistent chain"
		if err == nil {
			remoteRoot, rerr := v.foldCalendar(remote.Links, remote.InputHash)
			if rerr == nil && haveCalRoot && remoteRoot.Equal(calRoot) && remote.AggregationTime == sig.SigningTime() {
				ok = true
				desc = "online extender's calendar chain matches signature's calendar chain"
			}
		}
		v.note(res, CAL_ONLINE, ok, desc)
	}

	res.Success = overallVerdict(res)
	v.lastResult = res

	if !res.Success {
		return res, ksierrors.New(ksierrors.VerificationFailure, "signature verification failed")
	}
	return res, nil
}

func (v *Verifier) verifyAggregationInternal(sig *signature.Signature, res *Result) (imprint.Imprint, bool, error) {
	var prevOutput imprint.Imprint
	level := 0
	ok := true
	var lastErr error
	for i, chain := range sig.AggregationChains {
		input := chain.InputHash
		if i > 0 && !input.Equal(prevOutput) {
			ok = false
		}
		result, err := v.foldAggregation(chain.Links, input, level, chain.HashAlgorithm)
		if err != nil {
			ok = false
			lastErr = err
			break
		}
		prevOutput = result.Output
		level = result.Level
	}
	desc := "every aggregation chain folds to its declared successor input"
	if !ok {
		desc = "aggregation chain fold mismatch or error"
		if lastErr != nil {
			desc += ": " + lastErr.Error()
		}
	}
	v.note(res, AGGR_INTERNAL, ok, desc)
	return prevOutput, ok, lastErr
}

func overallVerdict(res *Result) bool {
	anchored := false
	for step := range res.Performed {
		if res.Failed[step] {
			return false
		}
		if trustAnchoring[step] {
			anchored = true
		}
	}
	return anchored
}

func (v *Verifier) foldCalendar(links []hashchain.Link, inputHash imprint.Imprint) (imprint.Imprint, error) {
	start := time.Now()
	root, err := hashchain.FoldCalendar(v.opener, links, inputHash)
	if v.chainObserver != nil {
		v.chainObserver.ObserveFold("calendar", time.Since(start).Seconds(), err == nil)
	}
	return root, err
}

func (v *Verifier) foldAggregation(links []hashchain.Link, inputHash imprint.Imprint, startLevel int, algorithm byte) (hashchain.FoldResult, error) {
	start := time.Now()
	result, err := hashchain.FoldAggregation(v.opener, links, inputHash, startLevel, algorithm)
	if v.chainObserver != nil {
		v.chainObserver.ObserveFold("aggregation", time.Since(start).Seconds(), err == nil)
	}
	return result, err
}

func (v *Verifier) note(res *Result, step Step, success bool, description string) {
	res.record(step, success, description)
	if success {
		v.logger.Debug("verification step passed", "step", string(step), "description", description)
	} else {
		v.logger.Warn("verification step failed", "step", string(step), "description", description)
	}
	if v.observer != nil {
		v.observer.Observe(string(step), success)
	}
}
