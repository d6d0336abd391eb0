// Package verdict turns a claim and its evidence into a TRUE, FALSE,
// UNCERTAIN or ERROR verdict.
package verdict

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/inference"
	"github.com/dmitrijs2005/claimgate/internal/server/models"
)

const (
	DefaultThreshold = 0.75

	// echoLen bounds the evidence echoed back to the caller. It does not
	// affect what the classifier sees.
	echoLen = 200

	pairSeparator = " [SEP] "
)

// labels maps classifier output indexes to results.
var labels = [2]string{common.ResultFalse, common.ResultTrue}

type Predictor interface {
	Predict(ctx context.Context, input string) ([]float64, error)
}

type EvidenceSource interface {
	GetEvidence(ctx context.Context, claim string, maxLen int) (string, []string)
}

type Engine struct {
	model       Predictor
	evidence    EvidenceSource
	threshold   float64
	maxEvidence int
	logger      logging.Logger
}

func NewEngine(model Predictor, evidence EvidenceSource, threshold float64, maxEvidence int, logger logging.Logger) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Engine{
		model:       model,
		evidence:    evidence,
		threshold:   threshold,
		maxEvidence: maxEvidence,
		logger:      logger.With("module", "verdict"),
	}
}

// Verify classifies claim against evidence, searching the web when evidence
// is empty. It never fails: retrieval that finds nothing yields UNCERTAIN
// without running the classifier, and classifier faults yield ERROR with the
// fault message attached.
func (e *Engine) Verify(ctx context.Context, claim, evidence string) *models.VerificationResult {
	sources := []string{}

	if strings.TrimSpace(evidence) == "" {
		evidence, sources = e.evidence.GetEvidence(ctx, claim, e.maxEvidence)
		if len(sources) == 0 || strings.TrimSpace(evidence) == "" {
			return &models.VerificationResult{
				Claim:    claim,
				Evidence: "",
				Result:   common.ResultUncertain,
				RawProbs: []float64{},
				Sources:  sources,
			}
		}
	}

	res := &models.VerificationResult{
		Claim:    claim,
		Evidence: common.TruncateRunes(evidence, echoLen, "..."),
		RawProbs: []float64{},
		Sources:  sources,
	}

	logits, err := e.model.Predict(ctx, claim+pairSeparator+evidence)
	if err != nil {
		e.logger.Warn(ctx, "inference failed", "error", err)
		res.Result = common.ResultError
		res.Error = err.Error()
		return res
	}

	probs := inference.Softmax(logits)
	idx := 0
	if probs[1] > probs[0] {
		idx = 1
	}

	res.RawProbs = probs
	res.Confidence = probs[idx]
	res.Result = labels[idx]
	if res.Confidence < e.threshold {
		res.Result = common.ResultUncertain
	}

	e.logger.Debug(ctx, "verdict", "result", res.Result, "confidence", res.Confidence, "sources", len(sources))
	return res
}
