package report

import (
	"fmt"
	"unicode/utf8"

	"github.com/4ndersonLin/scamledger/internal/validation"
)

// ValidateInput checks a submission structurally and semantically and
// returns every violation at once, never just the first.
func ValidateInput(in *Input) *ValidationErrors {
	var violations []string

	if !validation.IsValidChain(in.Chain) {
		violations = append(violations, fmt.Sprintf("chain must be one of %v", validation.Chains))
	}

	if in.Address == "" {
		violations = append(violations, "address is required")
	} else if validation.IsValidChain(in.Chain) && !validation.IsValidAddress(validation.Chain(in.Chain), in.Address) {
		violations = append(violations, fmt.Sprintf("address is not a valid %s address", in.Chain))
	}

	if !validation.IsValidScamType(in.ScamType) {
		violations = append(violations, fmt.Sprintf("scam_type must be one of %v", validation.ScamTypes))
	}

	if in.Description == "" {
		violations = append(violations, "description is required")
	} else if utf8.RuneCountInString(in.Description) > validation.MaxDescriptionLength {
		violations = append(violations, fmt.Sprintf("description must be at most %d characters", validation.MaxDescriptionLength))
	}

	if in.LossAmount != nil && *in.LossAmount < 0 {
		violations = append(violations, "loss_amount must be non-negative")
	}

	if in.EvidenceURL != nil && *in.EvidenceURL != "" && !validation.IsValidURL(*in.EvidenceURL) {
		violations = append(violations, "evidence_url must be a valid http(s) URL")
	}

	if len(violations) > 0 {
		return &ValidationErrors{Violations: violations}
	}
	return nil
}
