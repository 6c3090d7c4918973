package privval

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/blockberries/roundberry/types"
)

// Errors
var (
	ErrDoubleSign       = errors.New("double sign attempt")
	ErrSignerNotFound   = errors.New("signer not found")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrHeightRegression = errors.New("height regression")
	ErrRoundRegression  = errors.New("round regression")
	ErrStepRegression   = errors.New("step regression")
)

// PrivValidator signs consensus messages on behalf of one validator,
// guarding against double-signing internally.
type PrivValidator interface {
	// GetPubKey returns the public key
	GetPubKey() types.PublicKey

	// SignVote signs a vote, checking for double-sign
	SignVote(chainID string, vote *types.Vote) error

	// SignProposal signs a proposal
	SignProposal(chainID string, proposal *types.Proposal) error

	// GetAddress returns the validator address (derived from public key)
	GetAddress() []byte
}

// LastSignState tracks the last signed vote for double-sign prevention.
type LastSignState struct {
	Height    int64
	Round     int32
	Step      int8 // 1 = prevote, 2 = precommit
	Signature types.Signature
	BlockHash *types.Hash

	// SignBytesHash lets FilePV.SignVote verify the entire signed payload
	// matches, not just BlockHash: sign bytes also cover Timestamp and
	// ValidatorIndex, so comparing BlockHash alone would treat two
	// distinct votes for the same block as identical.
	SignBytesHash *types.Hash
	Timestamp     int64
}

// Step values for double-sign prevention. Proposals come before votes in
// a round.
const (
	StepProposal  int8 = 0
	StepPrevote   int8 = 1
	StepPrecommit int8 = 2
)

// CheckHRS checks if a new vote would be a double sign. Returns nil if
// signing is allowed, an error otherwise.
func (lss *LastSignState) CheckHRS(height int64, round int32, step int8) error {
	if lss.Height > height {
		return ErrHeightRegression
	}

	if lss.Height == height {
		if lss.Round > round {
			return ErrRoundRegression
		}

		if lss.Round == round {
			if lss.Step > step {
				return ErrStepRegression
			}
			if lss.Step == step {
				return ErrDoubleSign
			}
		}
	}

	return nil
}

// VoteStep returns the step value for a vote type. Panics on an invalid
// vote type: that indicates a programming error in the consensus layer,
// not a recoverable condition.
func VoteStep(voteType types.VoteType) int8 {
	switch voteType {
	case types.VoteTypePrevote:
		return StepPrevote
	case types.VoteTypePrecommit:
		return StepPrecommit
	default:
		panic(fmt.Sprintf("privval: invalid vote type: %v", voteType))
	}
}
