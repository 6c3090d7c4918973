package types

import (
	"sort"

	"github.com/pkg/errors"
)

// Constants governing validator-set size and priority arithmetic.
const (
	// MaxValidators is the maximum number of validators in a set, limited
	// by the uint16 index.
	MaxValidators = 65535

	// MaxTotalVotingPower prevents overflow in priority calculations.
	MaxTotalVotingPower = int64(1) << 60

	// PriorityWindowSize bounds how far a validator's priority may drift,
	// clamping the round-robin advance against pathological inputs.
	PriorityWindowSize = MaxTotalVotingPower * 2
)

// Validator-set errors.
var (
	ErrValidatorNotFound  = errors.New("validator not found")
	ErrDuplicateValidator = errors.New("duplicate validator")
	ErrEmptyValidatorSet  = errors.New("empty validator set")
	ErrInvalidVotingPower = errors.New("invalid voting power")
	ErrTooManyValidators  = errors.New("too many validators")
	ErrTotalPowerOverflow = errors.New("total voting power overflow")
	ErrEmptyValidatorName = errors.New("validator has empty name")
)

// NamedValidator is one member of a ValidatorSet: an identity, a public
// key, a fixed voting power, and a mutable proposer-priority.
type NamedValidator struct {
	Name             AccountName
	Index            uint16
	PublicKey        PublicKey
	VotingPower      int64
	ProposerPriority int64
}

// ValidatorSet is the fixed roster for one height: composition and powers
// never change after construction, but ProposerPriority (and therefore
// Proposer) advances deterministically as rounds elapse.
type ValidatorSet struct {
	Validators []*NamedValidator
	Proposer   *NamedValidator
	TotalPower int64

	byName  map[string]*NamedValidator
	byIndex map[uint16]*NamedValidator
}

// NewValidatorSet builds a ValidatorSet, assigning sequential indices in
// input order and centering proposer priorities if none were supplied.
func NewValidatorSet(validators []*NamedValidator) (*ValidatorSet, error) {
	if len(validators) == 0 {
		return nil, ErrEmptyValidatorSet
	}
	if len(validators) > MaxValidators {
		return nil, errors.Wrapf(ErrTooManyValidators, "%d (max %d)", len(validators), MaxValidators)
	}

	vs := &ValidatorSet{
		Validators: make([]*NamedValidator, len(validators)),
		byName:     make(map[string]*NamedValidator),
		byIndex:    make(map[uint16]*NamedValidator),
	}

	for i, v := range validators {
		if IsAccountNameEmpty(v.Name) {
			return nil, errors.Wrapf(ErrEmptyValidatorName, "validator %d", i)
		}
		if v.VotingPower <= 0 {
			return nil, ErrInvalidVotingPower
		}
		if _, exists := vs.byName[v.Name.Name]; exists {
			return nil, ErrDuplicateValidator
		}
		if vs.TotalPower > MaxTotalVotingPower-v.VotingPower {
			return nil, errors.Wrapf(ErrTotalPowerOverflow, "exceeds %d", MaxTotalVotingPower)
		}

		val := &NamedValidator{
			Name:             v.Name,
			Index:            uint16(i),
			PublicKey:        v.PublicKey,
			VotingPower:      v.VotingPower,
			ProposerPriority: v.ProposerPriority,
		}
		vs.Validators[i] = val
		vs.byName[v.Name.Name] = val
		vs.byIndex[uint16(i)] = val
		vs.TotalPower += v.VotingPower
	}

	allZero := true
	for _, v := range vs.Validators {
		if v.ProposerPriority != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		vs.initProposerPriorities()
	}

	vs.Proposer = vs.getProposer()
	return vs, nil
}

func (vs *ValidatorSet) initProposerPriorities() {
	for _, v := range vs.Validators {
		v.ProposerPriority = v.VotingPower
	}
	vs.centerPriorities()
}

// centerPriorities subtracts the mean priority from every validator.
// Integer division loses at most (len-1) in total, which is negligible
// against typical voting powers and keeps priorities bounded rather than
// exactly centered.
func (vs *ValidatorSet) centerPriorities() {
	if len(vs.Validators) == 0 {
		return
	}
	var sum int64
	for _, v := range vs.Validators {
		sum += v.ProposerPriority
	}
	avg := sum / int64(len(vs.Validators))
	for _, v := range vs.Validators {
		v.ProposerPriority -= avg
	}
}

func (vs *ValidatorSet) getProposer() *NamedValidator {
	if len(vs.Validators) == 0 {
		return nil
	}
	proposer := vs.Validators[0]
	for _, v := range vs.Validators[1:] {
		if v.ProposerPriority > proposer.ProposerPriority {
			proposer = v
		}
	}
	return proposer
}

// GetByName returns a validator by name, or nil.
func (vs *ValidatorSet) GetByName(name string) *NamedValidator {
	return vs.byName[name]
}

// GetByIndex returns a validator by index, or nil.
func (vs *ValidatorSet) GetByIndex(index uint16) *NamedValidator {
	return vs.byIndex[index]
}

// Size returns the number of validators.
func (vs *ValidatorSet) Size() int {
	return len(vs.Validators)
}

// TwoThirdsMajority returns the voting power required for a 2/3+ (2F+1)
// quorum. The division-first form avoids overflowing TotalPower*2.
func (vs *ValidatorSet) TwoThirdsMajority() int64 {
	third := vs.TotalPower / 3
	remainder := vs.TotalPower % 3
	twoThirds := third + third
	if remainder == 2 {
		twoThirds++
	}
	return twoThirds + 1
}

// OneThirdMajority returns the voting power required for a 1/3+ (F+1)
// quorum, used for the round-skip rule.
func (vs *ValidatorSet) OneThirdMajority() int64 {
	return vs.TotalPower/3 + 1
}

// IncrementProposerPriority advances the round-robin schedule by `times`
// rounds in place: every validator's priority grows by its own voting
// power, the current proposer's priority is then docked by the total
// power, and the result is re-centered. This is the weighted
// proposer-priority algorithm the teacher's engine calls once per round
// advance.
func (vs *ValidatorSet) IncrementProposerPriority(times int32) {
	if len(vs.Validators) == 0 {
		return
	}
	for i := int32(0); i < times; i++ {
		for _, v := range vs.Validators {
			newPriority := v.ProposerPriority + v.VotingPower
			if newPriority > PriorityWindowSize/2 {
				newPriority = PriorityWindowSize / 2
			}
			v.ProposerPriority = newPriority
		}
		proposer := vs.getProposer()
		if proposer != nil {
			newPriority := proposer.ProposerPriority - vs.TotalPower
			if newPriority < -PriorityWindowSize/2 {
				newPriority = -PriorityWindowSize / 2
			}
			proposer.ProposerPriority = newPriority
		}
	}
	vs.centerPriorities()
	vs.Proposer = vs.getProposer()
}

// Copy returns a deep copy of the validator set, preserving priorities
// exactly (it does not go through NewValidatorSet, which would reinitialize
// priorities that are all zero).
func (vs *ValidatorSet) Copy() *ValidatorSet {
	validators := make([]*NamedValidator, len(vs.Validators))
	for i, v := range vs.Validators {
		var pubKeyCopy PublicKey
		if len(v.PublicKey.Data) > 0 {
			pubKeyCopy.Data = make([]byte, len(v.PublicKey.Data))
			copy(pubKeyCopy.Data, v.PublicKey.Data)
		}
		validators[i] = &NamedValidator{
			Name:             CopyAccountName(v.Name),
			Index:            v.Index,
			PublicKey:        pubKeyCopy,
			VotingPower:      v.VotingPower,
			ProposerPriority: v.ProposerPriority,
		}
	}

	newVS := &ValidatorSet{
		Validators: validators,
		TotalPower: vs.TotalPower,
		byName:     make(map[string]*NamedValidator),
		byIndex:    make(map[uint16]*NamedValidator),
	}
	for _, v := range validators {
		newVS.byName[v.Name.Name] = v
		newVS.byIndex[v.Index] = v
	}
	if vs.Proposer != nil {
		newVS.Proposer = newVS.byIndex[vs.Proposer.Index]
	}
	return newVS
}

// Hash computes a deterministic hash of the validator set's composition.
// ProposerPriority is explicitly excluded: it is mutable per-round state,
// and including it would make two validator sets with identical membership
// hash differently depending on how many rounds had elapsed.
func (vs *ValidatorSet) Hash() Hash {
	sorted := make([]*NamedValidator, len(vs.Validators))
	copy(sorted, vs.Validators)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name.Name < sorted[j].Name.Name
	})

	forSign := make([]validatorForSign, len(sorted))
	for i, v := range sorted {
		forSign[i] = validatorForSign{
			Name:        v.Name.Name,
			PublicKey:   v.PublicKey.Data,
			VotingPower: uint64(v.VotingPower),
		}
	}

	data, err := rlpEncode(validatorSetForSign{Validators: forSign, TotalPower: uint64(vs.TotalPower)})
	if err != nil {
		panic(errors.Wrap(err, "CONSENSUS CRITICAL: failed to encode validator set for hashing"))
	}
	return HashBytes(data)
}

// validatorForSign and validatorSetForSign mirror NamedValidator/ValidatorSet
// using only RLP-encodable unsigned types (RLP has no signed-integer
// encoding); voting power is always non-negative by construction so the
// uint64 conversion is lossless.
type validatorForSign struct {
	Name        string
	PublicKey   []byte
	VotingPower uint64
}

type validatorSetForSign struct {
	Validators []validatorForSign
	TotalPower uint64
}
