package payqueue

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// MetadataField is a single optional metadata value tagged with its
// master-list flag position. The tagged form is the API boundary; the
// bitset-plus-array wire form is produced and consumed only at the storage
// edge, which avoids the positional-by-set-bit off-by-one class of bugs.
type MetadataField struct {
	// Position is the master flag list position (FlagOrderID, FlagStart, ...).
	Position uint

	// Value is the opaque 32-byte field value.
	Value common.Hash
}

// EncodeMetadata converts tagged metadata fields into the stored
// bitset-plus-array form. Fields may be given in any order; the data array is
// emitted in ascending flag position. Duplicate or out-of-width positions fail.
func EncodeMetadata(fields []MetadataField) (OrderFlags, []common.Hash, error) {
	sorted := make([]MetadataField, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	var flags OrderFlags
	data := make([]common.Hash, 0, len(sorted))
	for _, f := range sorted {
		if f.Position >= MaxFlagCount {
			return 0, nil, fmt.Errorf("%w: position %d", ErrFlagWidthExceeded, f.Position)
		}
		if flags.Has(f.Position) {
			return 0, nil, fmt.Errorf("%w: duplicate position %d", ErrInvalidFlags, f.Position)
		}
		flags |= 1 << f.Position
		data = append(data, f.Value)
	}
	return flags, data, nil
}

// DecodeMetadata converts the stored bitset-plus-array form back into tagged
// fields. Data words are consumed positionally in ascending set-bit order;
// surplus trailing words are ignored, a shortfall fails.
func DecodeMetadata(flags OrderFlags, data []common.Hash) ([]MetadataField, error) {
	if err := ValidateFlagsAndData(flags, data); err != nil {
		return nil, err
	}
	fields := make([]MetadataField, 0, flags.Count())
	i := 0
	for pos := uint(0); pos < MaxFlagCount; pos++ {
		if !flags.Has(pos) {
			continue
		}
		fields = append(fields, MetadataField{Position: pos, Value: data[i]})
		i++
	}
	return fields, nil
}

// ValidateFlagsAndData checks that the data array covers every set flag and
// that semantically constrained fields hold: a flagged order ID must be
// nonzero.
func ValidateFlagsAndData(flags OrderFlags, data []common.Hash) error {
	if flags.Count() > len(data) {
		return fmt.Errorf("%w: %d flags set but %d data words", ErrInvalidFlags, flags.Count(), len(data))
	}
	if flags.Has(FlagOrderID) {
		v, _ := metadataValue(flags, data, FlagOrderID)
		if v == (common.Hash{}) {
			return fmt.Errorf("%w: flagged order id is zero", ErrInvalidFlags)
		}
	}
	return nil
}

// AssembleOrderData zips a client's statically declared flag set with a flat
// array of values, one per declared flag in ascending position. Clients that
// always attach the same fields use this to build orders without per-call bit
// manipulation.
func AssembleOrderData(declared OrderFlags, values []common.Hash) (OrderFlags, []common.Hash, error) {
	if len(values) != declared.Count() {
		return 0, nil, fmt.Errorf("%w: %d values for %d declared flags", ErrInvalidFlags, len(values), declared.Count())
	}
	data := make([]common.Hash, len(values))
	copy(data, values)
	return declared, data, nil
}

// MetadataValue returns the data word for the flag at the given position and
// whether that flag is set on the order.
func (o PaymentOrder) MetadataValue(position uint) (common.Hash, bool) {
	return metadataValue(o.Flags, o.Data, position)
}

// ExternalOrderID returns the client-assigned queue ID carried in the order's
// metadata, or 0 if none is flagged.
func (o PaymentOrder) ExternalOrderID() uint64 {
	v, ok := o.MetadataValue(FlagOrderID)
	if !ok {
		return 0
	}
	return v.Big().Uint64()
}

func metadataValue(flags OrderFlags, data []common.Hash, position uint) (common.Hash, bool) {
	if !flags.Has(position) {
		return common.Hash{}, false
	}
	// Index among set bits below position.
	idx := OrderFlags(uint64(flags) & (1<<position - 1)).Count()
	if idx >= len(data) {
		return common.Hash{}, false
	}
	return data[idx], true
}
