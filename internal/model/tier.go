package model

// ThreatTier represents the severity of a classified acoustic detection.
// Tiers are ordered: a higher tier always indicates a more actionable threat.
//
// Design decision: We use iota-based constants rather than string constants
// for efficiency in comparisons and sorting. The String() method provides
// human-readable output when needed, and MarshalText keeps stored records
// and events readable.
type ThreatTier int

const (
	// TierNone indicates no threat. Natural forest sounds (birds, wind,
	// rain) and low-confidence classifications land here.
	TierNone ThreatTier = iota

	// TierLow indicates a weak signal that does not warrant action on its
	// own, such as a low-confidence vehicle classification.
	TierLow

	// TierMedium indicates a plausible threat worth later confirmation.
	// Detections at this tier or above are queued for authoritative
	// verification when the uplink is down.
	TierMedium

	// TierHigh indicates a probable active threat, typically a chainsaw
	// classification with moderate confidence.
	TierHigh

	// TierCritical indicates a near-certain active threat requiring an
	// immediate response, typically a high-confidence chainsaw detection.
	TierCritical
)

// String returns a human-readable representation of the threat tier.
func (t ThreatTier) String() string {
	switch t {
	case TierNone:
		return "NONE"
	case TierLow:
		return "LOW"
	case TierMedium:
		return "MEDIUM"
	case TierHigh:
		return "HIGH"
	case TierCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler so tiers serialize as
// their names in JSON events and database rows.
func (t ThreatTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names map
// to TierNone rather than failing, because stored rows may come from a
// newer backend vocabulary than this binary understands.
func (t *ThreatTier) UnmarshalText(text []byte) error {
	*t = ParseThreatTier(string(text))
	return nil
}

// ParseThreatTier converts a tier name to a ThreatTier.
// Unknown names return TierNone.
func ParseThreatTier(s string) ThreatTier {
	switch s {
	case "LOW":
		return TierLow
	case "MEDIUM":
		return TierMedium
	case "HIGH":
		return TierHigh
	case "CRITICAL":
		return TierCritical
	default:
		return TierNone
	}
}

// Classification labels form a small fixed vocabulary, open to the
// "unknown" fallback for backends that cannot decide.
const (
	// LabelChainsaw marks sustained periodic engine noise in the
	// mid-frequency bands, the primary illegal-logging indicator.
	LabelChainsaw = "chainsaw"

	// LabelVehicle marks low-frequency rumble, a possible precursor to
	// logging activity (crews arriving or leaving).
	LabelVehicle = "vehicle"

	// LabelNatural marks ambient forest sounds with no threat value.
	LabelNatural = "natural"

	// LabelUnknown is the fallback when a backend cannot classify.
	LabelUnknown = "unknown"
)

// DeriveTier maps a label and confidence (0-100) to a threat tier using
// the on-device mapping. Cloud backends may apply their own mapping, but
// every mapping must be monotonic: for a fixed label, a higher confidence
// never yields a lower tier.
func DeriveTier(label string, confidence int) ThreatTier {
	switch label {
	case LabelChainsaw:
		switch {
		case confidence >= 80:
			return TierCritical
		case confidence >= 60:
			return TierHigh
		default:
			return TierMedium
		}
	case LabelVehicle:
		if confidence >= 70 {
			return TierMedium
		}
		return TierLow
	default:
		return TierNone
	}
}
