package domain

// NeutralWeight is the factor applied when the reputation service cannot be
// reached: the vote still counts, just unweighted.
const NeutralWeight = 1.0

// ReputationWeights carries the two bounded factors a participant's stance is
// multiplied by. Values are produced by the reputation resolver and are
// already clamped to the topic's [WeightFloor, WeightCap] bounds.
type ReputationWeights struct {
	// Reputation is the per-domain expertise weight.
	Reputation float64 `json:"reputation"`

	// Ethical is the multiplier rewarding sustained constructive behavior.
	Ethical float64 `json:"ethical"`

	// Expertise is the raw upstream expertise score, retained unclamped for
	// expert-cohort percentile selection.
	Expertise float64 `json:"expertise"`

	// Degraded reports that the upstream lookup failed and neutral defaults
	// were substituted. Surfaced as an audit flag, never as an error.
	Degraded bool `json:"degraded,omitempty"`
}

// Clamp bounds v to the closed interval [floor, cap].
func Clamp(v, floor, cap float64) float64 {
	if v < floor {
		return floor
	}
	if v > cap {
		return cap
	}
	return v
}

// WeightedVote is the derived combination of a raw stance with its resolved
// weights. It is never stored as a primary entity; it exists only inside a
// recomputation and inside audit snapshots.
type WeightedVote struct {
	UserID  string `json:"user_id"`
	TopicID string `json:"topic_id"`

	// RawStance is the participant's unweighted integer value.
	RawStance int `json:"raw_stance"`

	// Ranking is the participant's ordered ballot for ranking modalities.
	Ranking []string `json:"ranking,omitempty"`

	// Weights are the clamped factors that produced WeightedValue.
	Weights ReputationWeights `json:"weights"`

	// WeightedValue is RawStance × Weights.Reputation × Weights.Ethical.
	WeightedValue float64 `json:"weighted_value"`
}

// Weight returns the combined multiplier applied to the raw stance.
func (v WeightedVote) Weight() float64 {
	return v.Weights.Reputation * v.Weights.Ethical
}

// Compose combines a stance with resolved weights into a WeightedVote.
// It is a pure function: deterministic given its inputs, with no side
// effects. This determinism is what makes audit replay byte-exact.
// The weights must already be clamped by the resolver; Compose clamps again
// against the supplied bounds so a misbehaving resolver cannot produce
// unbounded influence.
func Compose(stance Stance, weights ReputationWeights, floor, cap float64) WeightedVote {
	rep := Clamp(weights.Reputation, floor, cap)
	eth := Clamp(weights.Ethical, floor, cap)
	return WeightedVote{
		UserID:    stance.UserID,
		TopicID:   stance.TopicID,
		RawStance: stance.Value,
		Ranking:   stance.Ranking,
		Weights: ReputationWeights{
			Reputation: rep,
			Ethical:    eth,
			Expertise:  weights.Expertise,
			Degraded:   weights.Degraded,
		},
		WeightedValue: float64(stance.Value) * rep * eth,
	}
}
