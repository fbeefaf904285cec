package consensus

// Tuning holds the fusion constants. The reference values are hand-tuned;
// they live here as configuration rather than hard-coded literals so they
// can be adjusted without touching the engine.
type Tuning struct {
	// AgreementCap is the maximum bonus added when all frames agree.
	AgreementCap float64 `yaml:"agreement_cap"`
	// AgreementMinMean is the weighted-mean floor below which no bonus
	// applies.
	AgreementMinMean float64 `yaml:"agreement_min_mean"`
	// AgreementVarScale is the probability variance at which the bonus
	// decays to zero.
	AgreementVarScale float64 `yaml:"agreement_var_scale"`

	// VetoPenalty is subtracted when the longest frame disagrees.
	VetoPenalty float64 `yaml:"veto_penalty"`
	// VetoFrameMax: the longest frame vetoes when its own probability is
	// below this while the weighted mean is at or above VetoMeanMin.
	VetoFrameMax float64 `yaml:"veto_frame_max"`
	VetoMeanMin  float64 `yaml:"veto_mean_min"`

	// BuyVoteShare and BuyProbMin form the conjunctive entry gate: both the
	// per-frame vote share and the final probability must clear their bars.
	BuyVoteShare float64 `yaml:"buy_vote_share"`
	BuyProbMin   float64 `yaml:"buy_prob_min"`
}

// DefaultTuning returns the reference constants.
func DefaultTuning() Tuning {
	return Tuning{
		AgreementCap:      0.25,
		AgreementMinMean:  0.55,
		AgreementVarScale: 0.02,
		VetoPenalty:       0.08,
		VetoFrameMax:      0.52,
		VetoMeanMin:       0.60,
		BuyVoteShare:      0.60,
		BuyProbMin:        0.58,
	}
}
