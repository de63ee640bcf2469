// Package scenariocfg holds the declarative epidemic-model configuration: the
// document described in spec.md §6 ("Configuration (consumed)") — compartment
// axes, transitions, modifiers, seeding, outcomes, and inference statistics.
// It is data only; pkg/compartment, pkg/transition, pkg/modifierstack,
// pkg/outcomes and pkg/likelihood compile it into the runnable representation.
package scenariocfg

import "time"

// Scenario is a complete run configuration (§6).
type Scenario struct {
	Name      string    `yaml:"name"`
	StartDate time.Time `yaml:"start_date"`
	EndDate   time.Time `yaml:"end_date"`
	NSlots    int       `yaml:"nslots"`

	SubpopSetup SubpopSetup `yaml:"subpop_setup"`
	Compartments []AxisSpec `yaml:"compartments"`

	Seir             SeirSpec         `yaml:"seir"`
	SeirModifiers    ModifierStackSpec `yaml:"seir_modifiers"`
	InitialConditions InitialConditionsSpec `yaml:"initial_conditions"`
	Seeding          SeedingSpec      `yaml:"seeding"`

	Outcomes         OutcomesSpec      `yaml:"outcomes"`
	OutcomeModifiers ModifierStackSpec `yaml:"outcome_modifiers"`

	Inference InferenceSpec `yaml:"inference"`
}

// SubpopSetup names the tabular inputs describing the metapopulation (§6).
type SubpopSetup struct {
	Geodata  string `yaml:"geodata"`
	Mobility string `yaml:"mobility"`
}

// AxisSpec is one stratum axis: a name and its ordered label list. The
// Cartesian product of all axes' labels, in declared axis order, forms the
// compartment space (§4.A).
type AxisSpec struct {
	Name   string   `yaml:"name"`
	Labels []string `yaml:"labels"`
}

// SeirSpec configures the integrator and its parameter/transition inputs.
type SeirSpec struct {
	Integration IntegrationSpec           `yaml:"integration"`
	Parameters  map[string]ParameterSpec  `yaml:"parameters"`
	Transitions []TransitionSpec          `yaml:"transitions"`
}

// IntegrationSpec selects the numerical method and step size (§4.F).
type IntegrationSpec struct {
	Method     string  `yaml:"method"` // "euler" | "rk4"
	Dt         float64 `yaml:"dt"`
	Stochastic bool    `yaml:"stochastic"`
}

// ParameterSpec is a parameter declaration (§4.B): exactly one of Value,
// Distribution, File, or Expression should be set.
type ParameterSpec struct {
	Value        *float64         `yaml:"value,omitempty"`
	Distribution *DistributionSpec `yaml:"distribution,omitempty"`
	File         string           `yaml:"file,omitempty"`
	Expression   string           `yaml:"expression,omitempty"`

	// StackedModifierMethod overrides the default stacking rule ("product"
	// for rate-like, "sum" for flow-like) for modifiers targeting this
	// parameter (§4.C).
	StackedModifierMethod string `yaml:"stacked_modifier_method,omitempty"`

	// Perturbation is the proposal distribution used when this parameter is
	// directly perturbable by the inference controller (§4.I step 1).
	Perturbation *DistributionSpec `yaml:"perturbation,omitempty"`
}

// DistributionKind enumerates the recognized sampling distributions (§4.B).
type DistributionKind string

const (
	DistFixed     DistributionKind = "fixed"
	DistUniform   DistributionKind = "uniform"
	DistTruncNorm DistributionKind = "truncnorm"
	DistPoisson   DistributionKind = "poisson"
	DistLognormal DistributionKind = "lognormal"
	DistBinomial  DistributionKind = "binomial"
)

// DistributionSpec parameterizes one recognized distribution kind.
type DistributionSpec struct {
	Kind   DistributionKind   `yaml:"kind"`
	Params map[string]float64 `yaml:"params"`
}

// CompartmentPattern selects a subset of compartments: axis name -> allowed
// label set. An axis omitted from the map matches every label on that axis
// (§4.A resolution rule).
type CompartmentPattern map[string][]string

// ProportionalTerm is one factor in a transition's proportional-to product
// (§4.E). SourceOnly is the `"source"` shorthand for "proportional to the
// source compartment alone" (a per-capita rate).
type ProportionalTerm struct {
	SourceOnly bool               `yaml:"source_only,omitempty"`
	Pattern    CompartmentPattern `yaml:"pattern,omitempty"`
	Exponent   string             `yaml:"exponent"` // parameter name (may be a constant "1")
}

// TransitionSpec is one declarative transition (§4.E), possibly denoting many
// concrete transitions once Source/Destination patterns are expanded.
type TransitionSpec struct {
	Source         CompartmentPattern `yaml:"source"`
	Destination    CompartmentPattern `yaml:"destination"`
	Rate           []string           `yaml:"rate"` // ordered parameter names whose product forms the per-capita rate
	ProportionalTo []ProportionalTerm `yaml:"proportional_to"`
}

// ModifierStackSpec is a named collection of modifiers plus which ones are
// active (§4.C); `scenarios` selects a subset by name for a given run.
type ModifierStackSpec struct {
	Scenarios []string                `yaml:"scenarios,omitempty"`
	Modifiers map[string]ModifierSpec `yaml:"modifiers"`
}

// ModifierMethod enumerates the three modifier composition methods (§3).
type ModifierMethod string

const (
	MethodSinglePeriod ModifierMethod = "SinglePeriod"
	MethodMultiPeriod  ModifierMethod = "MultiPeriod"
	MethodStacked      ModifierMethod = "Stacked"
)

// StackingRule enumerates how a Stacked modifier composes its children.
type StackingRule string

const (
	StackProduct          StackingRule = "product"
	StackSum              StackingRule = "sum"
	StackReductionProduct StackingRule = "reduction_product"
)

// Period is one [Start, End] activation window, inclusive.
type Period struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// ModifierSpec is one modifier record (§3).
type ModifierSpec struct {
	Parameter string `yaml:"parameter"`
	Method    ModifierMethod `yaml:"method"`

	// Periods: one entry for SinglePeriod, the full list for MultiPeriod.
	Periods []Period `yaml:"periods,omitempty"`

	Subpops      []string   `yaml:"subpops,omitempty"`
	SubpopGroups [][]string `yaml:"subpop_groups,omitempty"`

	Value        DistributionSpec  `yaml:"value"`
	Perturbation *DistributionSpec `yaml:"perturbation,omitempty"`

	// Stacked-only fields.
	StackingRule StackingRule `yaml:"stacking_rule,omitempty"`
	Children     []string     `yaml:"children,omitempty"`
}

// InitialConditionsSpec selects how the initial state tensor is produced (§4.D).
type InitialConditionsSpec struct {
	Method string `yaml:"method"` // Default | SetInitialConditions | FromFile | plugin name
	File   string `yaml:"file,omitempty"`
	AllowMissingCompartments bool `yaml:"allow_missing_compartments,omitempty"`
	AllowMissingSubpops      bool `yaml:"allow_missing_subpops,omitempty"`
}

// SeedingSpec selects how the exogenous seeding schedule is produced (§4.D).
type SeedingSpec struct {
	Method string  `yaml:"method"` // NoSeeding | PoissonDraw | FolderDraw | FromFile | plugin name
	File   string  `yaml:"file,omitempty"`
	Lambda float64 `yaml:"lambda,omitempty"` // PoissonDraw per-date rate
}

// OutcomesSpec configures the outcome DAG (§4.G).
type OutcomesSpec struct {
	Method   string                 `yaml:"method"`
	Outcomes map[string]OutcomeSpec `yaml:"outcomes"`
}

// OutcomeOperator enumerates the outcome-node operator kinds (§4.G).
type OutcomeOperator string

const (
	OpSource      OutcomeOperator = "source" // leaf: reads incidence/prevalence
	OpProbability OutcomeOperator = "probability"
	OpDelay       OutcomeOperator = "delay"
	OpDuration    OutcomeOperator = "duration"
	OpSum         OutcomeOperator = "sum"
)

// OutcomeSpec is one node in the outcome DAG.
type OutcomeSpec struct {
	Operator OutcomeOperator `yaml:"operator"`

	// Leaf (OpSource) fields.
	SourceCompartment CompartmentPattern `yaml:"source_compartment,omitempty"`
	SourceKind        string             `yaml:"source_kind,omitempty"` // "incidence" | "prevalence"

	// Non-leaf: the single upstream node (probability/delay/duration).
	Source string `yaml:"source,omitempty"`

	// OpSum: multiple upstream nodes to add.
	Sum []string `yaml:"sum,omitempty"`

	Probability *DistributionSpec `yaml:"probability,omitempty"`
	Delay       *DelaySpec        `yaml:"delay,omitempty"`
	Duration    *DurationSpec     `yaml:"duration,omitempty"`
}

// DelaySpec is a fixed or distributional lag applied by convolution.
type DelaySpec struct {
	FixedDays    *int              `yaml:"fixed_days,omitempty"`
	Distribution *DistributionSpec `yaml:"distribution,omitempty"`
}

// DurationSpec derives a "currently in state" window from inflow minus
// delayed outflow.
type DurationSpec struct {
	Delay DelaySpec `yaml:"delay"`
}

// InferenceSpec configures the calibration run (§4.H, §4.I).
type InferenceSpec struct {
	IterationsPerSlot int                      `yaml:"iterations_per_slot"`
	DoInference       bool                     `yaml:"do_inference"`
	GTDataPath        string                   `yaml:"gt_data_path"`
	Statistics        map[string]StatisticSpec `yaml:"statistics"`
}

// ResampleSpec defines the time-bucketing rule for a statistic (§3).
type ResampleSpec struct {
	Frequency  string `yaml:"frequency"` // e.g. "W", "D", "M"
	Aggregator string `yaml:"aggregator"` // "sum" | "mean"
	SkipNA     bool   `yaml:"skipna"`
}

// LikelihoodDistribution enumerates the recognized likelihood kinds (§3).
type LikelihoodDistribution string

const (
	LikPois     LikelihoodDistribution = "pois"
	LikNorm     LikelihoodDistribution = "norm"
	LikNormCov  LikelihoodDistribution = "norm_cov"
	LikSqrtNorm LikelihoodDistribution = "sqrtnorm"
	LikLognorm  LikelihoodDistribution = "lognorm"
)

// LikelihoodSpec configures the per-statistic log-likelihood.
type LikelihoodSpec struct {
	Distribution LikelihoodDistribution `yaml:"distribution"`
	Params       map[string]float64     `yaml:"params"`
}

// RegularizerSpec adds a penalty term to a statistic's log-likelihood (§4.H).
type RegularizerSpec struct {
	Kind   string             `yaml:"kind"` // "forecast" | "allsubpop"
	Params map[string]float64 `yaml:"params"`
}

// StatisticSpec is one named sim-vs-data comparison (§3, §4.H).
type StatisticSpec struct {
	SimVar       string            `yaml:"sim_var"`
	DataVar      string            `yaml:"data_var"`
	Resample     ResampleSpec      `yaml:"resample"`
	ZeroToOne    bool              `yaml:"zero_to_one"`
	Likelihood   LikelihoodSpec    `yaml:"likelihood"`
	Regularizers []RegularizerSpec `yaml:"regularizers,omitempty"`
}
