package tenant

import "time"

// Config is the recognized per-tenant configuration map of spec §6. Every
// key has a default; omitting the config entirely yields a safe,
// conservative operating mode (Defaults()).
type Config struct {
	Budget          BudgetConfig           `json:"budget"`
	EmbeddingModels []EmbeddingModelConfig `json:"embedding_models"`
	LLMProfiles     map[string][]string    `json:"llm_profiles"`
	Layers          LayerConfig            `json:"layers"`
	Decay           DecayConfig            `json:"decay"`
	Reflection      ReflectionConfig       `json:"reflection"`
	Policy          PolicyConfig           `json:"policy"`
	Retrieval       RetrievalConfig        `json:"retrieval"`
	Quotas          QuotaConfig            `json:"quotas"`
}

// BudgetConfig holds spend caps and alert thresholds.
type BudgetConfig struct {
	DailyUSD        float64   `json:"daily_usd"`
	MonthlyUSD      float64   `json:"monthly_usd"`
	AlertThresholds []float64 `json:"alert_thresholds"`
}

// EmbeddingSpace names a model-space bucket; vectors from different spaces
// are never commensurable and fusion never ranks across them.
type EmbeddingSpace string

const (
	SpaceCheap EmbeddingSpace = "cheap"
	SpaceHeavy EmbeddingSpace = "heavy"
)

// EmbeddingModelConfig describes one of the tenant's active embedding models.
type EmbeddingModelConfig struct {
	Name   string         `json:"name"`
	Space  EmbeddingSpace `json:"space"`
	Dim    int            `json:"dim"`
	Active bool           `json:"active"`
}

// LayerConfig holds per-layer retention lifetimes and admission thresholds.
type LayerConfig struct {
	SensoryRetention   time.Duration `json:"sensory_retention"`
	WorkingRetention   time.Duration `json:"working_retention"`
	LongtermRetention  time.Duration `json:"longterm_retention"`
	ReflectiveRetention time.Duration `json:"reflective_retention"`

	// AdmissionThresholds: sensory->working (ThetaS), working->longterm (ThetaW),
	// longterm->reflective (ThetaL), per spec §4.7.
	ThetaS float64 `json:"theta_s"`
	ThetaW float64 `json:"theta_w"`
	ThetaL float64 `json:"theta_l"`

	// WorkingMinUsage / WorkingMinAge gate the working->longterm transition.
	WorkingMinUsage int           `json:"working_min_usage"`
	WorkingMinAge   time.Duration `json:"working_min_age"`

	// ClusterMinSize / ClusterMinUsage gate the longterm->reflective transition.
	ClusterMinSize  int     `json:"cluster_min_size"`
	ClusterMinUsage float64 `json:"cluster_min_usage"`

	// MandatoryTags force sensory->working admission regardless of importance.
	MandatoryTags []string `json:"mandatory_tags"`
}

// DecayConfig holds decay dynamics.
type DecayConfig struct {
	HalfLifeDays     float64 `json:"half_life_days"`
	ImportanceFloor  float64 `json:"importance_floor"`
	MinAgeForPrune   time.Duration `json:"min_age_for_prune"`
	EdgeConfidenceFloor float64 `json:"edge_confidence_floor"`
}

// ReflectionConfig configures the Actor-Evaluator-Reflector loop.
type ReflectionConfig struct {
	EnabledModes       []string `json:"enabled_modes"`
	MaxIterations      int      `json:"max_iterations"`
	AcceptanceThreshold float64 `json:"acceptance_threshold"`
}

// PolicyConfig configures the cost & policy guard's classification rules.
type PolicyConfig struct {
	InfoClassRules       []string `json:"info_class_rules"`
	RedactionPatterns    []string `json:"redaction_patterns"`
	LayerContainmentStrict bool   `json:"layer_containment_strict"`
}

// RetrievalConfig configures the hybrid retrieval engine's tunables.
type RetrievalConfig struct {
	RRFK             int             `json:"rrf_k"`
	SafeExitThreshold int            `json:"safe_exit_threshold"`
	DiversityTau     float64         `json:"diversity_tau"`
	RerankDeadlineMS int             `json:"rerank_deadline_ms"`
	SubscoreWeights  SubscoreWeights `json:"subscore_weights"`

	TopK1 int `json:"top_k1"` // dense candidate count
	TopK2 int `json:"top_k2"` // lexical candidate count
	TopK3 int `json:"top_k3"` // graph candidate count
	TopN  int `json:"top_n"`  // reranker window
}

// SubscoreWeights weights the final stage-4 re-rank. Named generically per
// spec §9's open-question resolution; the particular values are tenant
// configuration, not an algorithmic constant.
type SubscoreWeights struct {
	Relevance  float64 `json:"w_r"`
	Importance float64 `json:"w_i"`
	Recency    float64 `json:"w_t"`
	Centrality float64 `json:"w_g"`
	Diversity  float64 `json:"w_d"`
	Density    float64 `json:"w_s"`
}

// QuotaConfig bounds per-tenant concurrency.
type QuotaConfig struct {
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
	MaxInFlightLLM        int `json:"max_in_flight_llm"`
}

// Defaults returns the safe, conservative operating mode used when a
// tenant's configuration map omits a key (or is entirely absent).
func Defaults() Config {
	return Config{
		Budget: BudgetConfig{
			DailyUSD:        5.0,
			MonthlyUSD:      100.0,
			AlertThresholds: []float64{0.5, 0.8, 0.95},
		},
		EmbeddingModels: []EmbeddingModelConfig{
			{Name: "text-embedding-cheap", Space: SpaceCheap, Dim: 384, Active: true},
		},
		LLMProfiles: map[string][]string{
			"cheap":  {"provider-a/small"},
			"rerank": {"provider-a/rerank"},
		},
		Layers: LayerConfig{
			SensoryRetention:    time.Hour,
			WorkingRetention:    24 * time.Hour,
			LongtermRetention:   365 * 24 * time.Hour,
			ReflectiveRetention: 0, // reflective records are never auto-expired
			ThetaS:              0.5,
			ThetaW:               0.6,
			ThetaL:               0.7,
			WorkingMinUsage:      2,
			WorkingMinAge:        10 * time.Minute,
			ClusterMinSize:       3,
			ClusterMinUsage:      5,
		},
		Decay: DecayConfig{
			HalfLifeDays:        14,
			ImportanceFloor:     0.05,
			MinAgeForPrune:      7 * 24 * time.Hour,
			EdgeConfidenceFloor: 0.1,
		},
		Reflection: ReflectionConfig{
			EnabledModes:        []string{"observation", "causation", "counterfactual", "strategy"},
			MaxIterations:       2,
			AcceptanceThreshold: 0.7,
		},
		Policy: PolicyConfig{
			InfoClassRules:         []string{"ssn", "api_key", "email", "medical_id"},
			LayerContainmentStrict: true,
		},
		Retrieval: RetrievalConfig{
			RRFK:              60,
			SafeExitThreshold: 5,
			DiversityTau:      0.92,
			RerankDeadlineMS:  10,
			SubscoreWeights: SubscoreWeights{
				Relevance:  0.4,
				Importance: 0.15,
				Recency:    0.15,
				Centrality: 0.1,
				Diversity:  0.1,
				Density:    0.1,
			},
			TopK1: 50,
			TopK2: 50,
			TopK3: 20,
			TopN:  30,
		},
		Quotas: QuotaConfig{
			MaxConcurrentRequests: 32,
			MaxInFlightLLM:        8,
		},
	}
}

// ActiveModels returns the tenant's active embedding models in the given space.
func (c Config) ActiveModels(space EmbeddingSpace) []EmbeddingModelConfig {
	var out []EmbeddingModelConfig
	for _, m := range c.EmbeddingModels {
		if m.Active && m.Space == space {
			out = append(out, m)
		}
	}
	return out
}

// Model looks up an embedding model config by name.
func (c Config) Model(name string) (EmbeddingModelConfig, bool) {
	for _, m := range c.EmbeddingModels {
		if m.Name == name {
			return m, true
		}
	}
	return EmbeddingModelConfig{}, false
}
