package profile

// Dimension names one of the fixed groups of profile fields.
type Dimension string

const (
	IdentityLanguage     Dimension = "identity_language"
	HealthSafety         Dimension = "health_safety"
	CognitiveInteraction Dimension = "cognitive_interaction"
	EmotionalSupport     Dimension = "emotional_support"
	LifestyleSocial      Dimension = "lifestyle_social"
	ValuesPreferences    Dimension = "values_preferences"
)

// FieldSpec declares one schema field.
type FieldSpec struct {
	Name string
	Kind Kind
	// Options lists the allowed values of an enum field. For text and set
	// fields it is the suggested domain used when generating plausible
	// alternatives; values outside it are still valid.
	Options []string
	// Min and Max bound number fields.
	Min, Max float64
	// Phrase is how a person refers to the field in speech ("my <phrase> is").
	Phrase      string
	Description string
}

// DimensionSpec declares a dimension and its fields in order.
type DimensionSpec struct {
	Name        Dimension
	Description string
	Fields      []FieldSpec
}

// Key addresses one (dimension, field) pair.
type Key struct {
	Dimension Dimension
	Field     string
}

func (k Key) String() string { return string(k.Dimension) + "." + k.Field }

var levels = []string{"low", "medium", "high"}

var schema = []DimensionSpec{
	{
		Name:        IdentityLanguage,
		Description: "who the person is and how they like things explained",
		Fields: []FieldSpec{
			{Name: "age", Kind: KindNumber, Min: 0, Max: 130, Phrase: "age",
				Description: "age in years"},
			{Name: "gender", Kind: KindEnum, Options: []string{"male", "female"}, Phrase: "gender"},
			{Name: "region", Kind: KindText, Phrase: "hometown",
				Options:     []string{"Beijing", "Shanghai", "Guangzhou", "Chengdu", "Hangzhou", "Wuhan", "Xi'an", "Shijiazhuang", "Harbin", "Nanjing"},
				Description: "city or region the person lives in"},
			{Name: "education_level", Kind: KindEnum, Phrase: "education",
				Options: []string{"none", "primary", "middle_school", "high_school", "college", "postgraduate"}},
			{Name: "explanation_depth_preference", Kind: KindEnum, Phrase: "preferred level of detail",
				Options:     []string{"brief", "moderate", "detailed"},
				Description: "how much detail the person wants in explanations"},
		},
	},
	{
		Name:        HealthSafety,
		Description: "health conditions and safety-relevant traits",
		Fields: []FieldSpec{
			{Name: "chronic_conditions", Kind: KindSet, Phrase: "health conditions",
				Options: []string{"hypertension", "diabetes", "arthritis", "heart_disease", "osteoporosis", "copd", "cataracts", "hearing_loss"}},
			{Name: "mobility_level", Kind: KindEnum, Phrase: "mobility",
				Options: []string{"independent", "limited", "assisted", "bedridden"}},
			{Name: "daily_energy_level", Kind: KindEnum, Options: levels, Phrase: "daily energy"},
			{Name: "risk_sensitivity_level", Kind: KindEnum, Options: levels, Phrase: "sensitivity to risk",
				Description: "how cautious responses about safety must be"},
		},
	},
	{
		Name:        CognitiveInteraction,
		Description: "how the person takes in and acts on information",
		Fields: []FieldSpec{
			{Name: "attention_span", Kind: KindEnum, Options: []string{"short", "normal", "long"}, Phrase: "attention span"},
			{Name: "processing_speed", Kind: KindEnum, Options: []string{"slow", "normal", "fast"}, Phrase: "processing speed"},
			{Name: "digital_literacy", Kind: KindEnum, Phrase: "comfort with technology",
				Options: []string{"none", "basic", "intermediate", "advanced"}},
			{Name: "instruction_following_ability", Kind: KindEnum, Options: levels, Phrase: "ability to follow instructions"},
		},
	},
	{
		Name:        EmotionalSupport,
		Description: "mood and emotional needs",
		Fields: []FieldSpec{
			{Name: "baseline_mood", Kind: KindEnum, Options: []string{"negative", "neutral", "positive"}, Phrase: "usual mood"},
			{Name: "loneliness_level", Kind: KindEnum, Options: levels, Phrase: "loneliness"},
			{Name: "emotional_support_need", Kind: KindEnum, Options: levels, Phrase: "need for emotional support"},
			{Name: "preferred_conversation_mode", Kind: KindEnum, Phrase: "favourite way to talk",
				Options: []string{"listening", "chatting", "advice", "storytelling"}},
		},
	},
	{
		Name:        LifestyleSocial,
		Description: "living arrangements, social ties and hobbies",
		Fields: []FieldSpec{
			{Name: "living_situation", Kind: KindEnum, Phrase: "living situation",
				Options: []string{"alone", "with_spouse", "with_children", "care_facility"}},
			{Name: "social_support_level", Kind: KindEnum, Options: levels, Phrase: "social support"},
			{Name: "independence_level", Kind: KindEnum, Options: levels, Phrase: "independence"},
			{Name: "core_interests", Kind: KindSet, Phrase: "hobbies",
				Options: []string{"chess", "mahjong", "square_dancing", "gardening", "calligraphy", "tai_chi", "opera", "walking", "cooking", "reading"}},
		},
	},
	{
		Name:        ValuesPreferences,
		Description: "what the person cares about and wants to avoid",
		Fields: []FieldSpec{
			{Name: "topic_preferences", Kind: KindSet, Phrase: "favourite topics",
				Options: []string{"family", "health", "history", "news", "cooking", "travel", "grandchildren", "sports"}},
			{Name: "taboo_topics", Kind: KindSet, Phrase: "topics to avoid",
				Options: []string{"death", "money", "politics", "illness", "divorce"}},
			{Name: "value_orientation", Kind: KindEnum, Phrase: "core value",
				Options: []string{"family", "health", "tradition", "independence", "community"}},
			{Name: "motivational_factors", Kind: KindSet, Phrase: "motivations",
				Options: []string{"family", "health", "recognition", "learning", "helping_others", "staying_active"}},
		},
	},
}

var (
	fieldIndex = map[Key]FieldSpec{}
	dimIndex   = map[Dimension]int{}
	keyOrder   []Key
)

func init() {
	for i, d := range schema {
		dimIndex[d.Name] = i
		for _, f := range d.Fields {
			k := Key{Dimension: d.Name, Field: f.Name}
			fieldIndex[k] = f
			keyOrder = append(keyOrder, k)
		}
	}
}

// Schema returns the dimension declarations in schema order.
func Schema() []DimensionSpec {
	out := make([]DimensionSpec, len(schema))
	copy(out, schema)
	return out
}

// Dimensions returns the dimension names in schema order.
func Dimensions() []Dimension {
	out := make([]Dimension, len(schema))
	for i, d := range schema {
		out[i] = d.Name
	}
	return out
}

// Keys returns every schema pair in schema order.
func Keys() []Key {
	out := make([]Key, len(keyOrder))
	copy(out, keyOrder)
	return out
}

// KeysOf returns the pairs of one dimension in schema order.
func KeysOf(d Dimension) []Key {
	i, ok := dimIndex[d]
	if !ok {
		return nil
	}
	out := make([]Key, 0, len(schema[i].Fields))
	for _, f := range schema[i].Fields {
		out = append(out, Key{Dimension: d, Field: f.Name})
	}
	return out
}

// KnownDimension reports whether d is part of the schema.
func KnownDimension(d Dimension) bool {
	_, ok := dimIndex[d]
	return ok
}

// Lookup returns the spec of a schema pair.
func Lookup(k Key) (FieldSpec, bool) {
	f, ok := fieldIndex[k]
	return f, ok
}

// FieldCount is the number of schema pairs.
func FieldCount() int { return len(keyOrder) }
