package resonance

import "resonance/internal/emotion"

// DefaultRules returns the built-in rule table. Combinations not listed
// fall through to Fallback.
func DefaultRules() []Rule {
	return []Rule{
		// Blended states
		{
			When:            Predicate{Primary: emotion.Love, Secondary: emotion.Joy, Bands: []Band{VeryLight, Light, Medium}},
			Mode:            Blessing,
			Form:            FormRadiant,
			Characteristics: []string{"warm", "luminous", "embracing"},
		},
		{
			When:            Predicate{Primary: emotion.Sadness, Secondary: emotion.Love, Bands: []Band{VeryLight, Light}},
			Mode:            Blessing,
			Form:            FormOrganic,
			Characteristics: []string{"tender", "bittersweet"},
		},
		{
			When:            Predicate{Primary: emotion.Anger, Secondary: emotion.Fear, Bands: []Band{Heavy, VeryHeavy}},
			Mode:            Destruction,
			Form:            FormFractured,
			Characteristics: []string{"chaotic", "splintered", "volatile"},
		},

		// Love
		{
			When:            Predicate{Primary: emotion.Love, Bands: []Band{VeryLight, Light}},
			Mode:            Creation,
			Form:            FormGrowing,
			Characteristics: []string{"gentle", "nurturing", "soft"},
		},
		{
			When:            Predicate{Primary: emotion.Love, Bands: []Band{Medium}},
			Mode:            Blessing,
			Form:            FormRadiant,
			Characteristics: []string{"warm", "embracing"},
		},

		// Joy
		{
			When:            Predicate{Primary: emotion.Joy, Bands: []Band{VeryLight, Light, Medium}},
			Mode:            Creation,
			Form:            FormFlowing,
			Characteristics: []string{"bright", "playful"},
		},
		{
			When:            Predicate{Primary: emotion.Joy, Bands: []Band{Heavy, VeryHeavy}},
			Mode:            Blessing,
			Form:            FormRadiant,
			Characteristics: []string{"exuberant", "expansive"},
		},

		// Peace
		{
			When:            Predicate{Primary: emotion.Peace, Bands: []Band{VeryLight, Light}},
			Mode:            Blessing,
			Form:            FormFlowing,
			Characteristics: []string{"calm", "still"},
		},
		{
			When:            Predicate{Primary: emotion.Peace, Bands: []Band{Medium}},
			Mode:            Alteration,
			Form:            FormOrganic,
			Characteristics: []string{"grounded"},
		},

		// Excitement
		{
			When:            Predicate{Primary: emotion.Excitement, Bands: []Band{Medium, Heavy}},
			Mode:            Creation,
			Form:            FormSpiral,
			Characteristics: []string{"energetic", "rising"},
		},
		{
			When:            Predicate{Primary: emotion.Excitement, Bands: []Band{VeryHeavy}},
			Mode:            Alteration,
			Form:            FormSpiral,
			Characteristics: []string{"frenetic"},
		},

		// Sadness
		{
			When:            Predicate{Primary: emotion.Sadness, Bands: []Band{VeryLight, Light}},
			Mode:            Alteration,
			Form:            FormFlowing,
			Characteristics: []string{"melancholic", "soft"},
		},
		{
			When:            Predicate{Primary: emotion.Sadness, Bands: []Band{Medium, Heavy}},
			Mode:            Alteration,
			Form:            FormDissolving,
			Characteristics: []string{"heavy", "fading"},
		},

		// Anger
		{
			When:            Predicate{Primary: emotion.Anger, Bands: []Band{Heavy, VeryHeavy}},
			Mode:            Destruction,
			Form:            FormGeometric,
			Characteristics: []string{"sharp", "angular", "intense"},
		},
		{
			When:            Predicate{Primary: emotion.Anger, Bands: []Band{Medium}},
			Mode:            Alteration,
			Form:            FormFractured,
			Characteristics: []string{"tense"},
		},

		// Fear
		{
			When:            Predicate{Primary: emotion.Fear, Bands: []Band{VeryLight, Light, Medium}},
			Mode:            Alteration,
			Form:            FormCrystalline,
			Characteristics: []string{"trembling", "guarded"},
		},

		// Anxiety
		{
			When:            Predicate{Primary: emotion.Anxiety, Bands: []Band{Light, Medium}},
			Mode:            Alteration,
			Form:            FormFractured,
			Characteristics: []string{"restless", "jittery"},
		},
	}
}
