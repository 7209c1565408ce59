package trader

import "fmt"

var (
	_ Agent = (*StrategicAgent)(nil)
	_ Agent = (*AggressiveAgent)(nil)
	_ Agent = (*NewbieAgent)(nil)
	_ Agent = (*ScalperAgent)(nil)
)

// New builds an agent by profile name.
func New(profile string, capital float64, seed int64) (Agent, error) {
	switch profile {
	case ProfileStrategic:
		return NewStrategic(capital, seed), nil
	case ProfileAggressive:
		return NewAggressive(capital, seed), nil
	case ProfileNewbie:
		return NewNewbie(capital, seed), nil
	case ProfileScalper:
		return NewScalper(capital, seed), nil
	}
	return nil, fmt.Errorf("unknown trader profile %q", profile)
}

// Profiles lists every known profile name.
func Profiles() []string {
	return []string{ProfileStrategic, ProfileAggressive, ProfileNewbie, ProfileScalper}
}
