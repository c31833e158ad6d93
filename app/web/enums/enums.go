// Package enums provides the known choices of the intake form.
//
// The wire values are lower-case and hyphenated ("fat-loss", "muscle-gain") as posted by
// the apply page. Each type carries a human label used by notifications and the stats API.
//
// Usage:
//
//	goal, err := enums.ParsePrimaryGoal("fat-loss")
//	if err != nil {
//	    // unknown value, keep the raw string
//	}
//	fmt.Println(goal.Label()) // "Fat Loss"
//
// Parsing is used for presentation only. Submissions with values outside of these lists
// are stored as-is.
package enums

import (
	"fmt"
	"strings"
)

// FitnessLevel is the self-reported training level of an applicant
type FitnessLevel struct {
	name  string
	label string
}

// PrimaryGoal is the main goal an applicant wants to reach with coaching
type PrimaryGoal struct {
	name  string
	label string
}

// fitness levels
var (
	FitnessLevelBeginner     = FitnessLevel{name: "beginner", label: "Beginner"}
	FitnessLevelIntermediate = FitnessLevel{name: "intermediate", label: "Intermediate"}
	FitnessLevelAdvanced     = FitnessLevel{name: "advanced", label: "Advanced"}
)

// primary goals
var (
	PrimaryGoalFatLoss       = PrimaryGoal{name: "fat-loss", label: "Fat Loss"}
	PrimaryGoalMuscleGain    = PrimaryGoal{name: "muscle-gain", label: "Muscle Gain"}
	PrimaryGoalRecomposition = PrimaryGoal{name: "recomposition", label: "Recomposition"}
	PrimaryGoalStrength      = PrimaryGoal{name: "strength", label: "Strength"}
	PrimaryGoalGeneral       = PrimaryGoal{name: "general", label: "General Health"}
)

// FitnessLevelValues lists all known fitness levels in form order
var FitnessLevelValues = []FitnessLevel{FitnessLevelBeginner, FitnessLevelIntermediate, FitnessLevelAdvanced}

// PrimaryGoalValues lists all known goals in form order
var PrimaryGoalValues = []PrimaryGoal{PrimaryGoalFatLoss, PrimaryGoalMuscleGain, PrimaryGoalRecomposition,
	PrimaryGoalStrength, PrimaryGoalGeneral}

// ParseFitnessLevel converts string to FitnessLevel, case-insensitive
func ParseFitnessLevel(v string) (FitnessLevel, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, e := range FitnessLevelValues {
		if e.name == v {
			return e, nil
		}
	}
	return FitnessLevel{}, fmt.Errorf("invalid fitness level: %q", v)
}

// ParsePrimaryGoal converts string to PrimaryGoal, case-insensitive
func ParsePrimaryGoal(v string) (PrimaryGoal, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, e := range PrimaryGoalValues {
		if e.name == v {
			return e, nil
		}
	}
	return PrimaryGoal{}, fmt.Errorf("invalid primary goal: %q", v)
}

// FitnessLevelNames returns wire values of all known fitness levels, used for the submission schema
func FitnessLevelNames() []string {
	res := make([]string, 0, len(FitnessLevelValues))
	for _, e := range FitnessLevelValues {
		res = append(res, e.String())
	}
	return res
}

// PrimaryGoalNames returns wire values of all known goals
func PrimaryGoalNames() []string {
	res := make([]string, 0, len(PrimaryGoalValues))
	for _, e := range PrimaryGoalValues {
		res = append(res, e.String())
	}
	return res
}

// GoalLabel returns the display label for a goal value, or the value itself if unknown.
// Empty input gives an empty label.
func GoalLabel(v string) string {
	if g, err := ParsePrimaryGoal(v); err == nil {
		return g.Label()
	}
	return v
}

// LevelLabel returns the display label for a fitness level value, or the value itself if unknown
func LevelLabel(v string) string {
	if l, err := ParseFitnessLevel(v); err == nil {
		return l.Label()
	}
	return v
}

func (e FitnessLevel) String() string { return e.name }

// Label returns human-readable name
func (e FitnessLevel) Label() string { return e.label }

func (e PrimaryGoal) String() string { return e.name }

// Label returns human-readable name
func (e PrimaryGoal) Label() string { return e.label }
