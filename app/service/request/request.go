// Package request contains request types accepted by the record service
package request

import (
	"github.com/invopop/jsonschema"

	"github.com/reevolve/reevolve/app/web/enums"
)

// Submit is the intake form payload. Required fields are checked by the service,
// an empty string counts as missing.
type Submit struct {
	FullName     string `json:"fullName" validate:"required" jsonschema:"title=Full name,minLength=1"`
	Email        string `json:"email" validate:"required" jsonschema:"title=Email,minLength=1"`
	Phone        string `json:"phone" validate:"required" jsonschema:"title=Phone,minLength=1"`
	FitnessLevel string `json:"fitnessLevel" validate:"required" jsonschema:"title=Fitness level"`
	PrimaryGoal  string `json:"primaryGoal" validate:"required" jsonschema:"title=Primary goal"`
	WhyCoaching  string `json:"whyCoaching,omitempty" jsonschema:"title=Why coaching"`
}

// JSONSchemaExtend fills choice lists of the form from the known enum values
func (Submit) JSONSchemaExtend(s *jsonschema.Schema) {
	if s.Properties == nil {
		return
	}
	setEnum := func(prop string, values []string) {
		p, ok := s.Properties.Get(prop)
		if !ok || p == nil {
			return
		}
		p.Enum = make([]any, 0, len(values))
		for _, v := range values {
			p.Enum = append(p.Enum, v)
		}
	}
	setEnum("fitnessLevel", enums.FitnessLevelNames())
	setEnum("primaryGoal", enums.PrimaryGoalNames())
}
