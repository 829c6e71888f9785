package fuse

import (
	"os"
	"strings"

	"github.com/tliron/commonlog"
)

// Model selects one predicate from the fusion-policy family. Every model
// admits no more than Broadest. NoXsweep, NoXsweepScalarSeparate and
// NoXsweepScalarSeparateShapeMatch each admit no more than the model before
// them, and SameShape admits only elementwise pairs. The two stream models
// are not refinements of SameShape: they also admit a single reduction, and
// SameShapeStreamCreducePreduceOnce admits a reduction paired with a
// consumer of its result, which SameShapeStreamCreduce rejects.
type Model int

const (
	Broadest Model = iota
	NoXsweep
	NoXsweepScalarSeparate
	NoXsweepScalarSeparateShapeMatch
	SameShape
	SameShapeStreamCreduce
	SameShapeStreamCreducePreduceOnce
	numModels
)

// DefaultModel is used when no model is configured.
const DefaultModel = Broadest

// EnvVar names the environment variable the default configuration reads.
const EnvVar = "FUSE_MODEL"

var log = commonlog.GetLogger("forge.fuse")

var modelNames = [numModels]string{
	Broadest:                          "broadest",
	NoXsweep:                          "no_xsweep",
	NoXsweepScalarSeparate:            "no_xsweep_scalar_separate",
	NoXsweepScalarSeparateShapeMatch:  "no_xsweep_scalar_separate_shape_match",
	SameShape:                         "same_shape",
	SameShapeStreamCreduce:            "same_shape_stream_creduce",
	SameShapeStreamCreducePreduceOnce: "same_shape_stream_creduce_preduce_once",
}

func (m Model) String() string {
	if m >= 0 && m < numModels {
		return modelNames[m]
	}
	return "unknown"
}

// ModelFromName resolves a model name case-insensitively.
func ModelFromName(name string) (Model, bool) {
	for m := Broadest; m < numModels; m++ {
		if strings.EqualFold(name, modelNames[m]) {
			return m, true
		}
	}
	return DefaultModel, false
}

// ModelFromEnv reads the model selection from FUSE_MODEL. Unknown values
// fall back to the default model with a warning.
func ModelFromEnv() Model {
	env := os.Getenv(EnvVar)
	if env == "" {
		return DefaultModel
	}
	m, ok := ModelFromName(env)
	if !ok {
		log.Warningf("unknown fuse model %q, using the default model %q instead", env, DefaultModel)
		return DefaultModel
	}
	return m
}
