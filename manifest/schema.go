package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// DefaultVerbosity is the commonlog verbosity used when the manifest does
// not set one: warnings and worse.
const DefaultVerbosity = 2

// schemaSource constrains a decoded manifest. Field names follow the TOML
// keys; unknown keys never reach it because Parse rejects them first.
const schemaSource = `
#Dependency: {
	git?:    string & !=""
	tag?:    string
	path?:   string & !=""
	prefix?: =~"^[A-Za-z0-9_.-]+$"
}

#Manifest: {
	project: {
		name?:    =~"^[A-Za-z0-9_.-]+$"
		version?: string
	}
	source: {
		dirs: [...string & !=""]
		entry?:   string & !=""
		library?: string & !=""
	}
	dependencies?: [string]: #Dependency
	log: {
		verbosity: int & >=0 & <=6
		file?:     string
	}
	server: {
		address?:        =~":[0-9]+$"
		"grpc-address"?: =~":[0-9]+$"
	}
	image: {
		output?: string
	}
}
`

var (
	cueCtx = cuecontext.New()
	schema cue.Value
)

func init() {
	schema = cueCtx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Manifest"))
	if err := schema.Err(); err != nil {
		panic(fmt.Sprintf("manifest schema: %v", err))
	}
}

// Validate checks a manifest against the schema. Every violation is
// reported, one per line.
func Validate(m *Manifest) error {
	v := cueCtx.Encode(m)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest:\n%s", cueerrors.Details(err, nil))
	}
	return nil
}
