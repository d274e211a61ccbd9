package run

import (
	"time"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
)

// RunManifest is the complete description of a run. It is persisted
// before any index so a run can be replayed from it alone.
type RunManifest struct {
	RunID        core.RunID        `json:"run_id"`
	Kind         Kind              `json:"kind"`
	Root         string            `json:"root"`
	Methods      []core.MethodKey  `json:"methods"`
	Params       []string          `json:"params"`
	N            int               `json:"n"`
	Seed         uint64            `json:"seed"`
	Workers      int               `json:"workers"`
	RegistryHash core.RegistryHash `json:"registry_hash"`
	ModelHash    core.ModelHash    `json:"model_hash"`
	CodeVersion  string            `json:"code_version"`
	Fingerprint  RunFingerprint    `json:"fingerprint"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NewRunManifest creates a run manifest and computes its fingerprint.
func NewRunManifest(
	kind Kind,
	root string,
	methods []core.MethodKey,
	params []string,
	n int,
	seed uint64,
	workers int,
	registryHash core.RegistryHash,
	modelHash core.ModelHash,
	codeVersion string,
) *RunManifest {
	return &RunManifest{
		RunID:        core.NewRunID(),
		Kind:         kind,
		Root:         root,
		Methods:      append([]core.MethodKey(nil), methods...),
		Params:       append([]string(nil), params...),
		N:            n,
		Seed:         seed,
		Workers:      workers,
		RegistryHash: registryHash,
		ModelHash:    modelHash,
		CodeVersion:  codeVersion,
		Fingerprint:  NewRunFingerprint(registryHash, modelHash, methods, n, seed, codeVersion),
		CreatedAt:    time.Now().UTC(),
	}
}

// Validate checks if the manifest is complete
func (r *RunManifest) Validate() error {
	if core.ID(r.RunID).IsEmpty() {
		return core.NewInvalidModelError("run manifest: run_id cannot be empty")
	}
	switch r.Kind {
	case KindSobol, KindOAT, KindSimplify:
	default:
		return core.NewInvalidModelError("run manifest: unknown kind %q", r.Kind)
	}
	if len(r.Methods) == 0 {
		return core.NewInvalidModelError("run manifest: no methods")
	}
	if r.RegistryHash == "" {
		return core.NewInvalidModelError("run manifest: registry_hash cannot be empty")
	}
	if r.ModelHash == "" {
		return core.NewInvalidModelError("run manifest: model_hash cannot be empty")
	}
	if r.CodeVersion == "" {
		return core.NewInvalidModelError("run manifest: code_version cannot be empty")
	}
	return nil
}
