package run

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mijafro/fork-lca-algebraic/domain/core"
)

// Kind is the analysis a run performed.
type Kind string

const (
	KindSobol    Kind = "sobol"
	KindOAT      Kind = "oat"
	KindSimplify Kind = "simplify"
)

// RunFingerprint ensures deterministic replay: two runs with the same
// fingerprint draw the same samples and produce the same numbers.
type RunFingerprint struct {
	RegistryHash core.RegistryHash `json:"registry_hash"`
	ModelHash    core.ModelHash    `json:"model_hash"`
	Methods      []core.MethodKey  `json:"methods"`
	N            int               `json:"n"`
	Seed         uint64            `json:"seed"`
	CodeVersion  string            `json:"code_version"`
	Fingerprint  core.Hash         `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from determinism parameters.
// The worker count is not part of it.
func NewRunFingerprint(registryHash core.RegistryHash, modelHash core.ModelHash,
	methods []core.MethodKey, n int, seed uint64, codeVersion string) RunFingerprint {

	return RunFingerprint{
		RegistryHash: registryHash,
		ModelHash:    modelHash,
		Methods:      append([]core.MethodKey(nil), methods...),
		N:            n,
		Seed:         seed,
		CodeVersion:  codeVersion,
		Fingerprint:  computeRunFingerprint(registryHash, modelHash, methods, n, seed, codeVersion),
	}
}

func computeRunFingerprint(registryHash core.RegistryHash, modelHash core.ModelHash,
	methods []core.MethodKey, n int, seed uint64, codeVersion string) core.Hash {

	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	data := fmt.Sprintf("registry:%s|model:%s|methods:%s|n:%d|seed:%d|code:%s",
		registryHash, modelHash, strings.Join(names, ","), n, seed, codeVersion)

	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}

// IndexRecord is one persisted sensitivity index.
type IndexRecord struct {
	Method  core.MethodKey `db:"method" json:"method"`
	Param   string         `db:"param" json:"param"`
	S1      float64        `db:"s1" json:"s1"`
	ST      float64        `db:"st" json:"st"`
	S1Raw   float64        `db:"s1_raw" json:"s1_raw"`
	STRaw   float64        `db:"st_raw" json:"st_raw"`
	Clipped bool           `db:"clipped" json:"clipped"`
}

// SummaryRecord is the persisted output distribution of one method.
type SummaryRecord struct {
	Method   core.MethodKey `db:"method" json:"method"`
	Mean     float64        `db:"mean" json:"mean"`
	Std      float64        `db:"std" json:"std"`
	Median   float64        `db:"median" json:"median"`
	P5       float64        `db:"p5" json:"p5"`
	P95      float64        `db:"p95" json:"p95"`
	Variance float64        `db:"variance" json:"variance"`
	Error    string         `db:"error" json:"error,omitempty"`
}
