// Package domain contains the core entities shared by the SNP search service:
// input modes, annotation filters, engine queries, result pages and download
// readiness state.
package domain

import (
	"fmt"
)

// InputMode identifies how a user describes the variants they are looking for.
// The numeric value is the stable id exposed to consumers.
type InputMode int

const (
	ByChromosome  InputMode = 1
	ByVariantList InputMode = 2
	ByGeneProduct InputMode = 3
	ByRsID        InputMode = 4
)

// DefaultInputMode is the mode selected when a service is constructed.
const DefaultInputMode = ByChromosome

var inputModeLabels = map[InputMode]string{
	ByChromosome:  "Chromosome",
	ByVariantList: "Variants List",
	ByGeneProduct: "Gene Product",
	ByRsID:        "rsID or variant id",
}

// InputModes returns every known input mode in declaration order.
func InputModes() []InputMode {
	return []InputMode{ByChromosome, ByVariantList, ByGeneProduct, ByRsID}
}

// ID returns the stable numeric id of the mode.
func (m InputMode) ID() int {
	return int(m)
}

// Label returns the display label, or an empty string for unknown modes.
func (m InputMode) Label() string {
	return inputModeLabels[m]
}

// IsValid reports whether m is one of the declared modes.
func (m InputMode) IsValid() bool {
	_, ok := inputModeLabels[m]
	return ok
}

func (m InputMode) String() string {
	if label, ok := inputModeLabels[m]; ok {
		return label
	}
	return fmt.Sprintf("InputMode(%d)", int(m))
}

// InputModeInfo is the serialized form of an input mode.
type InputModeInfo struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// Info returns the serializable description of m.
func (m InputMode) Info() InputModeInfo {
	return InputModeInfo{ID: m.ID(), Label: m.Label()}
}

// ParseInputMode resolves a numeric id to a declared input mode.
func ParseInputMode(id int) (InputMode, error) {
	mode := InputMode(id)
	if !mode.IsValid() {
		return 0, NewValidationError("id", "unknown input mode", id)
	}
	return mode, nil
}
