// Package chem is the chemistry vocabulary spoken over chemrpc: the documented method
// names, their parameter shapes, a typed client and the reference service behind them.
//
//	convertMoleculeIdentifier {identifier, inputFormat, outputFormat} → string
//	getChemicalJson           {inchi}                                 → string (name)
//	kill                      {}                                      → exits (testing mode only)
package chem

const (
	MethodConvertMoleculeIdentifier = "convertMoleculeIdentifier"
	MethodGetChemicalJSON           = "getChemicalJson"
	MethodKill                      = "kill"
)

// DefaultEndpoint is the endpoint name the service listens on unless told otherwise.
const DefaultEndpoint = "chemdata"

type ConvertParams struct {
	Identifier   string `json:"identifier"`
	InputFormat  string `json:"inputFormat"`
	OutputFormat string `json:"outputFormat"`
}

type ChemicalJSONParams struct {
	InChI string `json:"inchi"`
}

type KillParams struct{}
