package chem

import (
	"context"

	"chemrpc/client"
)

// Client gives the documented methods typed signatures. It adds nothing on the wire.
type Client struct {
	rpc *client.Client
}

func NewClient(rpc *client.Client) *Client {
	return &Client{rpc: rpc}
}

// RPC returns the underlying client.
func (c *Client) RPC() *client.Client { return c.rpc }

// ConvertMoleculeIdentifier converts identifier from inputFormat to outputFormat,
// e.g. ("methanol", "name", "inchi") → "InChI=1S/CH4O/c1-2/h2H,1H3".
func (c *Client) ConvertMoleculeIdentifier(ctx context.Context, identifier, inputFormat, outputFormat string) (string, error) {
	var out string
	err := c.rpc.Call(ctx, MethodConvertMoleculeIdentifier, &ConvertParams{
		Identifier:   identifier,
		InputFormat:  inputFormat,
		OutputFormat: outputFormat,
	}, &out)
	if err != nil {
		return "", err
	}
	return out, nil
}

// GetChemicalJSON returns the name of the molecule with the given InChI.
func (c *Client) GetChemicalJSON(ctx context.Context, inchi string) (string, error) {
	var name string
	if err := c.rpc.Call(ctx, MethodGetChemicalJSON, &ChemicalJSONParams{InChI: inchi}, &name); err != nil {
		return "", err
	}
	return name, nil
}

// Kill sends the kill notification. It does not wait for the service to exit.
func (c *Client) Kill(ctx context.Context) error {
	return c.rpc.Notify(ctx, MethodKill, &KillParams{})
}
