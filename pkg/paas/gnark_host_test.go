package paas

import (
	"context"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/consensys/gnark/frontend"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// sumCircuit proves that A + B == Sum, a minimal stand-in for a real
// program's constraints.
type sumCircuit struct {
	A, B frontend.Variable
	Sum  frontend.Variable `gnark:",public"`
}

func (c *sumCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Add(c.A, c.B), c.Sum)
	return nil
}

func TestGnarkHostResolverProvesRegisteredProgram(t *testing.T) {
	programs := map[string]Program{
		"sum": {
			Circuit: &sumCircuit{},
			Assign: func(input []byte) (frontend.Circuit, error) {
				a := binary.BigEndian.Uint64(input[0:8])
				b := binary.BigEndian.Uint64(input[8:16])
				return &sumCircuit{
					A:   new(big.Int).SetUint64(a),
					B:   new(big.Int).SetUint64(b),
					Sum: new(big.Int).SetUint64(a + b),
				}, nil
			},
		},
	}

	resolver := NewGnarkHostResolver(programs)
	key := xtypes.ProofKey{Program: "sum", Backend: "groth16"}

	host, err := resolver.Resolve(key)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	input := make([]byte, 16)
	binary.BigEndian.PutUint64(input[0:8], 2)
	binary.BigEndian.PutUint64(input[8:16], 3)

	proof, err := host.Prove(context.Background(), key, input)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if len(proof) == 0 {
		t.Fatalf("expected non-empty serialized proof")
	}
}

func TestGnarkHostResolverRejectsUnregisteredProgram(t *testing.T) {
	resolver := NewGnarkHostResolver(map[string]Program{})
	if _, err := resolver.Resolve(xtypes.ProofKey{Program: "missing", Backend: "groth16"}); err == nil {
		t.Fatalf("expected an error resolving an unregistered program")
	}
}
