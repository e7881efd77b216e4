package paas

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// Program describes one provable circuit, registered under the program name
// half of an xtypes.ProofKey. It generalizes the teacher's single compiled
// BLS circuit (pkg/crypto/bls_zkp.BLSZKProver) into one entry of a keyed
// registry, so a GnarkHostResolver can serve many distinct programs.
type Program struct {
	// Circuit is a fresh, unassigned instance used to compile the R1CS.
	Circuit frontend.Circuit
	// Assign decodes task input bytes into a witness assignment for Circuit.
	Assign func(input []byte) (frontend.Circuit, error)
}

// GnarkHostResolver resolves zkVM backends backed by gnark's Groth16 prover,
// one compiled circuit per registered program, mirroring
// pkg/crypto/bls_zkp.BLSZKProver's Initialize/GenerateProof split but keyed
// by program name instead of hardcoding a single BLS circuit.
type GnarkHostResolver struct {
	programs map[string]Program

	mu      sync.Mutex
	compiled map[string]*compiledProgram
}

type compiledProgram struct {
	cs constraint.ConstraintSystem
	pk groth16.ProvingKey
	vk groth16.VerifyingKey
}

// NewGnarkHostResolver constructs a resolver over the given program
// registry, keyed by ProofKey.Program.
func NewGnarkHostResolver(programs map[string]Program) *GnarkHostResolver {
	return &GnarkHostResolver{
		programs: programs,
		compiled: make(map[string]*compiledProgram),
	}
}

// Resolve implements HostResolver. The backend half of the key is currently
// unused for selection (every registered program compiles to a single
// Groth16/BN254 circuit); it is threaded through so a future resolver can
// dispatch to distinct zkVM backends per key without changing the
// HostResolver interface.
func (r *GnarkHostResolver) Resolve(key xtypes.ProofKey) (Host, error) {
	prog, ok := r.programs[key.Program]
	if !ok {
		return nil, fmt.Errorf("paas: no program registered for %q", key.Program)
	}

	compiled, err := r.compile(key.Program, prog)
	if err != nil {
		return nil, err
	}

	return &gnarkHost{program: prog, compiled: compiled}, nil
}

func (r *GnarkHostResolver) compile(name string, prog Program) (*compiledProgram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.compiled[name]; ok {
		return c, nil
	}

	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, prog.Circuit)
	if err != nil {
		return nil, fmt.Errorf("paas: compile circuit %q: %w", name, err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("paas: groth16 setup %q: %w", name, err)
	}

	c := &compiledProgram{cs: cs, pk: pk, vk: vk}
	r.compiled[name] = c
	return c, nil
}

type gnarkHost struct {
	program  Program
	compiled *compiledProgram
}

// Prove implements Host by assigning input to the program's circuit and
// running Groth16 proof generation, serializing the proof for ProofStorer.
func (h *gnarkHost) Prove(ctx context.Context, key xtypes.ProofKey, input []byte) ([]byte, error) {
	assignment, err := h.program.Assign(input)
	if err != nil {
		return nil, fmt.Errorf("%w: assign witness for %s: %v", ErrPermanentFailure, key, err)
	}

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: build witness for %s: %v", ErrPermanentFailure, key, err)
	}

	proof, err := groth16.Prove(h.compiled.cs, h.compiled.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("generate proof for %s: %w", key, err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: serialize proof for %s: %v", ErrPermanentFailure, key, err)
	}
	return buf.Bytes(), nil
}
