package setup

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// CompileCircuit compiles a gnark circuit into a constraint system.
func CompileCircuit(circuit frontend.Circuit) (constraint.ConstraintSystem, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("compile circuit: %w", err)
	}
	return ccs, nil
}

// ExportKeys writes the proving key, verifying key, and Solidity verifier to outputDir.
// Files are named: <circuitName>_prover.key, <circuitName>_verifier.key, <circuitName>_verifier.sol
func ExportKeys(pk groth16.ProvingKey, vk groth16.VerifyingKey, outputDir, circuitName string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	solPath := filepath.Join(outputDir, circuitName+"_verifier.sol")
	f, err := os.Create(solPath)
	if err != nil {
		return fmt.Errorf("create solidity verifier: %w", err)
	}
	if err := vk.ExportSolidity(f); err != nil {
		f.Close()
		return fmt.Errorf("export solidity verifier: %w", err)
	}
	f.Close()

	vkPath := filepath.Join(outputDir, circuitName+"_verifier.key")
	saveObject(vkPath, vk)

	pkPath := filepath.Join(outputDir, circuitName+"_prover.key")
	saveObject(pkPath, pk)

	fmt.Printf("Exported: %s, %s, %s\n", pkPath, vkPath, solPath)
	return nil
}

// LoadKeys loads the proving and verifying keys from the given directory.
func LoadKeys(dir, circuitName string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk := groth16.NewProvingKey(ecc.BN254)
	pkPath := filepath.Join(dir, circuitName+"_prover.key")
	f, err := os.Open(pkPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open proving key: %w", err)
	}
	if _, err := pk.ReadFrom(f); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("read proving key: %w", err)
	}
	f.Close()

	vk := groth16.NewVerifyingKey(ecc.BN254)
	vkPath := filepath.Join(dir, circuitName+"_verifier.key")
	f, err = os.Open(vkPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open verifying key: %w", err)
	}
	if _, err := vk.ReadFrom(f); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("read verifying key: %w", err)
	}
	f.Close()

	return pk, vk, nil
}

func saveObject(path string, obj io.WriterTo) {
	f, err := os.Create(path)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if _, err := obj.WriteTo(f); err != nil {
		log.Fatal(err)
	}
}
