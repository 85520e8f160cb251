// Command ceremonyverify is the worker-side verification tool the local
// WorkerPool backend shells out to. It stands in for the real cryptographic
// verification tool (a snarkjs-equivalent) that spec §1 treats as an opaque
// command producing a log containing a known success marker: this binary
// runs the actual gnark Phase2 MPC contribute/verify steps (internal/verify)
// against the PoI circuit and prints internal/verify.SuccessMarker to
// stdout exactly when the chain verifies.
//
// Usage follows a plain argv-switch style:
//
//	ceremonyverify contribute  PHASE2_IN  PHASE2_OUT
//	ceremonyverify verify      COMMONS_IN  BEACON_HEX  PHASE2_IN...
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/consensys/gnark/backend/groth16/bn254/mpcsetup"

	"github.com/muridata/ceremony-coordinator/circuits/poi"
	"github.com/muridata/ceremony-coordinator/internal/verify"
	"github.com/muridata/ceremony-coordinator/pkg/setup"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "contribute":
		if len(os.Args) != 4 {
			usage()
		}
		runContribute(os.Args[2], os.Args[3])
	case "verify":
		if len(os.Args) < 5 {
			usage()
		}
		runVerify(os.Args[2], os.Args[3], os.Args[4:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ceremonyverify contribute PHASE2_IN PHASE2_OUT")
	fmt.Fprintln(os.Stderr, "       ceremonyverify verify COMMONS_IN BEACON_HEX PHASE2_IN...")
	os.Exit(1)
}

func runContribute(inPath, outPath string) {
	in, err := os.Open(inPath)
	must(err)
	var p2 mpcsetup.Phase2
	_, err = p2.ReadFrom(in)
	in.Close()
	must(err)

	verify.Contribute(&p2)

	out, err := os.Create(outPath)
	must(err)
	_, err = p2.WriteTo(out)
	out.Close()
	must(err)

	fmt.Println("contribution written to", outPath)
}

func runVerify(commonsPath, beaconHex string, phase2Paths []string) {
	commonsFile, err := os.Open(commonsPath)
	must(err)
	defer commonsFile.Close()

	var commons mpcsetup.SrsCommons
	_, err = commons.ReadFrom(commonsFile)
	must(err)

	contributions := make([]*mpcsetup.Phase2, len(phase2Paths))
	for i, p := range phase2Paths {
		f, err := os.Open(p)
		must(err)
		var p2 mpcsetup.Phase2
		_, err = p2.ReadFrom(f)
		f.Close()
		must(err)
		contributions[i] = &p2
	}

	beacon, err := hex.DecodeString(beaconHex)
	must(err)

	ccs, err := setup.CompileCircuit(&poi.PoICircuit{})
	must(err)

	ok := verify.VerifyAndSeal(ccs, &commons, beacon, os.Stdout, contributions...)
	if !ok {
		os.Exit(1)
	}
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "ceremonyverify:", err)
		os.Exit(1)
	}
}
