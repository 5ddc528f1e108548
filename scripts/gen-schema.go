//go:build ignore

package main

import (
	"fmt"
	"os"

	"github.com/ormasoftchile/dataward/pkg/contract"
)

func main() {
	data, err := contract.GenerateJSONSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("schemas/contract-v1.json", data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/contract-v1.json")
}
