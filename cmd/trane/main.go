// Package main provides the trane CLI for inspecting .tt train files.
package main

import (
	"fmt"
	"os"

	"github.com/trane-ml/trane/tt"
)

const version = "v0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "version":
		fmt.Printf("trane %s\n", version)
	case "info":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: trane info <file.tt>")
			os.Exit(2)
		}
		if err := info(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "trane: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func info(path string) error {
	x, err := tt.Load(path)
	if err != nil {
		return err
	}
	fmt.Println(x.String())
	norm, err := x.Norm(tt.NormOrthogonal)
	if err != nil {
		return err
	}
	fmt.Printf("frobenius norm: %.6e\n", norm)
	fmt.Printf("stored entries: %d\n", x.Numel())
	return nil
}

func usage() {
	fmt.Println("trane - tensor train toolkit")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version         Show version")
	fmt.Println("  info <file.tt>  Describe a saved tensor train")
}
