package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/pvm"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <container>",
	Short: "Print the entry points and memory layout of a program container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		container, program, err := pvm.ParseContainer(data)
		if err != nil {
			return err
		}
		code, bitmask, jumpTable, err := pvm.Deblob(program.CodeAndJumpTable)
		if err != nil {
			return err
		}
		instructions := 0
		for _, start := range bitmask {
			if start {
				instructions++
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "code hash:     %x\n", crypto.HashData(data))
		fmt.Fprintf(out, "metadata:      %q\n", container.Metadata)
		for name, pc := range container.EntryPoints.All() {
			fmt.Fprintf(out, "entry point:   %s @ %d\n", name.V, pc)
		}
		fmt.Fprintf(out, "ro data:       %d bytes\n", len(program.ROData))
		fmt.Fprintf(out, "rw data:       %d bytes\n", len(program.RWData))
		fmt.Fprintf(out, "heap pages:    %d\n", program.ProgramMemorySizes.InitialHeapPages)
		fmt.Fprintf(out, "stack:         %d bytes\n", program.ProgramMemorySizes.StackSize)
		fmt.Fprintf(out, "code:          %d bytes, %d instructions\n", len(code), instructions)
		fmt.Fprintf(out, "jump table:    %d entries\n", len(jumpTable))
		return nil
	},
}
