package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/invocations"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/state"
	"github.com/eigerco/pvmhost/pkg/log"
)

var accumulateCmd = &cobra.Command{
	Use:   "accumulate",
	Short: "Accumulate operands into a service and deliver the resulting transfers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := invocations.AccumulateInput{
			Timeslot:  jamtime.Timeslot(getUint32(cmd, "timeslot")),
			ServiceId: block.ServiceId(getUint32(cmd, "service")),
			Gas:       getUint64(cmd, "gas"),
		}
		operands, err := cmd.Flags().GetStringSlice("operand")
		if err != nil {
			return err
		}
		for _, o := range operands {
			b, err := hex.DecodeString(o)
			if err != nil {
				return fmt.Errorf("operand %q: %w", o, err)
			}
			in.Operands = append(in.Operands, b)
		}
		if entropy := getString(cmd, "entropy"); entropy != "" {
			b, err := hex.DecodeString(entropy)
			if err != nil || len(b) != crypto.HashSize {
				return fmt.Errorf("entropy must be %d hex encoded bytes", crypto.HashSize)
			}
			in.Entropy = crypto.Hash(b)
		}

		services, closeServices, err := openServices(cmd)
		if err != nil {
			return err
		}
		defer closeServices()

		serviceState, err := services.GetServiceState()
		if err != nil {
			return err
		}

		host := invocations.NewHost()
		output, err := host.Accumulate(state.AccumulationState{ServiceState: serviceState}, in)
		if err != nil {
			return err
		}
		newState, transferGas, err := host.DeliverTransfers(output.AccumulationState.ServiceState, in.Timeslot, output.DeferredTransfers)
		if err != nil {
			return err
		}
		if err := services.PutServiceState(newState); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "gas used:   %d\n", output.GasUsed)
		if output.Result != nil {
			fmt.Fprintf(out, "result:     %x\n", *output.Result)
		}
		for _, t := range output.DeferredTransfers {
			fmt.Fprintf(out, "transfer:   %d -> %d amount %d gas %d\n",
				t.SenderServiceIndex, t.ReceiverServiceIndex, t.Balance, transferGas[t.ReceiverServiceIndex])
		}
		for _, p := range output.ProvidedPreimages {
			fmt.Fprintf(out, "provided:   %d %x\n", p.ServiceIndex, crypto.HashData(p.Data))
		}
		log.Root.Info().Uint32("service", uint32(in.ServiceId)).Uint64("gasUsed", output.GasUsed).Msg("accumulated")
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <key>",
	Short: "Print a storage item of a service, the key is hex encoded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := hex.DecodeString(args[0])
		if err != nil {
			return err
		}
		services, closeServices, err := openServices(cmd)
		if err != nil {
			return err
		}
		defer closeServices()

		id := block.ServiceId(getUint32(cmd, "service"))
		account, err := services.GetService(id)
		if err != nil {
			return err
		}
		value, ok := account.GetStorage(key)
		if !ok {
			return fmt.Errorf("service %d has no storage item %x", id, key)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%x\n", value)
		return nil
	},
}

func init() {
	addStateFlags(accumulateCmd)
	accumulateCmd.Flags().Uint64("gas", 1_000_000, "gas limit of the accumulation")
	accumulateCmd.Flags().Uint32("timeslot", 1, "current timeslot")
	accumulateCmd.Flags().StringSlice("operand", nil, "hex encoded operand, repeatable")
	accumulateCmd.Flags().String("entropy", "", "hex encoded entropy η′0")

	addStateFlags(readCmd)
}
