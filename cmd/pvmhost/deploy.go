package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/internal/store"
	"github.com/eigerco/pvmhost/pkg/log"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <container>",
	Short: "Create or upgrade a service whose code is the given program container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if _, _, err := pvm.ParseContainer(code); err != nil {
			return fmt.Errorf("not a program container: %w", err)
		}

		services, closeServices, err := openServices(cmd)
		if err != nil {
			return err
		}
		defer closeServices()

		id := block.ServiceId(getUint32(cmd, "service"))
		account, err := services.GetService(id)
		if errors.Is(err, store.ErrServiceNotFound) {
			account = service.NewServiceAccount()
		} else if err != nil {
			return err
		}

		codeHash := crypto.HashData(code)
		account.CodeHash = codeHash
		account.Balance = getUint64(cmd, "balance")
		account.GasLimitForAccumulator = getUint64(cmd, "accumulate-gas")
		account.GasLimitOnTransfer = getUint64(cmd, "on-transfer-gas")

		// solicit and provide the code in one step
		key := service.PreImageMetaKey{Hash: codeHash, Length: service.PreimageLength(len(code))}
		if _, ok := account.PreimageMeta[key]; !ok {
			account.PreimageMeta[key] = service.PreimageHistoricalTimeslots{}
			if err := account.AddPreimage(code, jamtime.Timeslot(getUint32(cmd, "timeslot"))); err != nil {
				return err
			}
		}

		if err := services.PutService(id, account); err != nil {
			return err
		}
		log.Root.Info().Uint32("service", uint32(id)).Hex("codeHash", codeHash[:]).Msg("service deployed")
		fmt.Fprintf(cmd.OutOrStdout(), "%d %x\n", id, codeHash)
		return nil
	},
}

func init() {
	addStateFlags(deployCmd)
	deployCmd.Flags().Uint64("balance", 1_000_000, "service balance")
	deployCmd.Flags().Uint64("accumulate-gas", 100_000, "minimum accumulate gas of the service")
	deployCmd.Flags().Uint64("on-transfer-gas", 100_000, "minimum on-transfer gas of the service")
	deployCmd.Flags().Uint32("timeslot", 0, "timeslot the code becomes available at")
}
