package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	usageDevice  string
	bonusProfile string
	bonusMinutes int
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Manage usage sessions and bonus time",
	Long:  `Start or stop a device's usage session and grant bonus time against the shared ledger.`,
}

var usageStartCmd = &cobra.Command{
	Use:     "start",
	Short:   "Start a usage session for a device's user",
	Example: `  warden -c config.yaml usage start --device tablet`,
	RunE:    runUsageStart,
}

var usageStopCmd = &cobra.Command{
	Use:     "stop",
	Short:   "Stop a usage session for a device's user",
	Example: `  warden -c config.yaml usage stop --device tablet`,
	RunE:    runUsageStop,
}

var usageBonusCmd = &cobra.Command{
	Use:     "bonus",
	Short:   "Grant bonus minutes to a profile for today",
	Example: `  warden -c config.yaml usage bonus --profile kids --minutes 30`,
	RunE:    runUsageBonus,
}

func init() {
	usageStartCmd.Flags().StringVar(&usageDevice, "device", "", "Device id (required)")
	usageStartCmd.MarkFlagRequired("device")

	usageStopCmd.Flags().StringVar(&usageDevice, "device", "", "Device id (required)")
	usageStopCmd.MarkFlagRequired("device")

	usageBonusCmd.Flags().StringVar(&bonusProfile, "profile", "", "Profile id (required)")
	usageBonusCmd.Flags().IntVar(&bonusMinutes, "minutes", 0, "Bonus minutes to grant (required)")
	usageBonusCmd.MarkFlagRequired("profile")
	usageBonusCmd.MarkFlagRequired("minutes")

	usageCmd.AddCommand(usageStartCmd)
	usageCmd.AddCommand(usageStopCmd)
	usageCmd.AddCommand(usageBonusCmd)
	rootCmd.AddCommand(usageCmd)
}

func runUsageStart(cmd *cobra.Command, args []string) error {
	_, engine, _, cleanup, err := checkSetup(time.Now())
	if err != nil {
		return err
	}
	defer cleanup()

	ok, err := engine.StartUsageForDevice(usageDevice)
	if err != nil {
		return err
	}

	if ok {
		color.New(color.FgGreen, color.Bold).Printf("Usage started for device %s\n", usageDevice)
	} else {
		color.New(color.FgRed, color.Bold).Printf("Usage start rejected for device %s: quota exhausted\n", usageDevice)
	}
	return nil
}

func runUsageStop(cmd *cobra.Command, args []string) error {
	_, engine, _, cleanup, err := checkSetup(time.Now())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := engine.StopUsageForDevice(usageDevice); err != nil {
		return err
	}

	color.New(color.FgGreen, color.Bold).Printf("Usage stopped for device %s\n", usageDevice)
	return nil
}

func runUsageBonus(cmd *cobra.Command, args []string) error {
	_, engine, _, cleanup, err := checkSetup(time.Now())
	if err != nil {
		return err
	}
	defer cleanup()

	bonus, err := engine.AddBonusTimeForToday(bonusProfile, bonusMinutes)
	if err != nil {
		return err
	}

	color.New(color.FgGreen, color.Bold).Printf("Granted %d bonus minutes to profile %s\n", bonusMinutes, bonusProfile)
	fmt.Printf("Total bonus today: %d minutes (granted at %s)\n", bonus.Minutes, bonus.GrantedAt.Format("15:04"))
	return nil
}
