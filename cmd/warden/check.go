package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/homenet-labs/warden/internal/access"
	"github.com/homenet-labs/warden/internal/clock"
	"github.com/homenet-labs/warden/internal/config"
	"github.com/homenet-labs/warden/internal/directory"
	"github.com/homenet-labs/warden/internal/traffic"
	"github.com/homenet-labs/warden/internal/usage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkDevice string
	checkUser   string
	checkDay    string
	checkTime   string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check access decisions interactively",
	Long:  `Check what access decisions Warden would make for a device or user.`,
}

var checkAccessCmd = &cobra.Command{
	Use:   "access",
	Short: "Check a device's access decision",
	Long:  `Evaluate whether a device would currently be permitted internet access and why.`,
	Example: `  warden -c config.yaml check access --device tablet
  warden check access --device tablet --day saturday --time 18:30`,
	RunE: runCheckAccess,
}

var checkUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Check a user's usage account",
	Long:  `Show a user's accounted usage, quota and remaining time for today.`,
	Example: `  warden -c config.yaml check usage --user alice`,
	RunE: runCheckUsage,
}

func init() {
	checkAccessCmd.Flags().StringVar(&checkDevice, "device", "", "Device id (required)")
	checkAccessCmd.Flags().StringVar(&checkDay, "day", "", "Day of week (monday, tuesday, etc.) - defaults to current day")
	checkAccessCmd.Flags().StringVar(&checkTime, "time", "", "Time of day (HH:MM) - defaults to current time")
	checkAccessCmd.MarkFlagRequired("device")

	checkUsageCmd.Flags().StringVar(&checkUser, "user", "", "User id (required)")
	checkUsageCmd.MarkFlagRequired("user")

	checkCmd.AddCommand(checkAccessCmd)
	checkCmd.AddCommand(checkUsageCmd)
	rootCmd.AddCommand(checkCmd)
}

// checkSetup wires a minimal engine and evaluator against real storage
// with a fixed clock.
func checkSetup(at time.Time) (*access.Evaluator, *usage.Engine, *directory.Static, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	cleanup := func() { _ = store.Close() }

	loc, err := config.LoadLocation(cfg.Accounting.Timezone)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	ctx := context.Background()
	dir, err := directory.NewStatic(ctx, cfg.Family, store.Bonuses(), logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize directory: %w", err)
	}

	clk := &clock.TestClock{CurrentTime: at}
	engine := usage.NewEngine(usage.Config{
		Store:       store.UsageEvents(),
		Users:       dir,
		Profiles:    dir,
		Devices:     dir,
		Traffic:     traffic.NewStoreSource(store.Activity(), logger),
		Clock:       clk,
		Location:    loc,
		MinUsage:    parseDuration(cfg.Accounting.MinUsageDuration, 10*time.Minute),
		IdleTimeout: parseDuration(cfg.Accounting.IdleTimeout, 10*time.Minute),
		Logger:      logger,
	})
	if err := engine.Load(ctx); err != nil {
		cleanup()
		return nil, nil, nil, nil, fmt.Errorf("failed to load usage state: %w", err)
	}

	evaluator := access.NewEvaluator(access.Config{
		Devices:  dir,
		Users:    dir,
		Profiles: dir,
		Usage:    engine,
		Clock:    clk,
		Location: loc,
		Enabled:  cfg.Family.Enabled,
		Logger:   logger,
	})

	return evaluator, engine, dir, cleanup, nil
}

func runCheckAccess(cmd *cobra.Command, args []string) error {
	at := time.Now()
	if checkDay != "" || checkTime != "" {
		var err error
		at, err = parseCheckTime(checkDay, checkTime)
		if err != nil {
			return fmt.Errorf("invalid time specification: %w", err)
		}
	}

	evaluator, engine, dir, cleanup, err := checkSetup(at)
	if err != nil {
		return err
	}
	defer cleanup()

	var device *directory.Device
	for _, d := range dir.Devices(false) {
		if d.ID == checkDevice {
			dd := d
			device = &dd
			break
		}
	}
	if device == nil {
		return fmt.Errorf("unknown device: %s", checkDevice)
	}

	evaluator.Refresh(false)
	permitted := evaluator.IsAccessPermitted(device.ID)
	restrictions := evaluator.Restrictions(device.ID)

	printAccessResult(*device, at, permitted, restrictions, engine)
	return nil
}

func runCheckUsage(cmd *cobra.Command, args []string) error {
	_, engine, dir, cleanup, err := checkSetup(time.Now())
	if err != nil {
		return err
	}
	defer cleanup()

	if _, ok := dir.UserByID(checkUser); !ok {
		return fmt.Errorf("unknown user: %s", checkUser)
	}

	printUsageResult(checkUser, engine.Account(checkUser))
	return nil
}

// printAccessResult prints the access check result with colors
func printAccessResult(device directory.Device, at time.Time, permitted bool, restrictions []access.Restriction, engine *usage.Engine) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("ACCESS CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Device:     %s (%s)\n", device.ID, device.Name)
	fmt.Printf("User:       %s\n", device.OperatingUser())
	fmt.Printf("Check Time: %s (%s)\n", at.Format("2006-01-02 15:04"), at.Weekday())
	fmt.Println()

	cyan.Print("Decision:   ")
	if permitted {
		green.Println("PERMITTED")
		fmt.Println("            → Internet access is allowed")
	} else {
		red.Println("DENIED")
		for _, r := range restrictions {
			switch r {
			case access.RestrictionTimeFrame:
				fmt.Println("            → Outside every permitted time window")
			case access.RestrictionMaxUsageTime:
				fmt.Println("            → Today's usage quota is exhausted")
			case access.RestrictionUsageTimeDisabled:
				fmt.Println("            → No usage session is running")
			case access.RestrictionInternetBlocked:
				fmt.Println("            → Internet access is blocked for this profile")
			}
		}
	}

	if userID := device.OperatingUser(); userID != "" {
		account := engine.Account(userID)
		if account.MaxUsageTime != nil {
			fmt.Println()
			fmt.Printf("Quota:      %d minutes\n", int(account.MaxUsageTime.Minutes()))
			fmt.Printf("Accounted:  %d minutes\n", int(account.AccountedTime.Minutes()))
			fmt.Printf("Remaining:  %d minutes\n", int(account.Remaining().Minutes()))
		}
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// printUsageResult prints the usage check result with colors
func printUsageResult(userID string, account usage.Account) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("USAGE CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("User:       %s\n", userID)
	fmt.Printf("Session:    %s\n", map[bool]string{true: "running", false: "stopped"}[account.Active])
	fmt.Printf("Used:       %d minutes\n", int(account.UsedTime.Minutes()))
	fmt.Printf("Accounted:  %d minutes\n", int(account.AccountedTime.Minutes()))
	if account.MaxUsageTime != nil {
		fmt.Printf("Quota:      %d minutes\n", int(account.MaxUsageTime.Minutes()))
		fmt.Printf("Remaining:  %d minutes\n", int(account.Remaining().Minutes()))
	} else {
		fmt.Println("Quota:      none")
	}
	fmt.Println()

	cyan.Print("Status:     ")
	if account.Allowed {
		green.Println("ALLOWED")
	} else {
		red.Println("EXHAUSTED")
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// parseCheckTime parses day and time flags into a time.Time
func parseCheckTime(dayStr, timeStr string) (time.Time, error) {
	now := time.Now()

	hour := now.Hour()
	minute := now.Minute()

	if timeStr != "" {
		if _, err := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute); err != nil {
			return time.Time{}, fmt.Errorf("time must be in HH:MM format: %s", timeStr)
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return time.Time{}, fmt.Errorf("invalid time: hour must be 0-23, minute must be 0-59")
		}
	}

	targetDay := now.Weekday()
	if dayStr != "" {
		day, err := directory.ParseContingentDay(dayStr)
		if err != nil {
			return time.Time{}, err
		}
		switch day {
		case directory.Sunday:
			targetDay = time.Sunday
		case directory.Weekday, directory.Weekend:
			return time.Time{}, fmt.Errorf("need an exact day, not %q", strings.ToLower(dayStr))
		default:
			targetDay = time.Weekday(int(day))
		}
	}

	daysUntilTarget := int(targetDay - now.Weekday())
	if daysUntilTarget < 0 {
		daysUntilTarget += 7
	}

	targetDate := now.AddDate(0, 0, daysUntilTarget)
	return time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), hour, minute, 0, 0, now.Location()), nil
}
