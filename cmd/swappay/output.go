package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapPay/internal/config"
	"swapPay/internal/swap"
)

const rule = "============================================================"

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// startSpinner shows progress on stderr unless JSON output is requested. The
// returned func stops it.
func startSpinner(jsonOut bool, suffix string) func() {
	if jsonOut {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

func header(title string) {
	fmt.Println("\n" + rule)
	color.Green("  %s", title)
	fmt.Println(rule)
}

func row(label, value string) {
	fmt.Printf("  %-18s %s\n", label+":", value)
}

var errConfirmationRequired = errors.New("--json does not prompt; pass --yes to submit the transaction")

// skipPrompt reports whether a write command may go ahead without asking.
// JSON output never prompts, so it must come with --yes.
func skipPrompt(cmd *cobra.Command) (bool, error) {
	yes, _ := cmd.Flags().GetBool("yes")
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut && !yes {
		return false, errConfirmationRequired
	}
	return yes, nil
}

// confirm asks a y/N question on in. Anything but y or yes declines.
func confirm(in io.Reader, question string) bool {
	fmt.Printf("\n%s (y/N): ", question)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// printError writes a diagnostic naming the failed step and its cause.
func printError(err error) {
	var stepErr *swap.StepError
	switch {
	case errors.Is(err, config.ErrConfigurationMissing):
		color.Red("Configuration error: %v", err)
	case errors.As(err, &stepErr):
		color.Red("Failed at %s: %v", stepErr.Step, stepErr.Kind)
		if stepErr.Broadcast {
			fmt.Fprintf(os.Stderr, "  Transaction: %s\n", color.CyanString(stepErr.TxHash.Hex()))
		}
		switch {
		case stepErr.Reverted:
			color.Yellow("  The transaction was mined and reverted; gas was spent.")
		case stepErr.Broadcast:
			color.Yellow("  The transaction was sent but its outcome is unknown; check it with: swappay status %s", stepErr.TxHash.Hex())
		case stepErr.IsWrite():
			color.Yellow("  The transaction was not sent; no gas was spent.")
		}
		if stepErr.Err != nil {
			fmt.Fprintf(os.Stderr, "  Cause: %v\n", stepErr.Err)
		}
	default:
		color.Red("Error: %v", err)
	}
}
