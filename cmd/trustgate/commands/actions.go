package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trustgate/trustgate/internal/safety"
)

var actionsTitle = lipgloss.NewStyle().Bold(true).Padding(0, 2)

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List allow-listed action types and their safety policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			tty := term.IsTerminal(int(os.Stdout.Fd()))
			if !tty {
				color.NoColor = true
			}

			gate := safety.NewGate()

			if tty {
				fmt.Println(actionsTitle.Render("Action safety policies"))
			} else {
				fmt.Println("Action safety policies")
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "ACTION\tMIN EVIDENCE\tMIN CONFIDENCE\tIMPACT\tBLAST RADIUS\tAPPROVAL\n") //nolint:errcheck // CLI output
			for _, at := range gate.AllowedActions() {
				p, ok := gate.PolicyFor(at)
				if !ok {
					continue
				}
				approval := "-"
				if p.ApprovalRequired {
					approval = "required"
				}
				fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%s\t%s\n", //nolint:errcheck // CLI output
					at, p.MinEvidence, p.MinConfidence, impactLabel(p.ImpactLevel), p.BlastRadius, approval)
			}
			return tw.Flush()
		},
	}
}

func impactLabel(level safety.ImpactLevel) string {
	switch level {
	case safety.ImpactCritical:
		return color.RedString(string(level))
	case safety.ImpactHigh:
		return color.YellowString(string(level))
	default:
		return string(level)
	}
}
