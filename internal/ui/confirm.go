package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/rosguard/internal/risk"
)

// criticalPhrase must be typed verbatim to run a CRITICAL command
const criticalPhrase = "I UNDERSTAND THE RISK"

// TierStyle returns the display style for a risk tier label
func TierStyle(tier risk.Tier) lipgloss.Style {
	switch {
	case tier <= risk.TierLow:
		return TierSafeStyle
	case tier == risk.TierMedium:
		return TierMediumStyle
	default:
		return TierHighStyle
	}
}

// ConfirmRiskyCommand displays the risk assessment for a command and
// prompts for approval. MEDIUM and HIGH tiers take a y/N answer; CRITICAL
// requires typing a confirmation phrase. Returns true if the user
// confirmed, false otherwise.
func ConfirmRiskyCommand(command string, a *risk.Assessment) bool {
	width := GetTerminalWidth()

	var lines []string

	tierLabel := TierStyle(a.Tier).Render(a.Tier.String())
	titleLine := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true).
		Render("   ⚠  RISK  ─  ") + tierLabel
	lines = append(lines, "")
	lines = append(lines, titleLine)
	lines = append(lines, "")

	commandStyle := lipgloss.NewStyle().Foreground(TextColor).Bold(true)
	lines = append(lines, commandStyle.Render("   "+command))
	lines = append(lines, "")

	bulletStyle := lipgloss.NewStyle().Foreground(TextColor)
	for _, warning := range a.Warnings {
		lines = append(lines, bulletStyle.Render("   • "+warning))
	}
	if len(a.Warnings) > 0 {
		lines = append(lines, "")
	}

	if a.Impact != "" {
		impactStyle := lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true).
			Width(width - 12).
			PaddingLeft(3)
		lines = append(lines, impactStyle.Render("Impact: "+a.Impact))
		lines = append(lines, "")
	}

	content := strings.Join(lines, "\n")

	// Double border in orange/warning color
	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(WarningColor).
		Width(width-2).
		Padding(0, 2).
		Render(content)

	fmt.Println(box)
	fmt.Println()

	promptStyle := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true)

	if a.Tier >= risk.TierCritical {
		fmt.Print(promptStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", criticalPhrase)))
		return readAnswer(func(input string) bool { return input == criticalPhrase })
	}

	fmt.Print(promptStyle.Render("Proceed? [y/N]: "))
	return readAnswer(func(input string) bool {
		return strings.EqualFold(input, "y") || strings.EqualFold(input, "yes")
	})
}

// ConfirmDangerousOperation displays a warning box and prompts the user to
// type "I AGREE" to proceed with a dangerous operation. Returns true if
// the user confirmed, false otherwise.
func ConfirmDangerousOperation(title string, warnings []string, disclaimer string) bool {
	width := GetTerminalWidth()

	var lines []string

	// Title with warning marker
	titleLine := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true).
		Render(fmt.Sprintf("   ⚠  WARNING  ─  %s", title))
	lines = append(lines, "")
	lines = append(lines, titleLine)
	lines = append(lines, "")

	// Warning bullet points
	for _, warning := range warnings {
		bulletStyle := lipgloss.NewStyle().Foreground(TextColor)
		lines = append(lines, bulletStyle.Render("   • "+warning))
	}
	lines = append(lines, "")

	// Disclaimer in muted text, word-wrapped
	if disclaimer != "" {
		disclaimerStyle := lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true).
			Width(width - 12).
			PaddingLeft(3)
		lines = append(lines, disclaimerStyle.Render(disclaimer))
		lines = append(lines, "")
	}

	content := strings.Join(lines, "\n")

	// Double border in orange/warning color
	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(WarningColor).
		Width(width-2).
		Padding(0, 2).
		Render(content)

	fmt.Println(box)
	fmt.Println()

	// Prompt for confirmation
	promptStyle := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true)
	fmt.Print(promptStyle.Render("To proceed, type \"I AGREE\" and press Enter: "))

	return readAnswer(func(input string) bool { return input == "I AGREE" })
}

// readAnswer reads one line from stdin and applies the acceptance check
func readAnswer(accept func(string) bool) bool {
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return false
	}

	if accept(strings.TrimSpace(input)) {
		fmt.Println()
		return true
	}

	fmt.Println()
	cancelStyle := lipgloss.NewStyle().Foreground(MutedColor)
	fmt.Println(cancelStyle.Render("  Operation cancelled."))
	fmt.Println()
	return false
}
