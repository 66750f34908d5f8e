package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	bannerDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// printBanner prints a one-line styled startup banner, in the role given
// ("server" or "client"), the way the teacher's status.go styles its CLI
// output with lipgloss rather than plain fmt.
func printBanner(role, detail string) {
	fmt.Println(bannerTitleStyle.Render("tx2tx "+role) + " " + bannerDimStyle.Render(detail))
}
