// Package messages renders the user-visible lines printed by the dev command.
package messages

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	codeStyle  = lipgloss.NewStyle().Underline(true)
)

// PortInUse reports that requested was busy and newPort is used instead.
func PortInUse(requested, newPort int) string {
	return warnStyle.Render(fmt.Sprintf("Port %d is in use, using port %d instead.",
		requested, newPort))
}

// ServerReady is printed once the asset server accepts connections.
func ServerReady(browser string, port int) string {
	return okStyle.Render("►►► ") + fmt.Sprintf("Dev server for %s running on %s",
		browser, codeStyle.Render(fmt.Sprintf("http://127.0.0.1:%d", port)))
}

// ManagerExtensionReady is printed after provisioning the reload bridge.
func ManagerExtensionReady(path string, reloadPort int) string {
	return infoStyle.Render(fmt.Sprintf("Reload bridge ready at %s (port %d)", path, reloadPort))
}

// AddonInstalled reports the result of a temporary add-on install.
func AddonInstalled(addonPath string, ok bool) string {
	if ok {
		return okStyle.Render("Temporary add-on installed: ") + addonPath
	}
	return errorStyle.Render("Failed to install temporary add-on: ") + addonPath
}

// RunnerError wraps an unrecoverable error of the dev runner.
func RunnerError(err error) string {
	return errorStyle.Render("Error in the extension-dev runner: ") + err.Error()
}

// Reloading is printed when a change triggers a rebuild.
func Reloading(changed string) string {
	return infoStyle.Render("Change detected, reloading: ") + changed
}
