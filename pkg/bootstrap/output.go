package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// PrintBootstrapResult writes the created admin account to w. A generated
// password is shown once.
func PrintBootstrapResult(w io.Writer, result *AdminBootstrapResult) {
	if result == nil || !result.UserCreated {
		return
	}

	border := strings.Repeat("=", 80)
	fmt.Fprintf(w, "\n%s\nADMIN BOOTSTRAP COMPLETED\n%s\n", border, border)

	fmt.Fprintln(w, "\nAdmin User:")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "  Name:        %s\n", result.Name)
	fmt.Fprintf(w, "  Email:       %s\n", result.Email)
	fmt.Fprintf(w, "  User ID:     %s\n", result.UserID)
	fmt.Fprintf(w, "  Max devices: %d\n", result.MaxDevices)
	if result.PasswordFromEnv {
		fmt.Fprintln(w, "  Password:    (configured via ADMIN_PASSWORD environment variable)")
	} else {
		fmt.Fprintf(w, "  Password:    %s\n", result.Password)
		fmt.Fprintln(w, "\n  THIS PASSWORD WILL NOT BE DISPLAYED AGAIN - SAVE IT NOW!")
	}
	fmt.Fprintf(w, "%s\n\n", border)
}

// LogBootstrapSummary logs the result without the password
func LogBootstrapSummary(result *AdminBootstrapResult) {
	if result == nil || !result.UserCreated {
		return
	}
	slog.Info("Admin bootstrap summary",
		"admin_email", result.Email,
		"user_id", result.UserID,
		"max_devices", result.MaxDevices,
		"password_from_env", result.PasswordFromEnv,
	)
}
