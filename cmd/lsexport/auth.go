package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/workingman/BCP-data-warehouse/pkg/auth"
	"github.com/workingman/BCP-data-warehouse/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Lightspeed credentials",
	Long: `Manage stored Lightspeed X-Series credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (unattended runs)

Never share your token or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [account]",
	Short: "Store Lightspeed credentials securely",
	Long: `Store Lightspeed credentials securely in the system keychain or encrypted file.

You will be prompted for:
  - Account name (if not provided)
  - Store domain (e.g. mystore.retail.lightspeed.app)
  - Personal API token (hidden as you type)

To create a token, sign in to your store's back office and go to
Setup > Personal Tokens. The login prompt walks you through it.`,
	Example: `  # Interactive login
  lsexport auth login

  # Login with account name
  lsexport auth login mystore`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [account]",
	Short: "Remove stored credentials",
	Long: `Remove stored Lightspeed credentials.

If no account is provided, you will be shown a list of stored accounts
to choose from. You can also remove all accounts at once.`,
	Example: `  # Interactive logout
  lsexport auth logout

  # Logout specific account
  lsexport auth logout mystore`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored Lightspeed accounts with sanitized credential information.`,
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}

	// Interactive prompts
	reader := bufio.NewReader(os.Stdin)

	// Show token guide first
	auth.ShowTokenSetupGuide()

	// Ask if ready to continue
	fmt.Print("Ready to enter your store details? (Y/n): ")
	ready, _ := reader.ReadString('\n')
	if strings.ToLower(strings.TrimSpace(ready)) == "n" {
		fmt.Println("\nRun 'lsexport auth login' when you're ready.")
		return
	}

	fmt.Println() // Add spacing

	if name == "" {
		fmt.Print("🏷  Account name (e.g. mystore): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Failed to read account name", err.Error())
			os.Exit(1)
		}
		name = strings.TrimSpace(input)
	}

	if name == "" {
		ui.PrintError("Account name is required")
		os.Exit(1)
	}

	// Check if account already exists
	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("\n⚠️  Account '%s' already exists. Update credentials? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	// Get the store domain
	fmt.Print("\n🏪 Store domain (e.g. mystore.retail.lightspeed.app): ")
	domainInput, err := reader.ReadString('\n')
	if err != nil {
		ui.PrintError("Failed to read store domain", err.Error())
		os.Exit(1)
	}
	domain := strings.TrimSpace(domainInput)
	if domain == "" {
		ui.PrintError("Store domain is required")
		os.Exit(1)
	}

	fmt.Println("\n🔐 Enter your token (it will be hidden as you type):")
	fmt.Println()

	// Get the API token with validation
	var token string
	for {
		fmt.Print("Personal API token: ")
		token, err = readPassword()
		if err != nil {
			ui.PrintError("Failed to read token", err.Error())
			os.Exit(1)
		}

		// Basic validation
		if len(token) < 20 {
			fmt.Println("\n❌ That doesn't look like a personal token.")
			fmt.Println("   Tokens are long opaque strings; copy the whole value.")
			fmt.Print("\nTry again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	// Show what we're about to do
	fmt.Println("\n📋 Summary:")
	fmt.Printf("   Account: %s\n", name)
	fmt.Printf("   Domain: %s\n", domain)
	fmt.Printf("   Token: %s...%s (hidden)\n", token[:4], token[len(token)-4:])

	// Create account
	account := &auth.Account{
		Name:         name,
		Domain:       domain,
		Token:        token,
		LastModified: time.Now(),
	}

	// Store credentials
	fmt.Println("\n💾 Storing credentials securely...")
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	// Set as default if it's the first account
	accounts, _ := manager.List()
	if len(accounts) == 1 {
		// First account becomes default automatically
		fmt.Printf("✅ Set '%s' as default account\n", name)
	}

	fmt.Println("\n🎉 Credentials stored successfully!")
	ui.PrintSuccess(fmt.Sprintf("Account saved: %s", name))

	// Show where credentials are stored
	fmt.Println("\n🔒 Security Information:")
	fmt.Println("   Your credentials are encrypted and stored in:")
	if auth.IsKeyringAvailable() {
		fmt.Println("   • System keychain (primary)")
	}
	fmt.Println("   • Encrypted file (backup)")

	// Show how to use
	fmt.Println("\n📖 Quick Start Guide:")
	fmt.Println("   Export every resource from your store:")
	fmt.Printf("   $ lsexport export\n")
	fmt.Println("\n   Use specific account:")
	fmt.Printf("   $ lsexport export --account %s\n", name)
	fmt.Println("\n   Show more options:")
	fmt.Printf("   $ lsexport export --help\n")
	fmt.Println("\n⚠️  Never share your token or config files!")
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	if len(args) == 0 {
		// List accounts and ask which to remove
		accounts, err := manager.List()
		if err != nil || len(accounts) == 0 {
			ui.PrintError("No stored accounts found")
			return
		}

		if len(accounts) == 1 {
			// Only one account, confirm deletion
			account := accounts[0]
			reader := bufio.NewReader(os.Stdin)
			fmt.Printf("Remove account '%s'? (y/N): ", account.Name)
			input, _ := reader.ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
				return
			}

			if err := manager.Delete(account.Name); err != nil {
				ui.PrintError("Failed to remove account", err.Error())
				os.Exit(1)
			}
			ui.PrintSuccess("Account removed: " + account.Name)
			return
		}

		// Multiple accounts, show menu
		fmt.Println("Select account to remove:")
		for i, account := range accounts {
			fmt.Printf("  %d. %s\n", i+1, account.Name)
		}
		fmt.Printf("  %d. Remove all accounts\n", len(accounts)+1)
		fmt.Printf("  0. Cancel\n\n")

		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Choice: ")
		input, _ := reader.ReadString('\n')

		var choice int
		fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

		if choice == 0 {
			return
		} else if choice == len(accounts)+1 {
			// Remove all
			fmt.Print("Remove ALL accounts? This cannot be undone! (yes/N): ")
			confirm, _ := reader.ReadString('\n')
			if strings.TrimSpace(confirm) != "yes" {
				return
			}

			if err := manager.DeleteAll(); err != nil {
				ui.PrintError("Failed to remove all accounts", err.Error())
				os.Exit(1)
			}
			ui.PrintSuccess("All accounts removed")
			return
		} else if choice > 0 && choice <= len(accounts) {
			account := accounts[choice-1]
			if err := manager.Delete(account.Name); err != nil {
				ui.PrintError("Failed to remove account", err.Error())
				os.Exit(1)
			}
			ui.PrintSuccess("Account removed: " + account.Name)
			return
		} else {
			ui.PrintError("Invalid choice")
			os.Exit(1)
		}
	}

	// Account name provided as argument
	name := args[0]
	if err := manager.Delete(name); err != nil {
		ui.PrintError("Failed to remove account", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Account removed: " + name)
}

func runList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	accounts, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list accounts", err.Error())
		os.Exit(1)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'lsexport auth login' to add an account")
		return
	}

	ui.PrintHighlight("Stored Accounts")
	fmt.Println()

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Account: %s\n", i+1, sanitized.Name)
		fmt.Printf("   Domain: %s\n", sanitized.Domain)
		fmt.Printf("   Token: %s\n", sanitized.Token)
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

// readPassword reads a password from stdin without echoing
func readPassword() (string, error) {
	// Try to read without echo
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // New line after password
		if err == nil {
			return string(password), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
