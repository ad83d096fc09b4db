package auth

import (
	"fmt"
	"strings"
)

// ShowTokenSetupGuide displays step-by-step instructions for creating a
// Lightspeed X-Series personal API token
func ShowTokenSetupGuide() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("📚 LIGHTSPEED X-SERIES API TOKEN GUIDE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	fmt.Println("This tool needs a personal API token to read data from your store.")
	fmt.Println("Follow these steps to create one:")
	fmt.Println()

	fmt.Println("🌐 STEP 1: Sign in to your store's back office")
	fmt.Println("   - Go to https://<your-store>.retail.lightspeed.app")
	fmt.Println("   - Sign in with an account that has Setup access")
	fmt.Println()

	fmt.Println("🔧 STEP 2: Open the API access page")
	fmt.Println("   - In the sidebar, go to Setup → Personal Tokens")
	fmt.Println("   - (On older accounts this lives under Setup → API Access)")
	fmt.Println()

	fmt.Println("🔑 STEP 3: Create and copy a token")
	fmt.Println("   1. Click 'Add token'")
	fmt.Println("   2. Give it a name you will recognize, e.g. 'data export'")
	fmt.Println("   3. Copy the generated token immediately")
	fmt.Println("      It is shown only once; if you lose it, create a new one")
	fmt.Println()

	fmt.Println("🏪 STEP 4: Note your store domain")
	fmt.Println("   - It is the address you sign in at, for example:")
	fmt.Println("     mystore.retail.lightspeed.app")
	fmt.Println("   - Either the full domain or just the 'mystore' prefix works")
	fmt.Println()

	fmt.Println("💡 TIPS:")
	fmt.Println("   • Tokens inherit the permissions of the user who created them")
	fmt.Println("   • A read-only user is enough for exports")
	fmt.Println("   • For unattended runs, set LIGHTSPEED_DOMAIN and LIGHTSPEED_TOKEN")
	fmt.Println()

	fmt.Println("⚠️  SECURITY WARNING:")
	fmt.Println("   • This token grants API access to your store's data")
	fmt.Println("   • NEVER share it or commit it to version control")
	fmt.Println("   • Store it securely (this tool encrypts it)")
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}

// ShowQuickSetupGuide shows a condensed version for experienced users
func ShowQuickSetupGuide() {
	fmt.Println("\n🔑 Quick Guide: Back office → Setup → Personal Tokens → Add token")
	fmt.Println("   Need: your store domain (mystore.retail.lightspeed.app) and the token")
	fmt.Println("   Type 'help' for detailed instructions")
}
