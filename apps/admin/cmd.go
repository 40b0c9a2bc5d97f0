package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/shule/core/identity"
	"github.com/trezcool/shule/core/profile"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")

	// cliCaller is the operator behind the terminal; the access policy layer
	// evaluates every moderation against it.
	cliCaller = profile.Caller{ID: "admin-cli", Role: profile.RoleAdmin}
)

type commandLine struct {
	db       *sqlx.DB
	profSvc  *profile.Service
	provider identity.Provider
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  pending - list profiles awaiting approval")
	fmt.Println("  approve -id PROFILE_ID - approve a pending profile")
	fmt.Println("  reject -id PROFILE_ID -reason REASON - reject a pending profile")
	fmt.Println("  addadmin -name NAME -email EMAIL - create an admin account. The password will be prompted next.")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	approveCmd := flag.NewFlagSet("approve", flag.ExitOnError)
	approveID := approveCmd.String("id", "", "The profile ID to approve.")

	rejectCmd := flag.NewFlagSet("reject", flag.ExitOnError)
	rejectID := rejectCmd.String("id", "", "The profile ID to reject.")
	rejectReason := rejectCmd.String("reason", "", "The rejection reason shown to the registrant.")

	addAdminCmd := flag.NewFlagSet("addadmin", flag.ExitOnError)
	addAdminName := addAdminCmd.String("name", "", "The admin's display name.")
	addAdminEmail := addAdminCmd.String("email", "", "The admin's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "pending":
		return cli.pending()
	case "approve":
		if err := approveCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *approveID == "" {
			approveCmd.Usage()
			return errHelp
		}
		return cli.approve(*approveID)
	case "reject":
		if err := rejectCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rejectID == "" || *rejectReason == "" {
			rejectCmd.Usage()
			return errHelp
		}
		return cli.reject(*rejectID, *rejectReason)
	case "addadmin":
		if err := addAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addAdminName == "" || *addAdminEmail == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addAdminCmd.Usage()
			return errHelp
		}
		return cli.addAdmin(*addAdminName, *addAdminEmail, string(pwd))
	default:
		cli.printUsage()
		return errHelp
	}
}
