package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db     *gorm.DB
	out    io.Writer
	secret []byte
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  stats                                  - registration and payment totals")
	fmt.Fprintln(cli.out, "  dortoirs                               - dormitory occupancy")
	fmt.Fprintln(cli.out, "  niveaux                                - participants per training level")
	fmt.Fprintln(cli.out, "  finance [-pending]                     - payment situation per registration")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -role ROLE [-nom NOM] [-chef ID] [-user-id UUID]")
	fmt.Fprintln(cli.out, "                                         - create or update an admin user")
	fmt.Fprintln(cli.out, "  token -email EMAIL [-ttl 1h]           - issue a session token (dev only)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	financeCmd := flag.NewFlagSet("finance", flag.ContinueOnError)
	financePending := financeCmd.Bool("pending", false, "Only registrations awaiting financial validation.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", "", "admin, president or finance.")
	addUserNom := addUserCmd.String("nom", "", "Display name.")
	addUserChef := addUserCmd.Uint("chef", 0, "Section (chef de quartier) id, presidents only.")
	addUserID := addUserCmd.String("user-id", "", "Hosted-auth subject; a new uuid when empty.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenEmail := tokenCmd.String("email", "", "Email of an existing admin user.")
	tokenTTL := tokenCmd.Duration("ttl", time.Hour, "Token lifetime.")

	for _, fs := range []*flag.FlagSet{financeCmd, addUserCmd, tokenCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "stats":
		return cli.stats()
	case "dortoirs":
		return cli.dortoirs()
	case "niveaux":
		return cli.niveaux()
	case "finance":
		if err := financeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.finance(*financePending)
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserEmail == "" || *addUserRole == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserID, *addUserEmail, *addUserNom, *addUserRole, *addUserChef)
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *tokenEmail == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenEmail, *tokenTTL)
	default:
		cli.printUsage()
		return errHelp
	}
}
