package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/roster"
	"github.com/itdsea/coursework/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	db         *sqlx.DB
	usrRepo    user.Repository
	rosterRepo roster.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [args]                   - run database migrations (up, down, status, ...)")
	fmt.Println("  loadroster -csv FILE                     - load eligible student ids from a CSV file")
	fmt.Println("  addstaff -username U -email E [-teacher] - add or update a staff account; password prompted")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	loadRosterCmd := flag.NewFlagSet("loadroster", flag.ExitOnError)
	loadRosterCSV := loadRosterCmd.String("csv", "", "Path to a CSV file: student_id,first_name,last_name per line.")

	addStaffCmd := flag.NewFlagSet("addstaff", flag.ExitOnError)
	addStaffUname := addStaffCmd.String("username", "", "The staff member's username.")
	addStaffEmail := addStaffCmd.String("email", "", "The staff member's email.")
	addStaffTeacher := addStaffCmd.Bool("teacher", false, "Grant the teacher role instead of assistant.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "loadroster":
		if err := loadRosterCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loadRosterCSV == "" {
			loadRosterCmd.Usage()
			return errHelp
		}
		return cli.loadRoster(*loadRosterCSV)
	case "addstaff":
		if err := addStaffCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addStaffUname == "" || *addStaffEmail == "" {
			addStaffCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addStaffCmd.Usage()
			return errHelp
		}
		return cli.addStaff(*addStaffUname, *addStaffEmail, string(pwd), *addStaffTeacher)
	default:
		cli.printUsage()
		return errHelp
	}
}
