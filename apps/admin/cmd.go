package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/trezcool/rollbook/core/attendance"
	"github.com/trezcool/rollbook/core/credential"
	"github.com/trezcool/rollbook/core/directory"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	deriver *credential.Deriver
	dir     *directory.Directory
	att     *attendance.Service
	timeout time.Duration // per store operation, 0 for none
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  derive -id IDENTITY_TOKEN - print the secret derived for an identity token")
	fmt.Fprintln(cli.out, "  lookup -alias ALIAS       - print the directory entry of an alias")
	fmt.Fprintln(cli.out, "  verify -alias ALIAS       - check a secret against an alias")
	fmt.Fprintln(cli.out, "  courses                   - list the courses running today")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	deriveCmd := flag.NewFlagSet("derive", flag.ContinueOnError)
	deriveID := deriveCmd.String("id", "", "The identity token, e.g. S022.")

	lookupCmd := flag.NewFlagSet("lookup", flag.ContinueOnError)
	lookupAlias := lookupCmd.String("alias", "", "The alias as students type it.")

	verifyCmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	verifyAlias := verifyCmd.String("alias", "", "The alias as students type it. The secret will be prompted next.")

	for _, fs := range []*flag.FlagSet{deriveCmd, lookupCmd, verifyCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "derive":
		if err := deriveCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *deriveID == "" {
			deriveCmd.Usage()
			return errHelp
		}
		return cli.derive(*deriveID)
	case "lookup":
		if err := lookupCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *lookupAlias == "" {
			lookupCmd.Usage()
			return errHelp
		}
		return cli.lookup(*lookupAlias)
	case "verify":
		if err := verifyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *verifyAlias == "" {
			verifyCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter secret:")
		secret, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(secret) == 0 {
			verifyCmd.Usage()
			return errHelp
		}
		return cli.verify(*verifyAlias, string(secret))
	case "courses":
		return cli.courses()
	default:
		cli.printUsage()
		return errHelp
	}
}
