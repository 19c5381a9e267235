package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/trezcool/rollbook/core"
)

func (cli *commandLine) context() (context.Context, context.CancelFunc) {
	if cli.timeout > 0 {
		return context.WithTimeout(context.Background(), cli.timeout)
	}
	return context.WithCancel(context.Background())
}

// derive prints the secret of an identity token. It does not need the store.
func (cli *commandLine) derive(identityToken string) error {
	fmt.Fprintln(cli.out, cli.deriver.Derive(core.CleanString(identityToken)))
	return nil
}

func (cli *commandLine) lookup(alias string) error {
	ctx, cancel := cli.context()
	defer cancel()
	if err := cli.dir.Refresh(ctx); err != nil {
		return err
	}

	entry, ok := cli.dir.Lookup(alias)
	if !ok {
		return fmt.Errorf("%q: no such alias", alias)
	}
	fmt.Fprintf(cli.out, "alias:  %s\ntoken:  %s\nsecret: %s\n", entry.Alias, entry.IdentityToken, entry.Secret)
	return nil
}

func (cli *commandLine) verify(alias, secret string) error {
	ctx, cancel := cli.context()
	defer cancel()
	if err := cli.dir.Refresh(ctx); err != nil {
		return err
	}

	idt, err := cli.dir.Authenticate(alias, strings.TrimSpace(secret))
	if err != nil {
		return err
	}
	if idt.StaffOverride {
		fmt.Fprintf(cli.out, "%s (%s): valid staff override\n", idt.Alias, idt.IdentityToken)
	} else {
		fmt.Fprintf(cli.out, "%s (%s): valid\n", idt.Alias, idt.IdentityToken)
	}
	return nil
}

func (cli *commandLine) courses() error {
	ctx, cancel := cli.context()
	defer cancel()

	names, err := cli.att.ListActiveCourses(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(cli.out, "no course is running today")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(cli.out, name)
	}
	return nil
}
