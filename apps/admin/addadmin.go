package main

import (
	"context"
	"fmt"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
	"github.com/trezcool/shule/core/profile"
)

// addAdmin creates the provider account and provisions the auto-approved
// admin profile in one go.
func (cli *commandLine) addAdmin(name, email, pwd string) error {
	ctx := profile.WithCaller(context.Background(), profile.SystemCaller)
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)

	ident, _, err := cli.provider.CreateAccount(ctx, identity.NewAccount{
		Email:    email,
		Password: pwd,
		Metadata: identity.Metadata{Role: profile.RoleAdmin, Name: name},
	})
	if err != nil {
		return err
	}

	p, err := cli.profSvc.Provision(ctx, ident)
	if err != nil {
		return err
	}
	fmt.Printf("admin %s provisioned (%s)\n", p.Email, p.ID)
	return nil
}
