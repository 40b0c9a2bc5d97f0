package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) pending() error {
	ctx := context.Background()
	profiles, err := cli.profSvc.Pending(ctx, cliCaller)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("no profiles awaiting approval")
		return nil
	}
	for _, p := range profiles {
		line := fmt.Sprintf("%s  %-8s %-25s %s", p.ID, p.Role, p.Email, p.Name)
		if p.Student != nil {
			line += fmt.Sprintf("  [%s]", p.Student.EnrollmentNo)
		}
		fmt.Println(line)
	}
	return nil
}

func (cli *commandLine) approve(id string) error {
	ctx := context.Background()
	p, err := cli.profSvc.Approve(ctx, cliCaller, id)
	if err != nil {
		return err
	}
	fmt.Printf("approved %s (%s)\n", p.Email, p.ID)
	return nil
}

func (cli *commandLine) reject(id, reason string) error {
	ctx := context.Background()
	p, err := cli.profSvc.Reject(ctx, cliCaller, id, reason)
	if err != nil {
		return err
	}
	fmt.Printf("rejected %s (%s)\n", p.Email, p.ID)
	return nil
}
