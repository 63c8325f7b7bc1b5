package main

import (
	"context"
	"fmt"
)

// seed fills an empty timetable with demo lessons taught by the active teachers.
func (cli *commandLine) seed() error {
	ctx := context.Background()
	teachers, err := cli.usrSvc.Teachers(ctx)
	if err != nil {
		return err
	}
	if len(teachers) == 0 {
		return errNoTeachers
	}
	unames := make([]string, 0, len(teachers))
	for _, t := range teachers {
		unames = append(unames, t.Username)
	}

	count, err := cli.ttSvc.SeedDemo(ctx, unames)
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Println("The timetable is not empty, nothing to seed.")
		return nil
	}
	fmt.Printf("Seeded %d lessons.\n", count)
	return nil
}
