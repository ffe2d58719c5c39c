// Command erpsession is a terminal front end for the ERP session core:
// log in, inspect the session, browse the directory, log out.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"

	"github.com/athishulleri01/erp-session-core/client"
	"github.com/athishulleri01/erp-session-core/identity"
	"github.com/athishulleri01/erp-session-core/internal/config"
	"github.com/athishulleri01/erp-session-core/rbac"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %s\n", err)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	configPath := flag.String("config", "", "path to YAML configuration")
	flag.Parse()

	if flag.NArg() < 1 {
		return errors.New("usage: erpsession [-config file] <login|logout|whoami|users|routes>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	c, err := client.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Restore(ctx); err != nil {
		return err
	}

	switch flag.Arg(0) {
	case "login":
		return login(ctx, c)
	case "logout":
		c.Logout(ctx)
		fmt.Println("logged out")
		return nil
	case "whoami":
		return whoami(c)
	case "users":
		return listUsers(ctx, c)
	case "routes":
		return routes(c)
	default:
		return errors.Errorf("unknown command %q", flag.Arg(0))
	}
}

func login(ctx context.Context, c *client.Client) error {
	displayAppname("ERP Session")

	var username string
	fmt.Print("Username: ")
	if _, err := fmt.Scanln(&username); err != nil {
		return errors.Wrap(err, "read username")
	}

	var password string
	fmt.Print("Password: ")
	if _, err := fmt.Scanln(&password); err != nil {
		return errors.Wrap(err, "read password")
	}

	user, err := c.Login(ctx, identity.Credentials{Username: username, Password: password})
	if err != nil {
		return err
	}
	fmt.Printf("Welcome, %s (%s)\n", user.FullName(), user.Role)
	return nil
}

func whoami(c *client.Client) error {
	user, ok := c.Principal()
	if !ok {
		fmt.Println("not logged in")
		return nil
	}
	out, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func listUsers(ctx context.Context, c *client.Client) error {
	list, err := c.Directory().List(ctx)
	if err != nil {
		return err
	}
	for _, u := range list {
		fmt.Printf("%4d  %-16s %-24s %-10s %s\n", u.ID, u.Username, u.FullName(), u.Role, u.Department)
	}
	return nil
}

func routes(c *client.Client) error {
	user, ok := c.Principal()
	if !ok {
		fmt.Println("not logged in")
		return nil
	}
	for _, r := range rbac.AllowedRoutes(user.Role) {
		fmt.Println(r)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
